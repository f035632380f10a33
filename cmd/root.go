package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chaos-io/fitroom/config"
	"github.com/chaos-io/fitroom/version"
)

var (
	cfgFile string
	verbose bool

	rootCmd = &cobra.Command{
		Use:           "fitroom",
		Short:         "Garment cut-out and dressing room compositing",
		Long:          `fitroom removes plain backgrounds from garment photos and layers the cut-outs over a mannequin or user photo.`,
		Version:       version.VERSION,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute executes the root command.
func Execute() error {
	rootCmd.SetOut(os.Stdout)
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig 读取配置并安装 slog 默认 logger
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, newExitCodeError(err, ExitCodeInvalidConfig)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, newExitCodeError(err, ExitCodeInvalidConfig)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return cfg, nil
}
