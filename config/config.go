package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaos-io/fitroom/matte"
	"github.com/chaos-io/fitroom/overlay"
	"github.com/chaos-io/fitroom/rembg"
	"github.com/chaos-io/fitroom/source"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server  Server         `yaml:"server"`
	Matte   Matte          `yaml:"matte"`
	Source  Source         `yaml:"source"`
	Store   Store          `yaml:"store"`
	Log     Log            `yaml:"log"`
	Overlay overlay.Layout `yaml:"overlay"`
}

type Server struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

type Matte struct {
	matte.Options `yaml:",inline"`
	// Remover "matte" 或 "none"
	Remover   string `yaml:"remover"`
	MaxPixels int    `yaml:"max_pixels"`
}

type Source struct {
	StaticRoot     string        `yaml:"static_root"`
	StaticPrefixes []string      `yaml:"static_prefixes"`
	LocalHosts     []string      `yaml:"local_hosts"`
	MattedMarkers  []string      `yaml:"matted_markers"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
}

// Store 生成的抠图结果，只保留 TTL，由 janitor 定时清理
type Store struct {
	Dir           string        `yaml:"dir"`
	TTL           time.Duration `yaml:"ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default 默认配置
func Default() *Config {
	guard := source.DefaultGuard()
	return &Config{
		Server: Server{
			Addr:           ":8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxUploadBytes: 20 << 20,
		},
		Matte: Matte{
			Options:   matte.DefaultOptions(),
			Remover:   rembg.NameMatte,
			MaxPixels: 4096 * 4096,
		},
		Source: Source{
			StaticRoot:     "./public",
			StaticPrefixes: guard.StaticPrefixes,
			LocalHosts:     guard.LocalHosts,
			MattedMarkers:  guard.MattedMarkers,
			FetchTimeout:   10 * time.Second,
		},
		Store: Store{
			Dir:           "./output",
			TTL:           time.Hour,
			SweepSchedule: "@every 10m",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Overlay: overlay.DefaultLayout(),
	}
}

// Load 读取 YAML 配置，未填写的字段使用默认值；path 为空时只返回默认配置
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Matte.Options.Validate(); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is empty", ErrInvalidConfig)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: server.max_upload_bytes must be > 0", ErrInvalidConfig)
	}
	if c.Store.TTL <= 0 {
		return fmt.Errorf("%w: store.ttl must be > 0", ErrInvalidConfig)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	for slot := range c.Overlay {
		if _, err := overlay.ParseSlot(string(slot)); err != nil {
			return fmt.Errorf("%w: overlay: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	return level, nil
}

// Guard 根据配置生成来源判断
func (c *Config) Guard() *source.Guard {
	return &source.Guard{
		StaticPrefixes: c.Source.StaticPrefixes,
		LocalHosts:     c.Source.LocalHosts,
		MattedMarkers:  c.Source.MattedMarkers,
	}
}

// Loader 根据配置生成图片加载器
func (c *Config) Loader() *source.Loader {
	l := source.NewLoader(c.Guard(), c.Source.StaticRoot)
	if c.Source.FetchTimeout > 0 {
		l.Timeout = c.Source.FetchTimeout
	}
	l.MaxBytes = c.Server.MaxUploadBytes
	return l
}
