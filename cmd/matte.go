package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chaos-io/fitroom/cutout"
	"github.com/chaos-io/fitroom/rembg"
	"github.com/chaos-io/fitroom/source"
	"github.com/chaos-io/fitroom/util"
)

var (
	matteOut     string
	matteJobs    int
	matteMatted  bool
	matteOptions = struct {
		threshold, band, brightnessCutoff, brightnessBand float64
		density                                           int
	}{}
)

func init() {
	f := matteCmd.Flags()
	f.StringVarP(&matteOut, "out", "o", "./output", "output folder")
	f.IntVarP(&matteJobs, "jobs", "j", 4, "number of images processed concurrently")
	f.BoolVar(&matteMatted, "matted", false, "treat inputs as already cut out (copy only)")
	f.Float64Var(&matteOptions.threshold, "threshold", 35, "colour distance below which a pixel is background")
	f.Float64Var(&matteOptions.band, "band", 1.5, "soft edge band as a multiple of threshold")
	f.Float64Var(&matteOptions.brightnessCutoff, "brightness-cutoff", 235, "brightness above which near-background pixels are cleared")
	f.Float64Var(&matteOptions.brightnessBand, "brightness-band", 2, "brightness override applies below this multiple of threshold")
	f.IntVar(&matteOptions.density, "density", 10, "border sample points per edge")

	rootCmd.AddCommand(matteCmd)
}

var matteCmd = &cobra.Command{
	Use:   "matte [input...]",
	Short: "Remove plain backgrounds from garment photos",
	Long:  "Remove plain backgrounds from garment photos.\nProcessed images are written as <name>_matte.png into the output folder. Images that are skipped (already transparent or not decodable) are copied unchanged.",
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(1)(cmd, args); err != nil {
			return newExitCodeError(err, ExitCodeInvalidArguments)
		}
		for _, in := range args {
			if _, err := os.Stat(in); err != nil {
				return newExitCodeError(fmt.Errorf("could not open input file %s: %w", in, err), ExitCodeInvalidInput)
			}
		}
		if matteJobs < 1 {
			return newExitCodeError(fmt.Errorf("jobs must be >= 1"), ExitCodeInvalidArguments)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		opts := cfg.Matte.Options
		flags := cmd.Flags()
		if flags.Changed("threshold") {
			opts.Threshold = matteOptions.threshold
		}
		if flags.Changed("band") {
			opts.BandMultiplier = matteOptions.band
		}
		if flags.Changed("brightness-cutoff") {
			opts.BrightnessCutoff = matteOptions.brightnessCutoff
		}
		if flags.Changed("brightness-band") {
			opts.BrightnessBand = matteOptions.brightnessBand
		}
		if flags.Changed("density") {
			opts.SampleDensity = matteOptions.density
		}

		remover, err := rembg.NewRemover(cfg.Matte.Remover, opts)
		if err != nil {
			return newExitCodeError(err, ExitCodeInvalidArguments)
		}
		p := cutout.NewProcessor(cfg.Guard(), remover)
		p.MaxPixels = cfg.Matte.MaxPixels

		if err := os.MkdirAll(matteOut, os.ModePerm); err != nil {
			return newExitCodeError(fmt.Errorf("could not create output folder %s: %w", matteOut, err), ExitCodeInvalidOutput)
		}
		return matteFiles(cmd.Context(), p, args, matteOut, matteJobs, matteMatted, cmd.OutOrStdout())
	},
}

// matteFiles 并发处理多个文件，各文件之间没有共享状态
func matteFiles(ctx context.Context, p *cutout.Processor, inputs []string, outDir string, jobs int, matted bool, w io.Writer) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for _, in := range inputs {
		in := in
		g.Go(func() error {
			defer util.Trace("matte " + in)()

			data, err := os.ReadFile(in)
			if err != nil {
				return newExitCodeError(fmt.Errorf("could not read %s: %w", in, err), ExitCodeInvalidInput)
			}

			res := p.Process(gctx, source.Ref{Matted: matted}, data)
			if res.Status == cutout.StatusCancelled {
				return res.Err
			}

			out := outputPath(outDir, in, res)
			if err := util.WriteFile(out, res.Data); err != nil {
				return newExitCodeError(fmt.Errorf("could not write %s: %w", out, err), ExitCodeInvalidOutput)
			}

			mu.Lock()
			defer mu.Unlock()
			if res.Background != nil {
				_, _ = fmt.Fprintf(w, "%s -> %s [%s, background %s]\n", in, out, res.Status, res.Background.Hex())
			} else {
				_, _ = fmt.Fprintf(w, "%s -> %s [%s]\n", in, out, res.Status)
			}
			return nil
		})
	}
	return g.Wait()
}

func outputPath(outDir, in string, res cutout.Result) string {
	base := filepath.Base(in)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if res.Processed() {
		ext = ".png"
	}
	return filepath.Join(outDir, name+"_matte"+ext)
}
