package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fiberscan/internal/logger"
	"fiberscan/internal/models"
	"fiberscan/internal/ui/tui"
	"fiberscan/pkg/config"
	"fiberscan/pkg/detect"
	"fiberscan/pkg/loader"
	"fiberscan/pkg/morphology"
	"fiberscan/pkg/scan"
	"fiberscan/pkg/visualization"
)

// scanOptions holds the flags shared by scan and preview
type scanOptions struct {
	input      string
	configPath string
	spacing    []float64
	axis       string
	strategy   string
	model      string
	minSize    int
	csvPath    string
	framesDir  string
	workers    int
	verbose    bool
}

func (o *scanOptions) bind(c *cobra.Command) {
	f := c.Flags()
	f.StringVarP(&o.input, "input", "i", "", "Directory of mask images, one per plane (required)")
	f.StringVarP(&o.configPath, "config", "c", "", "YAML configuration file (optional)")
	f.Float64SliceVar(&o.spacing, "spacing", nil, "Voxel spacing along each array dimension, e.g. 1,1,2.5")
	f.StringVarP(&o.axis, "axis", "a", "", "Slice plane: xy|yz|xz")
	f.StringVarP(&o.strategy, "strategy", "s", "", "Blob detection strategy: connectivity|dbscan|randomforest")
	f.StringVar(&o.model, "model", "", "Random forest model file")
	f.IntVar(&o.minSize, "min-size", 0, "Remove 3D objects smaller than this many voxels")
	f.StringVar(&o.csvPath, "csv", "", "Write the blob table to this CSV file")
	f.StringVar(&o.framesDir, "frames", "", "Write one PNG per slice to this directory")
	f.IntVarP(&o.workers, "workers", "w", 0, "Number of slices processed concurrently")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Enable debug logging")

	_ = c.MarkFlagRequired("input")
}

// resolve loads the configuration file and applies the flags that were set
func (o *scanOptions) resolve(c *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if o.configPath != "" {
		if !fileExists(o.configPath) {
			return nil, fmt.Errorf("config file %s not found", o.configPath)
		}
		loaded, err := config.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	f := c.Flags()
	if f.Changed("spacing") {
		if len(o.spacing) != 3 {
			return nil, fmt.Errorf("--spacing needs 3 values, got %d", len(o.spacing))
		}
		copy(cfg.Processing.Spacing[:], o.spacing)
	}
	if f.Changed("axis") {
		cfg.Processing.Axis = o.axis
	}
	if f.Changed("strategy") {
		cfg.Strategy.Name = o.strategy
	}
	if f.Changed("model") {
		cfg.Strategy.RandomForest.ModelPath = o.model
	}
	if f.Changed("min-size") {
		cfg.Processing.MinObjectSize = o.minSize
	}
	if f.Changed("csv") {
		cfg.Output.CSVPath = o.csvPath
	}
	if f.Changed("frames") {
		cfg.Output.FramesDir = o.framesDir
	}
	if f.Changed("workers") {
		cfg.Processing.NumWorkers = o.workers
	}
	if f.Changed("verbose") {
		cfg.Output.Verbose = o.verbose
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func scanCmd() *cobra.Command {
	var opts scanOptions

	c := &cobra.Command{
		Use:   "scan",
		Short: "Segment every slice of a mask stack and export the blob table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			result, err := runPipeline(cmd.Context(), cfg, opts.input, logger.New(cfg.Output.Verbose))
			if result != nil {
				printSummary(cmd.OutOrStdout(), result)
			}
			return err
		},
	}
	opts.bind(c)
	return c
}

func previewCmd() *cobra.Command {
	var opts scanOptions

	c := &cobra.Command{
		Use:   "preview",
		Short: "Segment a mask stack and browse the labelled slices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			result, err := runPipeline(cmd.Context(), cfg, opts.input, logger.New(cfg.Output.Verbose))
			if err != nil {
				return err
			}
			return tui.Run(result)
		},
	}
	opts.bind(c)
	return c
}

// runPipeline loads the masks, filters small objects, scans and writes the
// configured outputs. A cancelled scan still exports the slices it finished.
func runPipeline(ctx context.Context, cfg *config.Config, input string, l *log.Logger) (*scan.ScanResult, error) {
	axis, err := models.ParseAxis(cfg.Processing.Axis)
	if err != nil {
		return nil, err
	}

	strategy, err := detect.New(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	vol, err := loader.LoadMaskStack(input, cfg.Processing.Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to load masks: %w", err)
	}
	l.WithField("shape", vol.Shape).Info("Loaded mask stack")

	if cfg.Processing.MinObjectSize > 0 {
		var removed int
		vol, removed = morphology.RemoveSmallObjects(vol, cfg.Processing.MinObjectSize)
		l.Infof("Removed %d objects smaller than %d voxels", removed, cfg.Processing.MinObjectSize)
	}

	entry := l.WithField("input", input)
	progress := func(done, total int) {
		if done == total || done%25 == 0 {
			entry.Debugf("Scanned %d/%d slices", done, total)
		}
	}
	spacing := models.Spacing(cfg.Processing.Spacing)
	result, scanErr := scan.Pipeline(ctx, vol, spacing, axis, strategy,
		scan.WithWorkers(cfg.Processing.NumWorkers),
		scan.WithLogger(entry),
		scan.WithProgress(progress),
	)
	if result == nil {
		return nil, scanErr
	}
	l.Infof("Scanned %d slices in %.2fs", result.SlicesScanned, time.Since(start).Seconds())

	if cfg.Output.CSVPath != "" {
		if err := result.SaveCSV(cfg.Output.CSVPath); err != nil {
			return result, fmt.Errorf("failed to write CSV: %w", err)
		}
		l.Infof("Blob table saved to %s", cfg.Output.CSVPath)
	}

	if cfg.Output.FramesDir != "" {
		p, err := visualization.NewPreviewer(result,
			visualization.WithScale(cfg.Output.FrameScale),
			visualization.WithOverlay(true))
		if err != nil {
			return result, err
		}
		if err := p.SaveSliceSequence(cfg.Output.FramesDir); err != nil {
			return result, fmt.Errorf("failed to write frames: %w", err)
		}
		l.Infof("Frames saved to %s", cfg.Output.FramesDir)
	}

	return result, scanErr
}

func printSummary(w io.Writer, result *scan.ScanResult) {
	objects := 0
	for i := 0; i < result.SlicesScanned; i++ {
		objects += result.ObjectCount(i)
	}

	fmt.Fprintf(w, "Strategy:  %s\n", result.Strategy)
	fmt.Fprintf(w, "Axis:      %s\n", result.Axis)
	fmt.Fprintf(w, "Slices:    %d/%d\n", result.SlicesScanned, result.NumSlices())
	fmt.Fprintf(w, "Objects:   %d\n", objects)
	if len(result.Failures) > 0 {
		slices := make([]string, len(result.Failures))
		for i, f := range result.Failures {
			slices[i] = fmt.Sprint(f.Slice)
		}
		fmt.Fprintf(w, "Failed:    %s\n", strings.Join(slices, ", "))
	}
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
