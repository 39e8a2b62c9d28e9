package deoptviewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamilpajak/deoptviewer/internal/bundle"
	"github.com/kamilpajak/deoptviewer/internal/config"
	"github.com/kamilpajak/deoptviewer/internal/parser"
	"github.com/kamilpajak/deoptviewer/internal/preview"
	"github.com/kamilpajak/deoptviewer/internal/progress"
	"github.com/kamilpajak/deoptviewer/internal/report"
	"github.com/kamilpajak/deoptviewer/internal/source"
	"github.com/kamilpajak/deoptviewer/pkg/models"
)

// summaryLimit caps the rows of the text summary.
const summaryLimit = 25

var (
	genInput       string
	genOut         string
	genConfig      string
	genPath        string
	genView        bool
	genZeroScore   string
	genConcurrency int
	genTimeout     time.Duration
	genRate        float64
	genFormat      string
	genSnapshot    bool
	genVerbose     bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Build a ranked report bundle from grouped diagnostics",
	Long: `Read a grouped-by-file diagnostics document, rank its files by
deoptimization and inline cache severity, attach each ranked file's source and
write the result as a viewer bundle.

Examples:
  deoptviewer generate --input grouped.json --out report
  deoptviewer generate --input grouped.json --out report --view --concurrency 8
  deoptviewer generate --input grouped.json --out report --path /srv/mirror
  deoptviewer generate --input grouped.json --out report --format json`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genInput, "input", "i", "", "Grouped diagnostics JSON file")
	f.StringVarP(&genOut, "out", "o", "deopt-report", "Output bundle directory")
	f.StringVarP(&genConfig, "config", "c", "", "Config file (default: nearest .deoptviewer.yaml or .deoptviewer.toml)")
	f.StringVar(&genPath, "path", "", "Read sources from a local mirror rooted here instead of their identifiers")
	f.BoolVar(&genView, "view", false, "Attach sources to every file, not only scored ones")
	f.StringVar(&genZeroScore, "zero-score", "omit", "Files without a fetched source: omit or include")
	f.IntVar(&genConcurrency, "concurrency", 1, "Sources resolved in parallel")
	f.DurationVar(&genTimeout, "timeout", 0, "Stop fetching sources after this long and write what resolved (0 = no limit)")
	f.Float64Var(&genRate, "rate", 0, "Max remote source requests per second (0 = unlimited)")
	f.StringVarP(&genFormat, "format", "f", "text", "Output format (text, json)")
	f.BoolVar(&genSnapshot, "snapshot", false, "Render the bundle in headless Chromium and print its text")
	f.BoolVarP(&genVerbose, "verbose", "v", false, "Log every resolved source")
	_ = generateCmd.MarkFlagRequired("input")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if genFormat != "text" && genFormat != "json" {
		return fmt.Errorf("invalid format %q, use text or json", genFormat)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := runContext(context.Background(), cfg)
	defer stop()

	emitter := progress.NewTerminalEmitter(os.Stderr, genVerbose)
	rep, m, err := generate(ctx, genInput, genOut, cfg, emitter)
	emitter.Close()
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	if genFormat == "json" {
		if err := outputJSON(stdout, rep); err != nil {
			return err
		}
	} else {
		printSummary(stdout, rep, summaryLimit)
		printDone(os.Stderr, genOut, m)
	}

	if genSnapshot {
		if !preview.IsAvailable() {
			fmt.Fprintln(os.Stderr, "Installing Chromium for --snapshot...")
			if err := preview.Install(); err != nil {
				return fmt.Errorf("failed to install browsers: %w", err)
			}
		}
		text, err := preview.SnapshotBundle(genOut)
		if err != nil {
			return fmt.Errorf("snapshot failed: %w", err)
		}
		fmt.Fprintln(stdout, string(text))
	}
	return nil
}

// loadConfig reads the config file and environment, then applies flags that
// were set explicitly on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	var cfg *config.Config
	if genConfig != "" {
		if _, err := os.Stat(genConfig); err != nil {
			return nil, fmt.Errorf("config file not found: %s", genConfig)
		}
		cfg, err = config.LoadFromPath(genConfig)
	} else {
		cfg, err = config.Load(wd)
	}
	if err != nil {
		return nil, err
	}

	if err := config.LoadEnv(cfg, wd); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("path") {
		cfg.Redirect.Base = genPath
	}
	if flags.Changed("view") {
		cfg.FullInclusion = genView
	}
	if flags.Changed("zero-score") {
		cfg.ZeroScore = genZeroScore
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = genConcurrency
	}
	if flags.Changed("timeout") {
		cfg.RunTimeout = genTimeout
	}
	if flags.Changed("rate") {
		cfg.Remote.RatePerSecond = genRate
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runContext stops on Ctrl+C and, when cfg.RunTimeout is set, at the
// deadline.
func runContext(parent context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	if cfg.RunTimeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// generate runs the whole pipeline: parse, rank and resolve, write bundle.
func generate(ctx context.Context, input, out string, cfg *config.Config, emitter progress.Emitter) (*models.Report, *bundle.Manifest, error) {
	if _, err := os.Stat(input); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("file not found: %s", input)
	}

	p := &parser.GroupedParser{}
	g, err := p.Parse(input)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse input: %w", err)
	}
	progress.Emit(emitter, progress.Event{
		Type:    progress.EventInfo,
		Message: fmt.Sprintf("Parsed %d files from %s", len(g.Files), input),
	})

	sc, err := cfg.SourceConfig()
	if err != nil {
		return nil, nil, err
	}
	mode, err := report.ParseZeroScoreMode(cfg.ZeroScore)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	rep, err := report.Build(ctx, g, report.Options{
		Resolver:      source.New(sc),
		FullInclusion: cfg.FullInclusion,
		ZeroScore:     mode,
		Concurrency:   cfg.Concurrency,
		Emitter:       emitter,
	})
	if err != nil {
		progress.Emit(emitter, progress.Event{Type: progress.EventError, Message: err.Error()})
		return nil, nil, fmt.Errorf("failed to build report: %w", err)
	}
	// A deadline only cuts fetches short: their files carry srcError and
	// the bundle is still written. An interrupt discards the run.
	switch err := ctx.Err(); {
	case errors.Is(err, context.Canceled):
		return nil, nil, fmt.Errorf("run interrupted: %w", err)
	case errors.Is(err, context.DeadlineExceeded):
		progress.Emit(emitter, progress.Event{
			Type:    progress.EventInfo,
			Message: "Run timeout reached, unfinished sources are recorded as errors",
		})
	}

	m, err := bundle.Write(out, rep, bundle.Options{
		Version:       version,
		Input:         input,
		FullInclusion: cfg.FullInclusion,
		ZeroScore:     cfg.ZeroScore,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to write bundle: %w", err)
	}

	progress.Emit(emitter, progress.Event{
		Type:    progress.EventDone,
		Message: fmt.Sprintf("Report ready (%d files, %.1fs)", len(rep.Files), time.Since(start).Seconds()),
	})
	return rep, m, nil
}

func outputJSON(w io.Writer, rep *models.Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
