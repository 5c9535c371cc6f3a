// Command prepare builds tree and sequence datasets from daily OHLCV CSV
// files. Each file is one symbol; the symbol is taken from the file name.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/acoplu/borsa-aslani/internal/cache"
	"github.com/acoplu/borsa-aslani/internal/config"
	"github.com/acoplu/borsa-aslani/internal/database"
	"github.com/acoplu/borsa-aslani/internal/ingest"
	"github.com/acoplu/borsa-aslani/internal/logging"
	"github.com/acoplu/borsa-aslani/internal/models"
	"github.com/acoplu/borsa-aslani/internal/services"
)

var errUsage = errors.New("usage: prepare [flags] FILE.csv [FILE.csv ...]")

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "prepare: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	outDir       string
	splitDate    string
	storeScalers bool
	files        []string
}

// parseFlags binds the pipeline flags onto viper so they take precedence
// over the config file and environment.
func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("prepare", pflag.ContinueOnError)
	flags.SetOutput(output)

	flags.StringVarP(&opts.outDir, "out", "o", "", "directory for the JSON datasets; empty only logs a summary")
	flags.StringVar(&opts.splitDate, "split", "", "first date of the test part, YYYY-MM-DD")
	flags.BoolVar(&opts.storeScalers, "store-scalers", false, "persist fitted scalers to Redis")
	flags.Int("seq-length", 60, "window length of the sequence branch")
	flags.Int("min-windows", 1, "minimum number of training windows")
	flags.String("target", "Close", "target column")
	flags.Int("concurrency", 4, "symbols prepared in parallel")
	flags.Bool("extended", false, "add the extended indicator set")
	flags.String("degenerate-policy", "fail", "constant columns: fail or unit_scale")
	flags.String("log-level", "info", "log level")

	if err := flags.Parse(args); err != nil {
		return options{}, err
	}

	for key, name := range map[string]string{
		"pipeline.seq_length":          "seq-length",
		"pipeline.min_windows":         "min-windows",
		"pipeline.target_column":       "target",
		"pipeline.max_concurrency":     "concurrency",
		"pipeline.extended_indicators": "extended",
		"pipeline.degenerate_policy":   "degenerate-policy",
		"log_level":                    "log-level",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return options{}, fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}

	opts.files = flags.Args()
	if len(opts.files) == 0 {
		return options{}, errUsage
	}
	return opts, nil
}

func run(ctx context.Context, args []string, output io.Writer) error {
	opts, err := parseFlags(args, output)
	if err != nil {
		return err
	}

	var split time.Time
	if opts.splitDate != "" {
		if split, err = ingest.ParseDate(opts.splitDate); err != nil {
			return fmt.Errorf("invalid --split: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.NewStandardLoggerWithOutput(cfg.LogLevel, cfg.Environment, output)

	var svcOpts []services.PreparationOption
	if opts.storeScalers {
		if !cfg.Redis.Enabled {
			return errors.New("--store-scalers requires redis.enabled")
		}
		rdb, err := database.NewRedisConnection(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()

		ttl, err := cfg.Pipeline.ScalerTTLDuration()
		if err != nil {
			return fmt.Errorf("invalid scaler TTL: %w", err)
		}
		svcOpts = append(svcOpts, services.WithScalerStore(cache.NewRedisScalerStore(rdb.Client, ttl, logger.Logger())))
	}

	prepCfg, err := services.PreparationConfigFrom(cfg)
	if err != nil {
		return fmt.Errorf("invalid pipeline configuration: %w", err)
	}
	svc, err := services.NewPreparationService(prepCfg, logger.Logger(), svcOpts...)
	if err != nil {
		return err
	}

	batch := make([]models.PriceSeries, 0, len(opts.files))
	for _, path := range opts.files {
		series, err := ingest.ReadCSVFile(path)
		if err != nil {
			return err
		}
		batch = append(batch, series)
	}

	start := time.Now()
	results, err := svc.PrepareSymbols(ctx, batch, services.SequenceRequest{SplitDate: split})
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	symbols := make([]string, 0, len(results))
	for symbol := range results {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)

	for _, symbol := range symbols {
		result := results[symbol]
		logSummary(logger, result, elapsed)

		if opts.outDir == "" {
			continue
		}
		if err := writeJSON(logger, filepath.Join(opts.outDir, symbol+"_tree.json"), result.Tree); err != nil {
			return err
		}
		if err := writeJSON(logger, filepath.Join(opts.outDir, symbol+"_sequence.json"), result.Sequence); err != nil {
			return err
		}
	}
	return nil
}

func logSummary(logger *logging.StandardLogger, result *services.SymbolResult, elapsed time.Duration) {
	tree, seq := result.Tree, result.Sequence
	logger.LogStage(tree.Symbol, services.StageEnrich, tree.RowsCleaned, tree.Data.Features.Len(), elapsed)
	logger.LogStage(seq.Symbol, services.StageSequence, seq.RowsCleaned, seq.Train.Len(), elapsed)

	entry := logger.WithSymbol(tree.Symbol).WithField("tree_rows", tree.Data.Features.Len()).
		WithField("features", tree.Data.Features.Width()).
		WithField("train_windows", seq.Train.Len()).
		WithField("scaler_id", seq.Scaler.ID().String()).
		WithField("stored", seq.Stored)
	if seq.Test != nil {
		entry = entry.WithField("test_windows", seq.Test.Len())
	}
	entry.Info("Datasets prepared")
}

func writeJSON(logger *logging.StandardLogger, path string, v any) error {
	start := time.Now()
	data, err := json.Marshal(v)
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	logger.LogStorageOperation("write_dataset", path, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
