package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/raaihank/mailscraped/internal/app"
	"github.com/raaihank/mailscraped/internal/config"
	"github.com/raaihank/mailscraped/internal/etl"
	"github.com/raaihank/mailscraped/internal/logger"
)

func main() {
	var (
		configPath  = pflag.String("config", "", "Configuration file path")
		inputFile   = pflag.String("input", "", "Input file (CSV, XLSX, Parquet, or JSON lines)")
		outputDir   = pflag.String("output-dir", "", "Directory for the result file (default: output.dir)")
		format      = pflag.String("format", "", "Input format, detected from the extension when empty")
		skipHeader  = pflag.Bool("skip-header", false, "Drop the first row of the input")
		concurrency = pflag.Int("concurrency", 0, "Concurrent MX lookups (default: validation.dns.concurrency)")
		fetchPages  = pflag.Bool("fetch", false, "Fetch URL rows and extract from the page body")
		dryRun      = pflag.Bool("dry-run", false, "Print results to stdout instead of writing a file")
		showStats   = pflag.Bool("stats", false, "Show domain cache statistics and exit")
		clearCache  = pflag.Bool("clear-cache", false, "Clear the domain cache and exit")
	)
	pflag.Parse()

	if *inputFile == "" && !*showStats && !*clearCache {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input contacts.csv\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input leads.xlsx --skip-header --dry-run\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if pflag.CommandLine.Changed("skip-header") {
		cfg.Input.SkipHeader = *skipHeader
	}
	if *concurrency > 0 {
		cfg.Validation.DNS.Concurrency = *concurrency
	}
	if *fetchPages {
		cfg.Fetch.Enabled = true
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	// Dry runs print results on stdout, so logging is silenced there.
	if *dryRun {
		log = logger.NewNop()
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling run...")
		cancel()
	}()

	services, err := app.NewServices(cfg, log, app.Options{OutputDir: *outputDir})
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	switch {
	case *showStats:
		if err := printCacheStats(ctx, services); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
	case *clearCache:
		if services.DomainCache == nil {
			log.Fatal("Domain cache is not enabled")
		}
		if err := services.DomainCache.Clear(ctx); err != nil {
			log.Fatal("Failed to clear cache", zap.Error(err))
		}
		log.Info("Domain cache cleared")
	default:
		if err := processFile(ctx, cfg, services, *inputFile, *format, *dryRun, log); err != nil {
			log.Error("Extraction failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
			os.Exit(1)
		}
	}
}

// processFile runs the pipeline over a local file
func processFile(ctx context.Context, cfg *config.Config, services *app.Services, inputFile, formatName string, dryRun bool, log *logger.Logger) error {
	format := etl.DetectFileFormat(inputFile)
	if formatName != "" {
		var err error
		if format, err = etl.ParseFileFormat(formatName); err != nil {
			return err
		}
	}
	if format == etl.FormatUnknown {
		return fmt.Errorf("%w: %s (use --format)", etl.ErrUnsupportedFormat, filepath.Ext(inputFile))
	}

	f, err := os.Open(inputFile)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	pipelineConfig := app.PipelineConfig(cfg)
	pipelineConfig.DryRun = dryRun
	pipeline := services.NewPipeline(pipelineConfig, log, nil)

	result, err := pipeline.Run(ctx, etl.RunInput{
		Filename: filepath.Base(inputFile),
		Format:   format,
		Body:     f,
	})
	if err != nil {
		return err
	}

	if dryRun {
		return etl.WriteResults(os.Stdout, result.Entries)
	}

	fmt.Printf("\n=== Extraction Summary ===\n")
	fmt.Printf("Run ID:             %s\n", result.RunID)
	fmt.Printf("Result File:        %s\n", filepath.Join(services.Store.BasePath(), result.File))
	fmt.Printf("Rows Read:          %d\n", result.Stats.RowsRead)
	fmt.Printf("Rows Skipped:       %d\n", result.Stats.RowsSkipped)
	fmt.Printf("Candidates:         %d\n", result.Stats.Candidates)
	fmt.Printf("Accepted:           %d\n", result.Stats.Accepted)
	fmt.Printf("Rejected:           %d (blacklisted %d)\n", result.Stats.Rejected, result.Stats.Blacklisted)
	fmt.Printf("Duplicates:         %d\n", result.Stats.Duplicates)
	fmt.Printf("MX Lookups:         %d\n", result.Stats.Lookups)
	if cfg.Fetch.Enabled {
		fmt.Printf("Fetch Failures:     %d\n", result.Stats.FetchFailures)
	}
	fmt.Printf("Duration:           %v\n", result.Stats.Duration)

	return nil
}

// printCacheStats displays domain cache statistics
func printCacheStats(ctx context.Context, services *app.Services) error {
	stats, err := services.CacheStats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== Domain Cache Statistics ===\n")
	fmt.Printf("Cached Domains:     %d\n", stats.TotalKeys)
	fmt.Printf("Cache Hits:         %d\n", stats.Hits)
	fmt.Printf("Cache Misses:       %d\n", stats.Misses)
	fmt.Printf("Hit Rate:           %.1f%%\n", stats.HitRate)
	fmt.Printf("Memory Usage:       %.2f MB\n", float64(stats.MemoryUsage)/1024/1024)

	return nil
}
