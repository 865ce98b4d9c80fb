// Package app wires configuration into the collaborators shared by the
// server and the offline extractor.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/mailscraped/internal/cache"
	"github.com/raaihank/mailscraped/internal/config"
	"github.com/raaihank/mailscraped/internal/etl"
	"github.com/raaihank/mailscraped/internal/extract"
	"github.com/raaihank/mailscraped/internal/fetch"
	"github.com/raaihank/mailscraped/internal/logger"
	"github.com/raaihank/mailscraped/internal/storage"
	"github.com/raaihank/mailscraped/internal/validate"
)

// Services holds everything a run needs
type Services struct {
	Extractor   *extract.Extractor
	Validator   *validate.Validator
	DomainCache *cache.DomainCache
	Store       *storage.Local
	Fetcher     *fetch.Fetcher
}

// Options override parts of the configuration or inject collaborators
type Options struct {
	// Resolver replaces the network resolver, mainly for tests.
	Resolver validate.Resolver
	// OutputDir replaces output.dir when set.
	OutputDir string
}

// Close releases external connections
func (s *Services) Close() {
	if s.DomainCache != nil {
		s.DomainCache.Close()
	}
}

// NewServices builds the shared services from cfg. The blacklist is fixed
// here for the lifetime of the process.
func NewServices(cfg *config.Config, log *logger.Logger, opts Options) (*Services, error) {
	s := &Services{Extractor: extract.New()}

	var validatorOpts []validate.Option
	if cfg.Validation.Cache.Enabled {
		log.Info("Connecting to domain cache")
		dc, err := cache.NewDomainCache(&cache.Config{
			Enabled:        true,
			RedisURL:       cfg.Validation.Cache.RedisURL,
			MaxConnections: cfg.Validation.Cache.MaxConnections,
			MinIdleConns:   cfg.Validation.Cache.MinIdleConns,
			DefaultTTL:     cfg.Validation.Cache.DefaultTTL,
			KeyPrefix:      cfg.Validation.Cache.KeyPrefix,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize domain cache: %w", err)
		}
		s.DomainCache = dc
		validatorOpts = append(validatorOpts, validate.WithCache(dc))
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = validate.NewNetResolver(cfg.Validation.DNS.Nameserver, cfg.Validation.DNS.Timeout)
	}

	s.Validator = validate.New(
		validate.NewBlacklist(cfg.Validation.Blacklist),
		resolver,
		validate.Config{
			Timeout:          cfg.Validation.DNS.Timeout,
			Concurrency:      cfg.Validation.DNS.Concurrency,
			LookupsPerSecond: cfg.Validation.DNS.LookupsPerSecond,
			Burst:            cfg.Validation.DNS.Burst,
		},
		log.WithComponent("validate").Logger,
		validatorOpts...,
	)

	outputDir := cfg.Output.Dir
	if opts.OutputDir != "" {
		outputDir = opts.OutputDir
	}
	store, err := storage.NewLocal(storage.LocalConfig{BasePath: outputDir})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize output directory: %w", err)
	}
	s.Store = store

	if cfg.Fetch.Enabled {
		s.Fetcher = fetch.New(fetch.Config{
			Enabled:      true,
			Timeout:      cfg.Fetch.Timeout,
			UserAgent:    cfg.Fetch.UserAgent,
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		}, log.WithComponent("fetch").Logger)
	}

	log.Info("Services initialized",
		zap.String("output_dir", store.BasePath()),
		zap.Int("blacklisted_domains", s.Validator.Blacklist().Len()),
		zap.Bool("domain_cache", s.DomainCache != nil),
		zap.Bool("fetch_enabled", s.Fetcher != nil),
	)

	return s, nil
}

// NewPipeline returns a pipeline over these services
func (s *Services) NewPipeline(cfg *etl.Config, log *logger.Logger, reporter etl.Reporter) *etl.Pipeline {
	var opts []etl.Option
	if s.Fetcher != nil {
		opts = append(opts, etl.WithFetcher(s.Fetcher, fetch.IsURL))
	}
	if reporter != nil {
		opts = append(opts, etl.WithReporter(reporter))
	}
	return etl.NewPipeline(s.Extractor, s.Validator, s.Store, cfg, log.WithComponent("etl").Logger, opts...)
}

// PipelineConfig derives the run settings from cfg
func PipelineConfig(cfg *config.Config) *etl.Config {
	return &etl.Config{
		OutputPrefix:  cfg.Output.FilePrefix,
		SkipHeader:    cfg.Input.SkipHeader,
		Prefetch:      cfg.Run.Prefetch,
		ProgressEvery: cfg.Run.ProgressEvery,
		Timeout:       cfg.Run.Timeout,
	}
}

// CacheStats returns Redis cache statistics when the cache is enabled
func (s *Services) CacheStats(ctx context.Context) (*cache.CacheStats, error) {
	if s.DomainCache == nil {
		return nil, fmt.Errorf("domain cache is not enabled")
	}
	return s.DomainCache.GetStats(ctx)
}
