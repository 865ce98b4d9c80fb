package etl

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raaihank/mailscraped/internal/extract"
	"github.com/raaihank/mailscraped/internal/storage"
	"github.com/raaihank/mailscraped/internal/validate"
)

// Reporter receives run lifecycle events
type Reporter interface {
	RunStarted(runID, filename string)
	RunProgress(runID string, stats RunStats)
	RunCompleted(result *RunResult)
	RunFailed(runID string, err error)
}

// PageFetcher returns the text behind a URL
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// RunInput is one uploaded file
type RunInput struct {
	Filename string
	Format   FileFormat
	Body     io.Reader
}

// Pipeline turns uploaded rows into a deduplicated list of valid emails
type Pipeline struct {
	extractor *extract.Extractor
	validator *validate.Validator
	store     *storage.Local
	fetcher   PageFetcher
	isURL     func(string) bool
	reporter  Reporter
	config    *Config
	logger    *zap.Logger
}

// Option configures optional pipeline collaborators
type Option func(*Pipeline)

// WithFetcher scans the page behind URL rows instead of the URL text.
// isURL decides which rows are URLs.
func WithFetcher(f PageFetcher, isURL func(string) bool) Option {
	return func(p *Pipeline) {
		p.fetcher = f
		p.isURL = isURL
	}
}

// WithReporter sends run events to r
func WithReporter(r Reporter) Option {
	return func(p *Pipeline) {
		p.reporter = r
	}
}

// NewPipeline creates a new pipeline
func NewPipeline(
	extractor *extract.Extractor,
	validator *validate.Validator,
	store *storage.Local,
	config *Config,
	logger *zap.Logger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		extractor: extractor,
		validator: validator,
		store:     store,
		reporter:  nopReporter{},
		config:    config,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes one input end to end. On success the artifact has been
// written and the result lists the accepted entries in first-seen order.
// A *ParseError or *WriteError aborts the run without producing output; the
// returned result then carries only the run ID and the counters so far.
func (p *Pipeline) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	runID := uuid.NewString()

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	logger := p.logger.With(zap.String("run_id", runID), zap.String("file", in.Filename))
	logger.Info("Run started", zap.String("format", string(in.Format)))
	p.reporter.RunStarted(runID, in.Filename)

	start := time.Now()
	entries, stats, err := p.collect(ctx, runID, in, logger)
	stats.Duration = time.Since(start)
	if err != nil {
		logger.Error("Run failed",
			zap.Error(err),
			zap.Int64("rows_read", stats.RowsRead),
		)
		p.reporter.RunFailed(runID, err)
		return &RunResult{RunID: runID, Stats: stats}, err
	}

	result := &RunResult{RunID: runID, Entries: entries, Stats: stats}

	if !p.config.DryRun {
		name := ArtifactName(p.config.OutputPrefix, runID)
		err := p.store.Write(name, func(w io.Writer) error {
			return WriteResults(w, entries)
		})
		if err != nil {
			werr := &WriteError{File: name, Err: err}
			logger.Error("Run failed", zap.Error(werr))
			p.reporter.RunFailed(runID, werr)
			return &RunResult{RunID: runID, Stats: stats}, werr
		}
		result.File = name
	}

	logger.Info("Run completed",
		zap.String("artifact", result.File),
		zap.Int64("rows_read", stats.RowsRead),
		zap.Int64("rows_skipped", stats.RowsSkipped),
		zap.Int64("candidates", stats.Candidates),
		zap.Int64("accepted", stats.Accepted),
		zap.Int64("rejected", stats.Rejected),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("lookups", stats.Lookups),
		zap.Duration("duration", stats.Duration),
	)
	p.reporter.RunCompleted(result)

	return result, nil
}

// collect reads every row and feeds its candidates through validation and
// deduplication
func (p *Pipeline) collect(ctx context.Context, runID string, in RunInput, logger *zap.Logger) ([]Entry, RunStats, error) {
	var stats RunStats

	reader, err := NewRowReader(in.Body, in.Format, ReaderOptions{SkipHeader: p.config.SkipHeader})
	if err != nil {
		return nil, stats, err
	}
	defer reader.Close()

	session := p.validator.NewSession()
	collector := NewCollector()

	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, err
		}
		stats.RowsRead++

		candidates := p.extractor.Extract(p.rowText(ctx, row, &stats, logger))
		stats.Candidates += int64(len(candidates))

		if p.config.Prefetch && len(candidates) > 1 {
			session.Prefetch(ctx, unseen(collector, candidates))
		}

		for _, email := range candidates {
			if collector.Seen(email) {
				stats.Duplicates++
				continue
			}

			decision := session.Validate(ctx, email)
			if !decision.Accepted {
				stats.Rejected++
				if decision.Reason == validate.ReasonBlacklisted {
					stats.Blacklisted++
				}
				logger.Debug("Candidate rejected",
					zap.Int("line", row.Line),
					zap.String("email", email),
					zap.String("reason", string(decision.Reason)),
				)
				continue
			}
			collector.Add(row.Name, email, true)
		}

		if p.config.ProgressEvery > 0 && stats.RowsRead%int64(p.config.ProgressEvery) == 0 {
			stats.Accepted = int64(collector.Len())
			logger.Info("Run progress",
				zap.Int64("rows_read", stats.RowsRead),
				zap.Int64("accepted", stats.Accepted),
			)
			p.reporter.RunProgress(runID, stats)
		}
	}

	stats.RowsSkipped = reader.Skipped()
	stats.Accepted = int64(collector.Len())
	stats.Lookups = session.Lookups()
	stats.Reused = session.Reused()

	return collector.Entries(), stats, nil
}

// rowText returns the text to scan for a row, fetching the page when the
// row holds a URL and fetching is enabled
func (p *Pipeline) rowText(ctx context.Context, row Row, stats *RunStats, logger *zap.Logger) string {
	if p.fetcher == nil || p.isURL == nil || !p.isURL(row.Text) {
		return row.Text
	}

	body, err := p.fetcher.Fetch(ctx, row.Text)
	if err != nil {
		stats.FetchFailures++
		logger.Warn("Skipping row, page fetch failed",
			zap.Int("line", row.Line),
			zap.String("url", row.Text),
			zap.Error(err),
		)
		return ""
	}
	return body
}

func unseen(c *Collector, emails []string) []string {
	out := make([]string, 0, len(emails))
	for _, email := range emails {
		if !c.Seen(email) {
			out = append(out, email)
		}
	}
	return out
}

type nopReporter struct{}

func (nopReporter) RunStarted(string, string)   {}
func (nopReporter) RunProgress(string, RunStats) {}
func (nopReporter) RunCompleted(*RunResult)      {}
func (nopReporter) RunFailed(string, error)      {}
