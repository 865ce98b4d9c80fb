package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotURL is returned when the text is not an absolute http(s) URL
var ErrNotURL = errors.New("fetch: not an http(s) url")

// Config contains page fetcher configuration
type Config struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// Fetcher downloads the page behind a row's URL so emails can be extracted
// from its body
type Fetcher struct {
	client *http.Client
	config Config
	logger *zap.Logger
}

// New creates a page fetcher
func New(cfg Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		logger: logger,
	}
}

// IsURL reports whether text is a single absolute http or https URL
func IsURL(text string) bool {
	if text == "" || strings.ContainsAny(text, " \t\r\n") {
		return false
	}
	u, err := url.ParseRequestURI(text)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch returns the page body as text. Invalid UTF-8 sequences are dropped
// and the body is truncated at the configured limit.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if !IsURL(rawURL) {
		return "", ErrNotURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("failed to fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.config.MaxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, f.config.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rawURL, err)
	}

	f.logger.Debug("Page fetched",
		zap.String("url", rawURL),
		zap.Int("status_code", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)

	return strings.ToValidUTF8(string(data), ""), nil
}
