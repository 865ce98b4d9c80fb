package etl

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Row is one input record: a contact name and the text or URL to scan
type Row struct {
	Line int    `json:"line"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// Entry is an accepted (name, email) pair. Emails are unique within a run.
type Entry struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RunStats tracks what happened during one run
type RunStats struct {
	RowsRead      int64         `json:"rows_read"`
	RowsSkipped   int64         `json:"rows_skipped"`
	Candidates    int64         `json:"candidates"`
	Duplicates    int64         `json:"duplicates"`
	Rejected      int64         `json:"rejected"`
	Blacklisted   int64         `json:"blacklisted"`
	Accepted      int64         `json:"accepted"`
	Lookups       int64         `json:"lookups"`
	Reused        int64         `json:"reused_decisions"`
	FetchFailures int64         `json:"fetch_failures"`
	Duration      time.Duration `json:"duration"`
}

// RunResult is the outcome of a successful run
type RunResult struct {
	RunID   string   `json:"run_id"`
	File    string   `json:"file"`
	Entries []Entry  `json:"results"`
	Stats   RunStats `json:"stats"`
}

// Config contains pipeline configuration
type Config struct {
	OutputPrefix  string        `yaml:"output_prefix" mapstructure:"output_prefix"`
	SkipHeader    bool          `yaml:"skip_header" mapstructure:"skip_header"`
	Prefetch      bool          `yaml:"prefetch" mapstructure:"prefetch"`
	ProgressEvery int           `yaml:"progress_every" mapstructure:"progress_every"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	DryRun        bool          `yaml:"dry_run" mapstructure:"dry_run"`
}

// FileFormat represents supported input formats
type FileFormat string

const (
	FormatUnknown FileFormat = ""
	FormatCSV     FileFormat = "csv"
	FormatXLSX    FileFormat = "xlsx"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatUnknown
	}
}

// ParseFileFormat parses a format name such as "csv" or "xlsx"
func ParseFileFormat(name string) (FileFormat, error) {
	switch f := FileFormat(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatCSV, FormatXLSX, FormatParquet, FormatJSON:
		return f, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// ArtifactName returns the output file name for a run
func ArtifactName(prefix, runID string) string {
	if prefix == "" {
		prefix = "emails"
	}
	return fmt.Sprintf("%s-%s.csv", prefix, runID)
}
