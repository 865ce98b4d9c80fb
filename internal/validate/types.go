package validate

import (
	"context"
	"errors"
	"net"
	"time"
)

// Resolver performs mail-exchange lookups. *net.Resolver satisfies it.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// ResultCache stores domain decisions across runs
type ResultCache interface {
	Get(ctx context.Context, domain string) (accepted bool, found bool, err error)
	Set(ctx context.Context, domain string, accepted bool) error
}

// Reason explains a validation decision
type Reason string

const (
	ReasonAccepted     Reason = "accepted"
	ReasonNoDomain     Reason = "no_domain"
	ReasonBlacklisted  Reason = "blacklisted"
	ReasonNoMX         Reason = "no_mx"
	ReasonLookupFailed Reason = "lookup_failed"
)

// Source records where a decision came from
type Source string

const (
	SourceNone      Source = "none"
	SourceBlacklist Source = "blacklist"
	SourceCache     Source = "cache"
	SourceDNS       Source = "dns"
	SourceSession   Source = "session"
)

// Decision is the outcome of validating one candidate address
type Decision struct {
	Email    string `json:"email,omitempty"`
	Domain   string `json:"domain"`
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason"`
	Source   Source `json:"source"`
}

// LookupResult is the outcome of a single MX query
type LookupResult struct {
	Domain  string
	Records int
	Err     error
}

// OK reports whether the lookup completed and returned at least one record
func (r LookupResult) OK() bool {
	return r.Err == nil && r.Records > 0
}

// Definitive reports whether the result can be cached. Timeouts and
// network errors are transient; NXDOMAIN and empty answers are not.
func (r LookupResult) Definitive() bool {
	if r.Err == nil {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(r.Err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	return false
}

// Config contains validator configuration
type Config struct {
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Concurrency      int           `yaml:"concurrency" mapstructure:"concurrency"`
	LookupsPerSecond float64       `yaml:"lookups_per_second" mapstructure:"lookups_per_second"`
	Burst            int           `yaml:"burst" mapstructure:"burst"`
}

// Stats tracks validator activity across all runs
type Stats struct {
	Lookups     int64 `json:"lookups"`
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
}
