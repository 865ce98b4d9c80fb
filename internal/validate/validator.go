package validate

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/raaihank/mailscraped/internal/extract"
)

// Validator decides whether the domain behind a candidate address is usable
type Validator struct {
	blacklist *Blacklist
	resolver  Resolver
	cache     ResultCache
	limiter   *rate.Limiter
	config    Config
	logger    *zap.Logger

	lookups     atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// Option configures optional validator collaborators
type Option func(*Validator)

// WithCache shares domain decisions across runs through cache
func WithCache(cache ResultCache) Option {
	return func(v *Validator) {
		v.cache = cache
	}
}

// New creates a validator. The blacklist is never modified after this call.
func New(blacklist *Blacklist, resolver Resolver, cfg Config, logger *zap.Logger, opts ...Option) *Validator {
	v := &Validator{
		blacklist: blacklist,
		resolver:  resolver,
		config:    cfg,
		logger:    logger,
	}

	if cfg.LookupsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		v.limiter = rate.NewLimiter(rate.Limit(cfg.LookupsPerSecond), burst)
	}

	for _, opt := range opts {
		opt(v)
	}

	logger.Info("Domain validator initialized",
		zap.Int("blacklisted_domains", blacklist.Len()),
		zap.Duration("lookup_timeout", cfg.Timeout),
		zap.Float64("lookups_per_second", cfg.LookupsPerSecond),
		zap.Bool("shared_cache", v.cache != nil),
	)

	return v
}

// Blacklist returns the validator's blacklist
func (v *Validator) Blacklist() *Blacklist {
	return v.blacklist
}

// Validate decides a single candidate address. It never fails: lookup
// errors produce a rejecting decision.
func (v *Validator) Validate(ctx context.Context, email string) Decision {
	domain, ok := extract.Domain(email)
	if !ok {
		return Decision{Email: email, Accepted: false, Reason: ReasonNoDomain, Source: SourceNone}
	}

	d := v.decideDomain(ctx, domain)
	d.Email = email
	return d
}

// Lookup issues an MX query in the background and delivers exactly one
// result on the returned channel.
func (v *Validator) Lookup(ctx context.Context, domain string) <-chan LookupResult {
	ch := make(chan LookupResult, 1)
	go func() {
		ch <- v.lookup(ctx, domain)
	}()
	return ch
}

// Stats returns counters accumulated since startup
func (v *Validator) Stats() Stats {
	return Stats{
		Lookups:     v.lookups.Load(),
		CacheHits:   v.cacheHits.Load(),
		CacheMisses: v.cacheMisses.Load(),
	}
}

// decideDomain applies the blacklist, the shared cache and finally DNS
func (v *Validator) decideDomain(ctx context.Context, domain string) Decision {
	if v.blacklist.Contains(domain) {
		return Decision{Domain: domain, Accepted: false, Reason: ReasonBlacklisted, Source: SourceBlacklist}
	}

	if v.cache != nil {
		accepted, found, err := v.cache.Get(ctx, domain)
		if err != nil {
			v.logger.Warn("Domain cache lookup failed", zap.String("domain", domain), zap.Error(err))
		} else if found {
			v.cacheHits.Add(1)
			return decisionFor(domain, accepted, SourceCache)
		} else {
			v.cacheMisses.Add(1)
		}
	}

	result := v.await(ctx, domain)
	if result.Err != nil {
		v.logger.Debug("MX lookup failed",
			zap.String("domain", domain),
			zap.Error(result.Err),
		)
	}

	if v.cache != nil && result.Definitive() {
		if err := v.cache.Set(ctx, domain, result.OK()); err != nil {
			v.logger.Warn("Failed to cache domain decision", zap.String("domain", domain), zap.Error(err))
		}
	}

	d := decisionFor(domain, result.OK(), SourceDNS)
	if result.Err != nil {
		d.Reason = ReasonLookupFailed
	}
	return d
}

// await waits for a lookup, treating caller cancellation as a failed lookup
func (v *Validator) await(ctx context.Context, domain string) LookupResult {
	select {
	case res := <-v.Lookup(ctx, domain):
		return res
	case <-ctx.Done():
		return LookupResult{Domain: domain, Err: ctx.Err()}
	}
}

func (v *Validator) lookup(ctx context.Context, domain string) LookupResult {
	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			return LookupResult{Domain: domain, Err: err}
		}
	}

	if v.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.config.Timeout)
		defer cancel()
	}

	v.lookups.Add(1)
	records, err := v.resolver.LookupMX(ctx, domain)
	return LookupResult{Domain: domain, Records: len(records), Err: err}
}

func decisionFor(domain string, accepted bool, source Source) Decision {
	reason := ReasonAccepted
	if !accepted {
		reason = ReasonNoMX
	}
	return Decision{Domain: domain, Accepted: accepted, Reason: reason, Source: source}
}
