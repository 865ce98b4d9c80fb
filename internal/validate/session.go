package validate

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/raaihank/mailscraped/internal/extract"
)

// Session caches domain decisions for the lifetime of one run. It must not
// be shared between runs.
type Session struct {
	validator *Validator

	mu        sync.Mutex
	decisions map[string]Decision

	lookups atomic.Int64
	reused  atomic.Int64
}

// NewSession starts a per-run decision cache
func (v *Validator) NewSession() *Session {
	return &Session{
		validator: v,
		decisions: make(map[string]Decision),
	}
}

// Validate decides email, reusing an earlier decision for the same domain
func (s *Session) Validate(ctx context.Context, email string) Decision {
	domain, ok := extract.Domain(email)
	if !ok {
		return Decision{Email: email, Accepted: false, Reason: ReasonNoDomain, Source: SourceNone}
	}

	if d, ok := s.get(domain); ok {
		s.reused.Add(1)
		d.Email = email
		d.Source = SourceSession
		return d
	}

	d := s.decide(ctx, domain)
	d.Email = email
	return d
}

// Prefetch resolves the distinct, not yet decided domains of emails
// concurrently. Decisions land in the session cache; order is irrelevant.
func (s *Session) Prefetch(ctx context.Context, emails []string) {
	pending := make(map[string]struct{})
	for _, email := range emails {
		domain, ok := extract.Domain(email)
		if !ok {
			continue
		}
		if _, ok := s.get(domain); ok {
			continue
		}
		if s.validator.blacklist.Contains(domain) {
			continue
		}
		pending[domain] = struct{}{}
	}

	if len(pending) < 2 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	if limit := s.validator.config.Concurrency; limit > 0 {
		g.SetLimit(limit)
	}

	for domain := range pending {
		g.Go(func() error {
			s.decide(gctx, domain)
			return nil
		})
	}
	_ = g.Wait()
}

// Lookups returns the number of decisions this session had to compute
func (s *Session) Lookups() int64 {
	return s.lookups.Load()
}

// Reused returns the number of decisions served from the session cache
func (s *Session) Reused() int64 {
	return s.reused.Load()
}

func (s *Session) decide(ctx context.Context, domain string) Decision {
	d := s.validator.decideDomain(ctx, domain)
	if d.Source == SourceDNS {
		s.lookups.Add(1)
	}

	s.mu.Lock()
	s.decisions[domain] = d
	s.mu.Unlock()
	return d
}

func (s *Session) get(domain string) (Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[domain]
	return d, ok
}
