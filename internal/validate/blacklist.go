package validate

import (
	"sort"
	"strings"
)

// DefaultBlacklist lists domains that never yield useful contacts
var DefaultBlacklist = []string{"sentry.io", "example.com", "test.com"}

// Blacklist is a read-only set of rejected domains. Matching is exact and
// case-sensitive.
type Blacklist struct {
	domains map[string]struct{}
}

// NewBlacklist builds a blacklist from a list of domains. Surrounding
// whitespace is trimmed and empty entries are ignored.
func NewBlacklist(domains []string) *Blacklist {
	b := &Blacklist{domains: make(map[string]struct{}, len(domains))}
	for _, d := range domains {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		b.domains[d] = struct{}{}
	}
	return b
}

// Contains reports whether domain is blacklisted
func (b *Blacklist) Contains(domain string) bool {
	if b == nil {
		return false
	}
	_, ok := b.domains[domain]
	return ok
}

// Len returns the number of blacklisted domains
func (b *Blacklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.domains)
}

// Domains returns the blacklisted domains in sorted order
func (b *Blacklist) Domains() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.domains))
	for d := range b.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
