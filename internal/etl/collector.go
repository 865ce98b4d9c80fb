package etl

// Collector keeps the accepted entries of a single run in first-seen order.
// It is not safe for concurrent use and must not outlive its run.
type Collector struct {
	seen    map[string]struct{}
	entries []Entry
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{seen: make(map[string]struct{})}
}

// Add appends (name, email) if the address was accepted and has not been
// collected before. It reports whether the entry was appended.
func (c *Collector) Add(name, email string, accepted bool) bool {
	if !accepted {
		return false
	}
	if _, ok := c.seen[email]; ok {
		return false
	}
	c.seen[email] = struct{}{}
	c.entries = append(c.entries, Entry{Name: name, Email: email})
	return true
}

// Seen reports whether email has already been collected
func (c *Collector) Seen(email string) bool {
	_, ok := c.seen[email]
	return ok
}

// Len returns the number of collected entries
func (c *Collector) Len() int {
	return len(c.entries)
}

// Entries returns the collected entries in insertion order
func (c *Collector) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}
