package store

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/obsidianstack/trapbridge/internal/trap"
)

// Source is what the daemon knows about one notification sender.
type Source struct {
	Address   string    `json:"address"`
	Hostname  string    `json:"hostname"`
	Domain    string    `json:"domain"`
	LastTrap  string    `json:"last_trap"`
	Received  uint64    `json:"received"`
	Matched   uint64    `json:"matched"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Store is a thread-safe in-memory table of trap sources, keyed by address.
// A background goroutine (Run) periodically evicts sources that have not
// sent anything within the configured TTL. A zero TTL keeps sources forever.
type Store struct {
	mu     sync.RWMutex
	data   map[string]*Source
	ttl    time.Duration
	now    func() time.Time // injectable for deterministic tests
	logger *slog.Logger
}

// New creates a Store with the given TTL.
func New(ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		data:   make(map[string]*Source),
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "store"),
	}
}

// Record counts rec against its source and refreshes the source's names.
func (s *Store) Record(rec *trap.Record, matched bool) {
	addr := rec.Source()
	host, _ := rec.Property(trap.PropHostname)
	domain, _ := rec.Property(trap.PropDomain)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.data[addr]
	if !ok {
		src = &Source{Address: addr, FirstSeen: now}
		s.data[addr] = src
	}
	src.Hostname = host
	src.Domain = domain
	src.LastTrap = rec.Identifier().String()
	src.LastSeen = now
	src.Received++
	if matched {
		src.Matched++
	}
}

// Get returns a copy of the Source for addr. The entry may be stale if the
// TTL has elapsed.
func (s *Store) Get(addr string) (Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.data[addr]
	if !ok {
		return Source{}, false
	}
	return *src, true
}

// List returns copies of all live sources, sorted by address.
// Stale entries that have not yet been evicted are excluded.
func (s *Store) List() []Source {
	s.mu.RLock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Source, 0, len(s.data))
	for _, src := range s.data {
		if s.ttl <= 0 || src.LastSeen.After(cutoff) {
			out = append(out, *src)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Source) int { return strings.Compare(a.Address, b.Address) })
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes sources whose LastSeen is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for addr, src := range s.data {
		if !src.LastSeen.After(cutoff) {
			delete(s.data, addr)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second). Run blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := max(s.ttl/2, time.Second)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				s.logger.Debug("evicted stale sources", "count", n)
			}
		}
	}
}
