package position

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when the symbol has no open position in the store.
	ErrNotFound = errors.New("position: not found")
	// ErrStaleVersion is returned by Commit when the position changed between
	// the caller's read and its commit. The caller must re-read and decide again.
	ErrStaleVersion = errors.New("position: stale version")
	// ErrAlreadyOpen is returned by Open when a position for the symbol exists.
	ErrAlreadyOpen = errors.New("position: already open")
)

type entry struct {
	pos     Position
	version uint64
}

// Store is the single shared source of truth for positions the bot believes
// are open, keyed by symbol.
//
// Reads return copies, never pointers into the table. Mutation happens only
// through Commit, which enforces optimistic concurrency: a caller reads a
// position together with its version, computes off-lock (including any
// exchange call), and commits with the version it read. If another writer got
// there first the commit fails with ErrStaleVersion and nothing is changed.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Open creates a position. It fails if the symbol already has one; the
// synchronizer resolves such conflicts with the exchange as authority.
func (s *Store) Open(pos Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[pos.Symbol]; ok {
		return ErrAlreadyOpen
	}
	if pos.Extreme == 0 {
		pos.Extreme = pos.EntryPrice
	}
	if pos.State == "" {
		pos.State = StateInactive
	}
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = time.Now().UTC()
	}
	pos.UpdatedAt = pos.OpenedAt
	s.entries[pos.Symbol] = &entry{pos: pos, version: 1}
	return nil
}

// Get returns a copy of the position and the version to commit against.
func (s *Store) Get(symbol string) (Position, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[symbol]
	if !ok {
		return Position{}, 0, false
	}
	return e.pos, e.version, true
}

// Active returns copies of all open positions, ordered by symbol so callers
// iterate deterministically.
func (s *Store) Active() []Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Position, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Versioned returns copies of all open positions together with their versions.
func (s *Store) Versioned() map[string]struct {
	Pos     Position
	Version uint64
} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct {
		Pos     Position
		Version uint64
	}, len(s.entries))
	for sym, e := range s.entries {
		out[sym] = struct {
			Pos     Position
			Version uint64
		}{e.pos, e.version}
	}
	return out
}

// Commit applies mutate to the position iff it is still at the given version.
// The mutation runs under the write lock and must be fast and side-effect
// free; exchange calls belong outside, before Commit.
func (s *Store) Commit(symbol string, version uint64, mutate func(*Position)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[symbol]
	if !ok {
		return ErrNotFound
	}
	if e.version != version {
		return ErrStaleVersion
	}
	mutate(&e.pos)
	e.pos.UpdatedAt = time.Now().UTC()
	e.version++
	return nil
}

// Remove deletes the position and returns its final state. The boolean is
// false when the symbol was not present, which lets callers report a closure
// exactly once even if two reconciliation passes race.
func (s *Store) Remove(symbol string) (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[symbol]
	if !ok {
		return Position{}, false
	}
	delete(s.entries, symbol)
	return e.pos, true
}

// Len returns the number of open positions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
