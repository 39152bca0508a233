// Package ledger remembers which input file last produced each output
// document so that overwrites between inputs can be detected.
package ledger

import (
	"sync"
	"time"
)

// Entry records the input that last claimed an output document.
type Entry struct {
	Input     string `json:"input"`
	ClaimedAt int64  `json:"claimedAt"`
}

// Store abstracts the ledger backend.
type Store interface {
	// Claim records input as the owner of output. It reports the previous
	// owner and whether that owner was a different input.
	Claim(output, input string) (previous string, collided bool, err error)
	Get(output string) (Entry, bool)
	Close() error
}

// NowUnix returns current time in epoch seconds. Split for testability.
var NowUnix = func() int64 { return time.Now().UTC().Unix() }

// InMemoryStore is a thread-safe map store. Its content does not survive a
// restart.
type InMemoryStore struct {
	mu   sync.Mutex
	data map[string]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]Entry)}
}

func (s *InMemoryStore) Claim(output, input string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.data[output]
	s.data[output] = Entry{Input: input, ClaimedAt: NowUnix()}
	return prev.Input, ok && prev.Input != input, nil
}

func (s *InMemoryStore) Get(output string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[output]
	return e, ok
}

func (s *InMemoryStore) Close() error { return nil }
