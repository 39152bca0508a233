package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
)

// PebbleStore implements Store using PebbleDB so claims survive restarts.
type PebbleStore struct {
	// mu serializes Claim's read-modify-write.
	mu sync.Mutex
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		// Claims are small and infrequent; keep the memtable modest.
		MemTableSize: 4 << 20,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func encodeEntry(e Entry) ([]byte, error) { return json.Marshal(e) }
func decodeEntry(val []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (p *PebbleStore) Claim(output, input string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := []byte(output)
	var prev Entry
	found := false
	v, closer, err := p.db.Get(k)
	switch {
	case err == nil:
		prev, err = decodeEntry(v)
		_ = closer.Close()
		if err != nil {
			return "", false, fmt.Errorf("decode entry %s: %w", output, err)
		}
		found = true
	case !errors.Is(err, pebble.ErrNotFound):
		return "", false, fmt.Errorf("pebble get: %w", err)
	}
	bytes, err := encodeEntry(Entry{Input: input, ClaimedAt: NowUnix()})
	if err != nil {
		return "", false, err
	}
	if err := p.db.Set(k, bytes, pebble.Sync); err != nil {
		return "", false, fmt.Errorf("pebble set: %w", err)
	}
	return prev.Input, found && prev.Input != input, nil
}

func (p *PebbleStore) Get(output string) (Entry, bool) {
	v, closer, err := p.db.Get([]byte(output))
	if err != nil {
		return Entry{}, false
	}
	defer closer.Close()
	e, err := decodeEntry(v)
	if err != nil {
		return Entry{}, false
	}
	return e, true
}
