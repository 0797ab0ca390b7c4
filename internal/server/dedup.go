package server

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// dedupIndex maps blinded hashes to content identifiers. Blinded hashes
// cannot be recomputed from payload bytes (the blinding secret never reaches
// the server), so unlike the artifact index this map is persisted to disk
// rather than reconstructed on restart.
//
// The server learns nothing from a blinded hash beyond "this client scope has
// seen this payload before": distinct secrets blind the same content to
// unrelated values, so cross-user correlation is impossible.
type dedupIndex struct {
	mu      sync.Mutex
	entries map[string]string // blindedHash -> infoHash
	path    string
}

// newDedupIndex loads (or creates) the dedup index persisted at path.
func newDedupIndex(path string) (*dedupIndex, error) {
	d := &dedupIndex{
		entries: make(map[string]string),
		path:    path,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dedup index: %w", err)
	}
	if err := json.Unmarshal(data, &d.entries); err != nil {
		return nil, fmt.Errorf("parse dedup index: %w", err)
	}
	return d, nil
}

// Put records a blinded hash for an identifier and persists the index.
func (d *dedupIndex) Put(blindedHash, infoHash string) error {
	if blindedHash == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[blindedHash] = infoHash
	return d.persistLocked()
}

// Get returns the identifier recorded for a blinded hash, if any.
func (d *dedupIndex) Get(blindedHash string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	hash, ok := d.entries[blindedHash]
	return hash, ok
}

// DeleteByInfoHash removes every blinded-hash mapping that points at an
// identifier, for artifact deletion.
func (d *dedupIndex) DeleteByInfoHash(infoHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	changed := false
	for b, h := range d.entries {
		if h == infoHash {
			delete(d.entries, b)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return d.persistLocked()
}

func (d *dedupIndex) persistLocked() error {
	data, err := json.Marshal(d.entries)
	if err != nil {
		return fmt.Errorf("encode dedup index: %w", err)
	}
	if err := os.WriteFile(d.path, data, 0644); err != nil {
		return fmt.Errorf("persist dedup index: %w", err)
	}
	return nil
}
