package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotSeeding indicates the requested identifier is not held by this swarm
// client. Callers fall through to the next transport tier.
var ErrNotSeeding = errors.New("not seeding")

// PublishResult is the outcome of publishing a payload to the swarm.
type PublishResult struct {
	InfoHash       string
	MagnetURI      string
	AlreadySeeding bool
}

// Client is the injected handle to a swarm engine. The identifier returned by
// Publish is available immediately, even before any peer connects.
type Client interface {
	// Publish makes the payload available under its content identifier.
	// Publishing bit-identical content twice returns the same identifier
	// with AlreadySeeding set; the payload is never double-seeded.
	Publish(ctx context.Context, name string, data []byte) (*PublishResult, error)

	// Fetch retrieves the payload for an identifier, or ErrNotSeeding.
	Fetch(ctx context.Context, infoHash string) ([]byte, error)

	// Has reports whether the identifier is currently seeded.
	Has(infoHash string) bool
}

// Seeder is an in-process swarm client. It derives identifiers locally from
// payload bytes and keeps seeded payloads in memory, so published content is
// fetchable for the lifetime of the process.
type Seeder struct {
	mu       sync.RWMutex
	payloads map[string]seeded
	trackers []string
}

type seeded struct {
	name string
	data []byte
}

// NewSeeder creates a Seeder whose magnet URIs reference the given trackers.
func NewSeeder(trackers []string) *Seeder {
	return &Seeder{
		payloads: make(map[string]seeded),
		trackers: trackers,
	}
}

func (s *Seeder) Publish(ctx context.Context, name string, data []byte) (*PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, err := InfoHash(name, data)
	if err != nil {
		return nil, fmt.Errorf("derive identifier: %w", err)
	}

	s.mu.Lock()
	_, exists := s.payloads[hash]
	if !exists {
		buf := make([]byte, len(data))
		copy(buf, data)
		s.payloads[hash] = seeded{name: name, data: buf}
	}
	s.mu.Unlock()

	return &PublishResult{
		InfoHash:       hash,
		MagnetURI:      Magnet(hash, name, s.trackers),
		AlreadySeeding: exists,
	}, nil
}

func (s *Seeder) Fetch(ctx context.Context, infoHash string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	p, ok := s.payloads[infoHash]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", infoHash, ErrNotSeeding)
	}

	buf := make([]byte, len(p.data))
	copy(buf, p.data)
	return buf, nil
}

func (s *Seeder) Has(infoHash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.payloads[infoHash]
	return ok
}

// Remove stops seeding an identifier. Other peers holding the payload are
// unaffected.
func (s *Seeder) Remove(infoHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.payloads, infoHash)
}

// Seeding returns the identifiers currently held, for tracker announces.
func (s *Seeder) Seeding() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hashes := make([]string, 0, len(s.payloads))
	for h := range s.payloads {
		hashes = append(hashes, h)
	}
	return hashes
}
