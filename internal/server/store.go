package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-systems/driftvault/internal/mirror"
	"github.com/halcyon-systems/driftvault/internal/swarm"
)

// Mirror states for an artifact's durable-tier copy.
const (
	MirrorPending  = "pending"
	MirrorDone     = "mirrored"
	MirrorFailed   = "mirror-failed"
	MirrorDisabled = "disabled"
)

// ErrArtifactNotFound indicates no tier could produce the requested bytes.
var ErrArtifactNotFound = errors.New("artifact not found")

// Artifact is one unique payload tracked by the store. Duplicate uploads of
// bit-identical payloads collapse to one Artifact with several disk paths.
type Artifact struct {
	InfoHash    string   `json:"infoHash"`
	Name        string   `json:"name"`
	Size        int64    `json:"size"`
	MagnetURI   string   `json:"magnetURI"`
	MirrorState string   `json:"mirrorState"`
	CreatedAt   int64    `json:"createdAt"`
	Paths       []string `json:"-"`
}

// Store is the server-side content-addressable store: an in-memory identifier
// index over on-disk payloads, seeded to the swarm and mirrored to durable
// object storage in the background.
//
// The index map is the only cross-client shared mutable state; every access
// goes through the mutex so simultaneous uploads of identical content
// serialize on the same identifier instead of double-publishing.
type Store struct {
	mu        sync.Mutex
	artifacts map[string]*Artifact

	dir    string
	swarm  swarm.Client
	mirror mirror.ObjectStore // nil disables the durable tier
}

// NewStore creates a Store over dir, creating it if needed.
func NewStore(dir string, sw swarm.Client, obj mirror.ObjectStore) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Store{
		artifacts: make(map[string]*Artifact),
		dir:       dir,
		swarm:     sw,
		mirror:    obj,
	}, nil
}

// Add ingests an uploaded payload: persist to disk, derive the content
// identifier from the bytes, publish to the swarm on a genuine miss, and kick
// off the background mirror. Returns the artifact and whether an identical
// payload was already published.
func (s *Store) Add(ctx context.Context, name string, data []byte) (*Artifact, bool, error) {
	sanitized := swarm.SanitizeName(name)

	path := filepath.Join(s.dir, uuid.New().String()+"_"+sanitized)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, false, fmt.Errorf("persist upload: %w", err)
	}

	// The identifier is computed from the bytes before any publish, so the
	// index can be consulted without interpreting swarm errors.
	hash, err := swarm.InfoHash(sanitized, data)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	if existing, ok := s.artifacts[hash]; ok {
		existing.Paths = append(existing.Paths, path)
		s.mu.Unlock()
		return existing, true, nil
	}

	a := &Artifact{
		InfoHash:    hash,
		Name:        sanitized,
		Size:        int64(len(data)),
		MirrorState: MirrorPending,
		CreatedAt:   time.Now().Unix(),
		Paths:       []string{path},
	}
	if s.mirror == nil {
		a.MirrorState = MirrorDisabled
	}
	s.artifacts[hash] = a
	s.mu.Unlock()

	res, err := s.swarm.Publish(ctx, sanitized, data)
	if err != nil {
		s.mu.Lock()
		delete(s.artifacts, hash)
		s.mu.Unlock()
		os.Remove(path)
		return nil, false, fmt.Errorf("publish to swarm: %w", err)
	}

	s.mu.Lock()
	a.MagnetURI = res.MagnetURI
	s.mu.Unlock()

	if s.mirror != nil {
		go s.mirrorArtifact(hash, sanitized, data)
	}

	return a, false, nil
}

// Get retrieves an artifact's metadata by identifier.
func (s *Store) Get(infoHash string) (*Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[infoHash]
	return a, ok
}

// List returns all known artifacts.
func (s *Store) List() []*Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Artifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, a)
	}
	return out
}

// Read returns an artifact's payload bytes, trying each tier in order: the
// primary disk path, any alternate path, the swarm client's own copy, then a
// durable-mirror probe by identifier prefix. Only when every tier is
// exhausted does it report ErrArtifactNotFound.
func (s *Store) Read(ctx context.Context, infoHash string) ([]byte, string, error) {
	s.mu.Lock()
	a, ok := s.artifacts[infoHash]
	var paths []string
	var name string
	if ok {
		paths = append(paths, a.Paths...)
		name = a.Name
	}
	s.mu.Unlock()

	for _, p := range paths {
		if data, err := os.ReadFile(p); err == nil {
			return data, name, nil
		}
	}

	if data, err := s.swarm.Fetch(ctx, infoHash); err == nil {
		return data, name, nil
	}

	if s.mirror != nil {
		if data, err := s.mirror.ProbePrefix(ctx, infoHash); err == nil {
			if name == "" {
				name = infoHash
			}
			return data, name, nil
		}
	}

	return nil, "", fmt.Errorf("read %s: %w", infoHash, ErrArtifactNotFound)
}

// Delete removes the artifact and its tracked disk paths. Other peers may
// still seed the payload, and the durable mirror keeps its copy.
func (s *Store) Delete(infoHash string) error {
	s.mu.Lock()
	a, ok := s.artifacts[infoHash]
	if ok {
		delete(s.artifacts, infoHash)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("delete %s: %w", infoHash, ErrArtifactNotFound)
	}

	for _, p := range a.Paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("[store] remove %s: %v", p, err)
		}
	}

	if r, ok := s.swarm.(interface{ Remove(string) }); ok {
		r.Remove(infoHash)
	}
	return nil
}

// Reseed rebuilds the index from the uploads directory and re-publishes each
// unique payload to the swarm. Identifiers are recomputed from content, so
// the scan is idempotent and order-independent; duplicate files collapse to
// the artifact that already holds their identifier. Returns the number of
// distinct artifacts published.
func (s *Store) Reseed(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("scan uploads dir: %w", err)
	}

	published := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[store] reseed read %s: %v", path, err)
			continue
		}

		name := storedName(entry.Name())
		hash, err := swarm.InfoHash(name, data)
		if err != nil {
			log.Printf("[store] reseed hash %s: %v", path, err)
			continue
		}

		s.mu.Lock()
		if existing, ok := s.artifacts[hash]; ok {
			existing.Paths = append(existing.Paths, path)
			s.mu.Unlock()
			continue
		}
		a := &Artifact{
			InfoHash:    hash,
			Name:        name,
			Size:        int64(len(data)),
			MirrorState: MirrorPending,
			CreatedAt:   time.Now().Unix(),
			Paths:       []string{path},
		}
		if s.mirror == nil {
			a.MirrorState = MirrorDisabled
		}
		s.artifacts[hash] = a
		s.mu.Unlock()

		res, err := s.swarm.Publish(ctx, name, data)
		if err != nil {
			log.Printf("[store] reseed publish %s: %v", hash, err)
			continue
		}
		s.mu.Lock()
		a.MagnetURI = res.MagnetURI
		s.mu.Unlock()
		published++

		if s.mirror != nil {
			go s.mirrorArtifact(hash, name, data)
		}
	}

	return published, nil
}

// storedName recovers the canonical filename from a disk path of the form
// <uuid>_<name>.
func storedName(base string) string {
	if i := strings.Index(base, "_"); i >= 0 && i < len(base)-1 {
		return base[i+1:]
	}
	return base
}
