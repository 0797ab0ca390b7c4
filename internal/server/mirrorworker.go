package server

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/halcyon-systems/driftvault/internal/mirror"
)

const mirrorTimeout = 60 * time.Second

// mirrorArtifact pushes one payload to the durable tier. It runs off the
// request path; failure is recorded in the artifact's mirror state and
// logged, never surfaced to the uploader; the primary copy already
// succeeded.
func (s *Store) mirrorArtifact(infoHash, name string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	err := s.mirror.Put(ctx, mirror.ObjectKey(infoHash, name), data)

	s.mu.Lock()
	a, ok := s.artifacts[infoHash]
	if ok {
		if err != nil {
			a.MirrorState = MirrorFailed
		} else {
			a.MirrorState = MirrorDone
		}
	}
	s.mu.Unlock()

	if err != nil {
		log.Printf("[mirror] %s: %v", infoHash, err)
	}
}

// RunMirrorRetry periodically re-attempts artifacts whose mirror failed.
// Call with a cancellable context for graceful shutdown.
func (s *Store) RunMirrorRetry(ctx context.Context, interval time.Duration) {
	if s.mirror == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			n := s.retryFailedMirrors()
			if n > 0 {
				log.Printf("[mirror] retried %d failed mirrors", n)
			}
		}
	}
}

// retryFailedMirrors re-reads each failed artifact from disk and mirrors it
// again. Returns the number of artifacts re-attempted.
func (s *Store) retryFailedMirrors() int {
	s.mu.Lock()
	var failed []*Artifact
	for _, a := range s.artifacts {
		if a.MirrorState == MirrorFailed {
			failed = append(failed, a)
			a.MirrorState = MirrorPending
		}
	}
	s.mu.Unlock()

	for _, a := range failed {
		var data []byte
		var err error
		for _, p := range a.Paths {
			if data, err = os.ReadFile(p); err == nil {
				break
			}
		}
		if err != nil || data == nil {
			log.Printf("[mirror] retry %s: no readable path", a.InfoHash)
			s.mu.Lock()
			a.MirrorState = MirrorFailed
			s.mu.Unlock()
			continue
		}
		s.mirrorArtifact(a.InfoHash, a.Name, data)
	}
	return len(failed)
}
