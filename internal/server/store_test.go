package server

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/halcyon-systems/driftvault/internal/mirror"
	"github.com/halcyon-systems/driftvault/internal/swarm"
)

func setupTestStore(t *testing.T, obj mirror.ObjectStore) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "uploads"), swarm.NewSeeder(nil), obj)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestStore_AddAndRead(t *testing.T) {
	store := setupTestStore(t, nil)
	data := []byte("artifact payload")

	a, existed, err := store.Add(context.Background(), "doc.pdf", data)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if existed {
		t.Fatal("first add should not report an existing artifact")
	}
	if a.InfoHash == "" || a.MagnetURI == "" {
		t.Fatalf("artifact missing identifier or locator: %+v", a)
	}

	got, name, err := store.Read(context.Background(), a.InfoHash)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("read bytes do not match uploaded payload")
	}
	if name != "doc.pdf" {
		t.Fatalf("unexpected stored name %q", name)
	}
}

func TestStore_DuplicateUploadCollapses(t *testing.T) {
	store := setupTestStore(t, nil)
	data := []byte("identical content")

	first, _, err := store.Add(context.Background(), "a.bin", data)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	second, existed, err := store.Add(context.Background(), "a.bin", data)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if !existed {
		t.Fatal("second identical upload should short-circuit to already-exists")
	}
	if second.InfoHash != first.InfoHash {
		t.Fatal("identical payloads must map to the same identifier")
	}
	if len(second.Paths) != 2 {
		t.Fatalf("expected 2 tracked paths, got %d", len(second.Paths))
	}
	if len(store.List()) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(store.List()))
	}
}

func TestStore_ReadFallsBackToSwarm(t *testing.T) {
	store := setupTestStore(t, nil)
	data := []byte("disk copy will vanish")

	a, _, err := store.Add(context.Background(), "gone.bin", data)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Remove the disk copies; the swarm client still seeds the payload.
	for _, p := range a.Paths {
		os.Remove(p)
	}

	got, _, err := store.Read(context.Background(), a.InfoHash)
	if err != nil {
		t.Fatalf("Read after disk loss: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("swarm fallback returned wrong bytes")
	}
}

func TestStore_ReadFallsBackToMirror(t *testing.T) {
	obj := mirror.NewMemStore()
	store := setupTestStore(t, obj)

	// The identifier is known only to the durable mirror: no disk path, no
	// swarm copy.
	infoHash := "00deadbeef00deadbeef00deadbeef00deadbeef"
	data := []byte("only the mirror has this")
	if err := obj.Put(context.Background(), mirror.ObjectKey(infoHash, "m.bin"), data); err != nil {
		t.Fatalf("mirror put: %v", err)
	}

	got, _, err := store.Read(context.Background(), infoHash)
	if err != nil {
		t.Fatalf("Read from mirror: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("mirror fallback returned wrong bytes")
	}
}

func TestStore_ReadExhaustedTiers(t *testing.T) {
	store := setupTestStore(t, mirror.NewMemStore())

	_, _, err := store.Read(context.Background(), "ffffffffffffffffffffffffffffffffffffffff")
	if !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	store := setupTestStore(t, nil)

	a, _, err := store.Add(context.Background(), "del.bin", []byte("bytes"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := store.Delete(a.InfoHash); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, ok := store.Get(a.InfoHash); ok {
		t.Fatal("deleted artifact should not remain in the index")
	}
	for _, p := range a.Paths {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("tracked path %s should be removed", p)
		}
	}

	if err := store.Delete(a.InfoHash); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("double delete should report not found, got %v", err)
	}
}

func TestStore_ReseedReconstructsIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")

	// First process lifetime: three uploads, two of them bit-identical.
	first, err := NewStore(dir, swarm.NewSeeder(nil), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()
	if _, _, err := first.Add(ctx, "one.bin", []byte("unique payload one")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	dup, _, err := first.Add(ctx, "two.bin", []byte("duplicated payload"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, _, err := first.Add(ctx, "two.bin", []byte("duplicated payload")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Cold start: fresh store and fresh swarm client over the same disk.
	second, err := NewStore(dir, swarm.NewSeeder(nil), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	published, err := second.Reseed(ctx)
	if err != nil {
		t.Fatalf("Reseed: %v", err)
	}

	// Three files on disk, two bit-identical: exactly two distinct artifacts.
	if published != 2 {
		t.Fatalf("expected 2 published artifacts, got %d", published)
	}
	if len(second.List()) != 2 {
		t.Fatalf("expected 2 indexed artifacts, got %d", len(second.List()))
	}

	// The duplicate collapsed but both its disk files remain downloadable.
	a, ok := second.Get(dup.InfoHash)
	if !ok {
		t.Fatal("duplicated payload should be reindexed under the same identifier")
	}
	if len(a.Paths) != 2 {
		t.Fatalf("expected 2 tracked paths for the duplicate, got %d", len(a.Paths))
	}
	got, _, err := second.Read(ctx, dup.InfoHash)
	if err != nil {
		t.Fatalf("Read after reseed: %v", err)
	}
	if !bytes.Equal(got, []byte("duplicated payload")) {
		t.Fatal("reseeded payload does not match original bytes")
	}
}

func TestStore_RetryFailedMirrors(t *testing.T) {
	obj := mirror.NewMemStore()
	store := setupTestStore(t, obj)

	// Build a failed-mirror artifact directly, so the test does not race
	// with the fire-and-forget mirror of a real upload.
	data := []byte("mirror me")
	path := filepath.Join(store.dir, "id_m.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	hash, err := swarm.InfoHash("m.bin", data)
	if err != nil {
		t.Fatalf("InfoHash: %v", err)
	}
	store.mu.Lock()
	store.artifacts[hash] = &Artifact{
		InfoHash:    hash,
		Name:        "m.bin",
		Size:        int64(len(data)),
		MirrorState: MirrorFailed,
		Paths:       []string{path},
	}
	store.mu.Unlock()

	if n := store.retryFailedMirrors(); n != 1 {
		t.Fatalf("expected 1 retried mirror, got %d", n)
	}

	got, err := obj.Get(context.Background(), mirror.ObjectKey(hash, "m.bin"))
	if err != nil {
		t.Fatalf("mirror object after retry: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("retried mirror holds wrong bytes")
	}

	if a, _ := store.Get(hash); a.MirrorState != MirrorDone {
		t.Fatalf("expected mirror state %q, got %q", MirrorDone, a.MirrorState)
	}
}
