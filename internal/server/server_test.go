package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/halcyon-systems/driftvault/internal/mirror"
	"github.com/halcyon-systems/driftvault/internal/swarm"
)

// setupTestServer creates a Server over a temporary data directory.
func setupTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	srv, err := New(t.TempDir(), swarm.NewSeeder(nil), mirror.NewMemStore(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

// uploadTestFile uploads a payload and returns the decoded response body.
func uploadTestFile(t *testing.T, srv *Server, filename, content, blindedHash string) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if blindedHash != "" {
		if err := writer.WriteField("blinded_hash", blindedHash); err != nil {
			t.Fatalf("write blinded_hash field: %v", err)
		}
	}

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write file content: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/files", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
		t.Fatalf("upload returned %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return body
}

func TestUpload_ReturnsIdentifierAndLocator(t *testing.T) {
	srv := setupTestServer(t, Config{})

	body := uploadTestFile(t, srv, "notes.txt", "hello swarm", "")

	infoHash, _ := body["infoHash"].(string)
	if len(infoHash) != 40 {
		t.Fatalf("expected a 40-char infohash, got %q", infoHash)
	}
	magnet, _ := body["magnetURI"].(string)
	if !strings.HasPrefix(magnet, "magnet:?xt=urn:btih:"+infoHash) {
		t.Fatalf("unexpected magnet URI %q", magnet)
	}
	if body["name"] != "notes.txt" {
		t.Fatalf("unexpected name %v", body["name"])
	}
	if body["size"] != float64(len("hello swarm")) {
		t.Fatalf("unexpected size %v", body["size"])
	}
}

func TestUpload_SanitizesFilename(t *testing.T) {
	srv := setupTestServer(t, Config{})

	body := uploadTestFile(t, srv, "we ird/náme?.txt", "content", "")

	name, _ := body["name"].(string)
	for _, r := range name {
		valid := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_'
		if !valid {
			t.Fatalf("sanitized name %q contains invalid rune %q", name, r)
		}
	}
}

func TestUpload_DuplicateShortCircuits(t *testing.T) {
	srv := setupTestServer(t, Config{})

	first := uploadTestFile(t, srv, "dup.bin", "same bytes", "")
	second := uploadTestFile(t, srv, "dup.bin", "same bytes", "")

	if first["infoHash"] != second["infoHash"] {
		t.Fatal("identical uploads must return the same identifier")
	}
	if second["exists"] != true {
		t.Fatal("second upload should report that the artifact already exists")
	}
}

func TestUpload_PayloadTooLarge(t *testing.T) {
	srv := setupTestServer(t, Config{MaxUploadSize: 256})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("file", "big.bin")
	part.Write(bytes.Repeat([]byte{0xFF}, 4096))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/files", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestUpload_RateLimited(t *testing.T) {
	srv := setupTestServer(t, Config{UploadRate: 1})

	uploadTestFile(t, srv, "a.bin", "first", "")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("file", "b.bin")
	part.Write([]byte("second"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/files", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("rate-limited response should carry a Retry-After hint")
	}
}

func TestUpload_DownloadLimitIndependent(t *testing.T) {
	srv := setupTestServer(t, Config{UploadRate: 1, DownloadRate: 100})

	body := uploadTestFile(t, srv, "a.bin", "payload", "")

	// Upload budget is exhausted; downloads still work.
	req := httptest.NewRequest(http.MethodGet, "/download/"+body["infoHash"].(string), nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("download should not be throttled by the upload limiter, got %d", rec.Code)
	}
}

func TestDownload_RoundTrip(t *testing.T) {
	srv := setupTestServer(t, Config{})

	body := uploadTestFile(t, srv, "file.bin", "round trip bytes", "")

	req := httptest.NewRequest(http.MethodGet, "/download/"+body["infoHash"].(string), nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("download returned %d", rec.Code)
	}
	if rec.Body.String() != "round trip bytes" {
		t.Fatal("downloaded bytes do not match upload")
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("expected attachment disposition, got %q", cd)
	}
}

func TestDownload_NotFound(t *testing.T) {
	srv := setupTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/download/ffffffffffffffffffffffffffffffffffffffff", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestInfo_AndList(t *testing.T) {
	srv := setupTestServer(t, Config{})

	body := uploadTestFile(t, srv, "info.bin", "info bytes", "")
	id := body["infoHash"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/files/"+id, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("info returned %d", rec.Code)
	}

	var info map[string]any
	json.Unmarshal(rec.Body.Bytes(), &info)
	if info["infoHash"] != id {
		t.Fatalf("info identifier mismatch: %v", info["infoHash"])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/files", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var list []map[string]any
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 listed artifact, got %d", len(list))
	}
}

func TestDelete_RemovesArtifact(t *testing.T) {
	srv := setupTestServer(t, Config{})

	body := uploadTestFile(t, srv, "del.bin", "delete me", "")
	id := body["infoHash"].(string)

	req := httptest.NewRequest(http.MethodDelete, "/api/files/"+id, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete returned %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/files/"+id, nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted artifact should 404, got %d", rec.Code)
	}
}

func TestDedup_BlindedHashProbe(t *testing.T) {
	srv := setupTestServer(t, Config{})

	blinded := strings.Repeat("ab", 32)
	body := uploadTestFile(t, srv, "d.bin", "dedup bytes", blinded)

	req := httptest.NewRequest(http.MethodGet, "/api/dedup/"+blinded, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("dedup probe returned %d", rec.Code)
	}

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["infoHash"] != body["infoHash"] {
		t.Fatal("dedup probe should return the artifact identifier")
	}

	// A different blinding scope never matches.
	req = httptest.NewRequest(http.MethodGet, "/api/dedup/"+strings.Repeat("cd", 32), nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown blinded hash should 404, got %d", rec.Code)
	}
}

func TestTracker_AnnounceAndPeers(t *testing.T) {
	tr := NewTracker()

	tr.Announce("peer-1", []string{"hash-a", "hash-b"})
	tr.Announce("peer-2", []string{"hash-a"})

	if n := tr.Peers("hash-a"); n != 2 {
		t.Fatalf("expected 2 peers for hash-a, got %d", n)
	}
	if n := tr.Peers("hash-b"); n != 1 {
		t.Fatalf("expected 1 peer for hash-b, got %d", n)
	}

	// A later announce replaces the peer's set.
	tr.Announce("peer-1", []string{"hash-a"})
	if n := tr.Peers("hash-b"); n != 0 {
		t.Fatalf("expected 0 peers for hash-b after re-announce, got %d", n)
	}

	tr.Disconnect("peer-1")
	if n := tr.Peers("hash-a"); n != 1 {
		t.Fatalf("expected 1 peer after disconnect, got %d", n)
	}
}

func TestTracker_WebSocketAnnounce(t *testing.T) {
	srv := setupTestServer(t, Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/tracker"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial tracker: %v", err)
	}
	defer conn.Close()

	payload, _ := json.Marshal(swarm.AnnouncePayload{
		PeerID:     "peer-ws",
		InfoHashes: []string{"feedfacefeedfacefeedfacefeedfacefeedface"},
	})
	if err := conn.WriteJSON(swarm.Message{Type: "announce", Payload: payload}); err != nil {
		t.Fatalf("write announce: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp swarm.Response
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read announce ack: %v", err)
	}
	if resp.Type != "announced" {
		t.Fatalf("expected announced ack, got %q", resp.Type)
	}

	if n := srv.tracker.Peers("feedfacefeedfacefeedfacefeedfacefeedface"); n != 1 {
		t.Fatalf("expected 1 tracked peer, got %d", n)
	}
}
