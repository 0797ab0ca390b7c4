package swarm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testTracker accepts one websocket connection, acks every announce, and
// forwards the received payloads.
func testTracker(t *testing.T, announced chan<- AnnouncePayload) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type != "announce" {
				continue
			}
			var payload AnnouncePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				t.Errorf("bad announce payload: %v", err)
				return
			}
			announced <- payload
			if err := conn.WriteJSON(Response{Type: "announced"}); err != nil {
				return
			}
		}
	}))
}

func TestAnnouncer_AnnouncesSeededSet(t *testing.T) {
	announced := make(chan AnnouncePayload, 8)
	ts := testTracker(t, announced)
	defer ts.Close()

	seeder := NewSeeder(nil)
	res, err := seeder.Publish(context.Background(), "a.txt", []byte("announced bytes"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	a := NewAnnouncer("ws"+strings.TrimPrefix(ts.URL, "http"), "peer-1", seeder)
	a.heartbeat = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	// Initial announce.
	payload := waitAnnounce(t, announced)
	if payload.PeerID != "peer-1" {
		t.Fatalf("peer ID = %q, want peer-1", payload.PeerID)
	}
	if len(payload.InfoHashes) != 1 || payload.InfoHashes[0] != res.InfoHash {
		t.Fatalf("announced %v, want [%s]", payload.InfoHashes, res.InfoHash)
	}

	// A later heartbeat announce carries content seeded after connect.
	res2, err := seeder.Publish(context.Background(), "b.txt", []byte("second payload"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for {
		payload = waitAnnounce(t, announced)
		if contains(payload.InfoHashes, res2.InfoHash) {
			if !contains(payload.InfoHashes, res.InfoHash) {
				t.Fatal("re-announce must carry the full seeded set")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("never saw the second infohash announced")
		default:
		}
	}
}

func waitAnnounce(t *testing.T, ch <-chan AnnouncePayload) AnnouncePayload {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for announce")
		return AnnouncePayload{}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
