package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/halcyon-systems/driftvault/internal/ratelimit"
	"github.com/halcyon-systems/driftvault/internal/swarm"
)

// Tracker is an in-memory registry of which peers currently seed which
// identifiers. Counts feed the `peers` field of upload and info responses.
type Tracker struct {
	mu     sync.Mutex
	peers  map[string]map[string]bool // infoHash -> set of peer IDs
	byPeer map[string]map[string]bool // peerID -> set of infoHashes
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		peers:  make(map[string]map[string]bool),
		byPeer: make(map[string]map[string]bool),
	}
}

// Announce replaces a peer's seeded set with the announced identifiers.
// Announces carry full state, so identifiers the peer stopped seeding drop
// out on the next announce.
func (t *Tracker) Announce(peerID string, infoHashes []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for h := range t.byPeer[peerID] {
		delete(t.peers[h], peerID)
		if len(t.peers[h]) == 0 {
			delete(t.peers, h)
		}
	}

	set := make(map[string]bool, len(infoHashes))
	for _, h := range infoHashes {
		set[h] = true
		if t.peers[h] == nil {
			t.peers[h] = make(map[string]bool)
		}
		t.peers[h][peerID] = true
	}
	t.byPeer[peerID] = set
}

// Disconnect removes a peer and all its announced identifiers.
func (t *Tracker) Disconnect(peerID string) {
	t.Announce(peerID, nil)
	t.mu.Lock()
	delete(t.byPeer, peerID)
	t.mu.Unlock()
}

// Peers returns the number of peers currently seeding an identifier.
func (t *Tracker) Peers(infoHash string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers[infoHash])
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleTracker returns an HTTP handler that upgrades connections to
// WebSocket and processes peer announce messages.
func HandleTracker(tracker *Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[tracker] websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		limiter := ratelimit.New(60, time.Minute)
		var peerID string

		defer func() {
			if peerID != "" {
				tracker.Disconnect(peerID)
			}
		}()

		for {
			var msg swarm.Message
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[tracker] websocket read error: %v", err)
				}
				return
			}

			if !limiter.Allow() {
				writeTrackerError(conn, "rate limit exceeded")
				continue
			}

			switch msg.Type {
			case "announce":
				var payload swarm.AnnouncePayload
				if err := json.Unmarshal(msg.Payload, &payload); err != nil {
					writeTrackerError(conn, "invalid announce payload")
					continue
				}
				if payload.PeerID == "" {
					writeTrackerError(conn, "peer_id is required")
					continue
				}
				tracker.Announce(payload.PeerID, payload.InfoHashes)
				peerID = payload.PeerID
				resp := swarm.Response{
					Type:    "announced",
					Payload: map[string]int{"seeding": len(payload.InfoHashes)},
				}
				if err := conn.WriteJSON(resp); err != nil {
					log.Printf("[tracker] websocket write error: %v", err)
					return
				}

			case "heartbeat":
				resp := swarm.Response{
					Type:    "heartbeat_ack",
					Payload: map[string]string{"status": "ok"},
				}
				if err := conn.WriteJSON(resp); err != nil {
					log.Printf("[tracker] websocket write error: %v", err)
					return
				}

			case "disconnect":
				if peerID != "" {
					tracker.Disconnect(peerID)
					peerID = "" // prevent double-disconnect in defer
				}
				resp := swarm.Response{
					Type:    "disconnected",
					Payload: map[string]string{"status": "ok"},
				}
				_ = conn.WriteJSON(resp)
				return

			default:
				writeTrackerError(conn, "unknown message type: "+msg.Type)
			}
		}
	}
}

func writeTrackerError(conn *websocket.Conn, message string) {
	resp := swarm.Response{
		Type:    "error",
		Payload: map[string]string{"error": message},
	}
	_ = conn.WriteJSON(resp)
}
