package swarm

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/halcyon-systems/driftvault/internal/ratelimit"
)

// Message is the JSON message format for tracker WebSocket communication.
type Message struct {
	Type    string          `json:"type"` // "announce", "heartbeat", "disconnect"
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is a JSON response sent back by the tracker.
type Response struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// AnnouncePayload is the payload for an "announce" message.
type AnnouncePayload struct {
	PeerID     string   `json:"peer_id"`
	InfoHashes []string `json:"info_hashes"`
}

// Announcer keeps a tracker informed of the identifiers this peer seeds. It
// reconnects with backoff and re-announces the full seeded set after every
// reconnect, so tracker state converges even across tracker restarts.
type Announcer struct {
	trackerURL string
	peerID     string
	seeder     *Seeder
	heartbeat  time.Duration
}

// NewAnnouncer creates an Announcer for the given ws:// or wss:// tracker URL.
func NewAnnouncer(trackerURL, peerID string, seeder *Seeder) *Announcer {
	return &Announcer{
		trackerURL: trackerURL,
		peerID:     peerID,
		seeder:     seeder,
		heartbeat:  30 * time.Second,
	}
}

// Run announces until ctx is cancelled. Connection failures are logged and
// retried; they never propagate to the caller.
func (a *Announcer) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if err := a.session(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[announce] tracker session: %v (retrying in %s)", err, backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// session runs one tracker connection: announce everything, then heartbeat
// and re-announce newly seeded identifiers until the connection drops.
func (a *Announcer) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.trackerURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the connection when ctx is cancelled to unblock reads.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = a.send(conn, "disconnect", nil)
			conn.Close()
		case <-done:
		}
	}()

	limiter := ratelimit.New(60, time.Minute)

	if err := a.announce(conn); err != nil {
		return err
	}

	ticker := time.NewTicker(a.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !limiter.Allow() {
				continue
			}
			if err := a.announce(conn); err != nil {
				return err
			}
		}
	}
}

// announce sends the full seeded set and consumes the tracker's ack, so
// response frames never accumulate on the connection.
func (a *Announcer) announce(conn *websocket.Conn) error {
	err := a.send(conn, "announce", AnnouncePayload{
		PeerID:     a.peerID,
		InfoHashes: a.seeder.Seeding(),
	})
	if err != nil {
		return err
	}
	var resp Response
	return conn.ReadJSON(&resp)
}

func (a *Announcer) send(conn *websocket.Conn, msgType string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = data
	}
	return conn.WriteJSON(Message{Type: msgType, Payload: raw})
}
