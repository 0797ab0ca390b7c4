package server

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/halcyon-systems/driftvault/internal/mirror"
	"github.com/halcyon-systems/driftvault/internal/swarm"
)

// Config holds the tunable limits for a Server.
type Config struct {
	MaxUploadSize  int64 // bytes; per-request payload cap
	UploadRate     int   // uploads per IP per window
	DownloadRate   int   // downloads per IP per window
	RateWindow     time.Duration
	MirrorRetryGap time.Duration
}

// DefaultConfig returns the limits used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		MaxUploadSize:  100 << 20, // 100 MB
		UploadRate:     20,
		DownloadRate:   120,
		RateWindow:     time.Minute,
		MirrorRetryGap: 5 * time.Minute,
	}
}

// Server is the pinning server: the HTTP surface over the content-addressable
// store, the blinded dedup index, and the peer tracker.
type Server struct {
	store   *Store
	dedup   *dedupIndex
	tracker *Tracker
	cfg     Config

	uploadLimit   *rateLimiter
	downloadLimit *rateLimiter

	mux *http.ServeMux
}

// New creates a Server over dataDir with all routes registered.
func New(dataDir string, sw swarm.Client, obj mirror.ObjectStore, cfg Config) (*Server, error) {
	def := DefaultConfig()
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = def.MaxUploadSize
	}
	if cfg.UploadRate == 0 {
		cfg.UploadRate = def.UploadRate
	}
	if cfg.DownloadRate == 0 {
		cfg.DownloadRate = def.DownloadRate
	}
	if cfg.RateWindow == 0 {
		cfg.RateWindow = def.RateWindow
	}
	if cfg.MirrorRetryGap == 0 {
		cfg.MirrorRetryGap = def.MirrorRetryGap
	}

	store, err := NewStore(filepath.Join(dataDir, "uploads"), sw, obj)
	if err != nil {
		return nil, err
	}

	dedup, err := newDedupIndex(filepath.Join(dataDir, "dedup.json"))
	if err != nil {
		return nil, err
	}

	s := &Server{
		store:         store,
		dedup:         dedup,
		tracker:       NewTracker(),
		cfg:           cfg,
		uploadLimit:   newRateLimiter(cfg.UploadRate, cfg.RateWindow),
		downloadLimit: newRateLimiter(cfg.DownloadRate, cfg.RateWindow),
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Store exposes the underlying artifact store, for reseed and workers.
func (s *Server) Store() *Store { return s.store }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// routes registers all HTTP routes on the server mux.
func (s *Server) routes() {
	// Health
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Artifacts
	s.mux.HandleFunc("POST /api/files", s.handleUpload)
	s.mux.HandleFunc("GET /api/files", s.handleList)
	s.mux.HandleFunc("GET /api/files/{id}", s.handleInfo)
	s.mux.HandleFunc("DELETE /api/files/{id}", s.handleDelete)
	s.mux.HandleFunc("GET /download/{id}", s.handleDownload)

	// Dedup probe
	s.mux.HandleFunc("GET /api/dedup/{blindedHash}", s.handleDedup)

	// Peer tracker
	s.mux.HandleFunc("GET /ws/tracker", HandleTracker(s.tracker))
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "driftvault",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
