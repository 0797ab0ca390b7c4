package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// handleUpload handles POST /api/files: ingest a single uploaded payload.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if ok, retry := s.uploadLimit.allow(getIP(r)); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
		writeError(w, http.StatusTooManyRequests, "upload rate limit exceeded")
		return
	}

	// Reject oversized payloads before any storage attempt.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	if n := len(r.MultipartForm.File["file"]); n != 1 {
		writeError(w, http.StatusBadRequest, "exactly one file field is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	artifact, existed, err := s.store.Add(r.Context(), header.Filename, data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	// Record the client's blinded hash so later uploads in the same secret
	// scope can dedup without re-sending the payload.
	if blinded := r.FormValue("blinded_hash"); blinded != "" {
		if err := s.dedup.Put(blinded, artifact.InfoHash); err != nil {
			// Dedup is an optimization; the artifact itself is safe.
			writeJSON(w, http.StatusCreated, s.artifactResponse(artifact, existed))
			return
		}
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	writeJSON(w, status, s.artifactResponse(artifact, existed))
}

func (s *Server) artifactResponse(a *Artifact, existed bool) map[string]any {
	return map[string]any{
		"id":        a.InfoHash,
		"name":      a.Name,
		"size":      a.Size,
		"magnetURI": a.MagnetURI,
		"infoHash":  a.InfoHash,
		"peers":     s.tracker.Peers(a.InfoHash),
		"exists":    existed,
	}
}

// handleDownload handles GET /download/{id}: stream the raw, possibly
// encrypted payload bytes.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if ok, retry := s.downloadLimit.allow(getIP(r)); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
		writeError(w, http.StatusTooManyRequests, "download rate limit exceeded")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "file id is required")
		return
	}

	data, name, err := s.store.Read(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// handleInfo handles GET /api/files/{id}: artifact metadata or 404.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":          a.InfoHash,
		"name":        a.Name,
		"size":        a.Size,
		"magnetURI":   a.MagnetURI,
		"infoHash":    a.InfoHash,
		"mirrorState": a.MirrorState,
		"createdAt":   a.CreatedAt,
		"peers":       s.tracker.Peers(a.InfoHash),
	})
}

// handleList handles GET /api/files: operational listing of all artifacts.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	artifacts := s.store.List()
	// Return empty array instead of null
	if artifacts == nil {
		artifacts = []*Artifact{}
	}
	writeJSON(w, http.StatusOK, artifacts)
}

// handleDelete handles DELETE /api/files/{id}: remove the local artifact and
// tracked paths. Removal from the swarm and the durable mirror is not
// guaranteed.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Delete(id); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	_ = s.dedup.DeleteByInfoHash(id)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleDedup handles GET /api/dedup/{blindedHash}: report whether an
// identical payload is already stored for this blinding scope.
func (s *Server) handleDedup(w http.ResponseWriter, r *http.Request) {
	blinded := r.PathValue("blindedHash")
	infoHash, ok := s.dedup.Get(blinded)
	if !ok {
		writeError(w, http.StatusNotFound, "no match")
		return
	}

	// The mapping may outlive the artifact; report a hit only while the
	// payload is actually retrievable.
	if _, exists := s.store.Get(infoHash); !exists {
		writeError(w, http.StatusNotFound, "no match")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"infoHash": infoHash})
}
