package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

// PinClient talks to a pinning server's HTTP API. Status codes are mapped
// onto the adapter's error taxonomy so callers never inspect HTTP details.
type PinClient struct {
	baseURL string
	http    *http.Client
}

// PinUploadResponse is the server's response to an upload.
type PinUploadResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MagnetURI string `json:"magnetURI"`
	InfoHash  string `json:"infoHash"`
	Peers     int    `json:"peers"`
}

// NewPinClient creates a client for the pinning server at baseURL.
func NewPinClient(baseURL string, timeout time.Duration) *PinClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &PinClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Upload pushes a payload to the pinning server, optionally carrying the
// blinded hash so the server can answer later dedup probes.
func (c *PinClient) Upload(ctx context.Context, name string, data []byte, blindedHash string) (*PinUploadResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if blindedHash != "" {
		if err := writer.WriteField("blinded_hash", blindedHash); err != nil {
			return nil, fmt.Errorf("write blinded_hash: %w", err)
		}
	}
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/files", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pin upload: %w: %v", ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	if err := c.statusError(resp); err != nil {
		return nil, err
	}

	var out PinUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode pin response: %w", err)
	}
	return &out, nil
}

// Download fetches the raw payload bytes for an identifier.
func (c *PinClient) Download(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/download/"+id, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pin download: %w: %v", ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	if err := c.statusError(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// Exists reports whether the server knows an identifier.
func (c *PinClient) Exists(ctx context.Context, id string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/files/"+id, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("pin exists: %w: %v", ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("pin exists: unexpected status %d", resp.StatusCode)
	}
}

// Delete asks the server to drop its local copy of an identifier.
func (c *PinClient) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/files/"+id, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pin delete: %w: %v", ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return c.statusError(resp)
}

// Dedup asks whether an identical payload already exists for a blinding
// scope. Returns the identifier on a hit, or "" on a miss.
func (c *PinClient) Dedup(ctx context.Context, blindedHash string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/dedup/"+blindedHash, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("pin dedup: %w: %v", ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return "", nil
	}
	if err := c.statusError(resp); err != nil {
		return "", err
	}

	var out struct {
		InfoHash string `json:"infoHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode dedup response: %w", err)
	}
	return out.InfoHash, nil
}

// statusError maps non-2xx responses onto the adapter's error taxonomy.
func (c *PinClient) statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusRequestEntityTooLarge:
		return ErrPayloadTooLarge
	case http.StatusTooManyRequests:
		retry, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &RateLimitedError{RetryAfterSeconds: retry}
	default:
		return fmt.Errorf("pin server status %d", resp.StatusCode)
	}
}
