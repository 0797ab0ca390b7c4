package swarm

import (
	"fmt"
	"net/url"
	"strings"
)

const btihPrefix = "urn:btih:"

// MagnetInfo is the parsed form of a magnet-style locator.
type MagnetInfo struct {
	InfoHash string
	Name     string
	Trackers []string
}

// Magnet builds a portable, offline-resolvable locator for an artifact:
// magnet:?xt=urn:btih:<infoHash>&dn=<name>&tr=<tracker>...
func Magnet(infoHash, name string, trackers []string) string {
	var b strings.Builder
	b.WriteString("magnet:?xt=")
	b.WriteString(btihPrefix)
	b.WriteString(infoHash)
	if name != "" {
		b.WriteString("&dn=")
		b.WriteString(url.QueryEscape(name))
	}
	for _, tr := range trackers {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tr))
	}
	return b.String()
}

// ParseMagnet extracts the identifier, display name and tracker list from a
// magnet URI. Only the btih exact-topic form is accepted.
func ParseMagnet(uri string) (*MagnetInfo, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse magnet: %w", err)
	}
	if u.Scheme != "magnet" {
		return nil, fmt.Errorf("not a magnet URI: %q", uri)
	}

	q := u.Query()
	xt := q.Get("xt")
	if !strings.HasPrefix(xt, btihPrefix) {
		return nil, fmt.Errorf("unsupported exact topic: %q", xt)
	}

	hash := strings.ToLower(strings.TrimPrefix(xt, btihPrefix))
	if len(hash) != 40 {
		return nil, fmt.Errorf("invalid infohash length %d", len(hash))
	}

	return &MagnetInfo{
		InfoHash: hash,
		Name:     q.Get("dn"),
		Trackers: q["tr"],
	}, nil
}
