package swarm

import (
	"bytes"
	"strings"
	"testing"
)

func TestInfoHash_Deterministic(t *testing.T) {
	data := []byte("identical payload bytes")

	h1, err := InfoHash("file.bin", data)
	if err != nil {
		t.Fatalf("InfoHash: %v", err)
	}
	h2, err := InfoHash("file.bin", data)
	if err != nil {
		t.Fatalf("InfoHash: %v", err)
	}

	if h1 != h2 {
		t.Fatal("identical name and bytes should produce identical identifiers")
	}
	if len(h1) != 40 {
		t.Fatalf("expected 40 hex chars, got %d", len(h1))
	}
}

func TestInfoHash_ContentSensitive(t *testing.T) {
	h1, err := InfoHash("file.bin", []byte("payload one"))
	if err != nil {
		t.Fatalf("InfoHash: %v", err)
	}
	h2, err := InfoHash("file.bin", []byte("payload two"))
	if err != nil {
		t.Fatalf("InfoHash: %v", err)
	}
	if h1 == h2 {
		t.Fatal("different payloads should produce different identifiers")
	}
}

func TestInfoHash_NameSensitive(t *testing.T) {
	data := []byte("same bytes")
	h1, _ := InfoHash("a.bin", data)
	h2, _ := InfoHash("b.bin", data)
	if h1 == h2 {
		t.Fatal("the canonical name is part of the info dict; identifiers should differ")
	}
}

func TestInfoHash_MultiPiecePayload(t *testing.T) {
	// Three pieces plus a partial tail.
	data := bytes.Repeat([]byte{0xAB}, PieceLength*3+100)

	h, err := InfoHash("big.bin", data)
	if err != nil {
		t.Fatalf("InfoHash: %v", err)
	}
	if len(h) != 40 {
		t.Fatalf("expected 40 hex chars, got %d", len(h))
	}
}

func TestBencode_DeterministicDictOrder(t *testing.T) {
	m := map[string]any{"zebra": 1, "alpha": 2, "mid": "x"}

	e1, err := bencode(m)
	if err != nil {
		t.Fatalf("bencode: %v", err)
	}
	e2, _ := bencode(m)

	if !bytes.Equal(e1, e2) {
		t.Fatal("bencoding the same map twice should be byte-identical")
	}
	if !strings.HasPrefix(string(e1), "d5:alphai2e") {
		t.Fatalf("dict keys should be sorted, got %q", e1)
	}
}

func TestBencode_UnsupportedType(t *testing.T) {
	if _, err := bencode(3.14); err == nil {
		t.Fatal("floats are not bencodable and should be rejected")
	}
}

func TestMagnet_RoundTrip(t *testing.T) {
	trackers := []string{"wss://tracker.example.com/ws/tracker"}
	hash := strings.Repeat("ab", 20)

	uri := Magnet(hash, "report final.pdf", trackers)
	if !strings.HasPrefix(uri, "magnet:?xt=urn:btih:"+hash) {
		t.Fatalf("unexpected magnet prefix: %q", uri)
	}

	info, err := ParseMagnet(uri)
	if err != nil {
		t.Fatalf("ParseMagnet: %v", err)
	}
	if info.InfoHash != hash {
		t.Fatalf("infohash mismatch: %q", info.InfoHash)
	}
	if info.Name != "report final.pdf" {
		t.Fatalf("name mismatch: %q", info.Name)
	}
	if len(info.Trackers) != 1 || info.Trackers[0] != trackers[0] {
		t.Fatalf("tracker mismatch: %v", info.Trackers)
	}
}

func TestParseMagnet_Rejects(t *testing.T) {
	cases := []string{
		"https://example.com/not-magnet",
		"magnet:?xt=urn:sha1:deadbeef",
		"magnet:?xt=urn:btih:tooshort",
	}
	for _, uri := range cases {
		if _, err := ParseMagnet(uri); err == nil {
			t.Fatalf("expected error for %q", uri)
		}
	}
}
