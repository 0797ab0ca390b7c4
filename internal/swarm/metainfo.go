package swarm

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// PieceLength is the fixed piece size used when hashing payloads. Keeping it
// constant is what makes the identifier a pure function of the payload bytes.
const PieceLength = 16 * 1024

// InfoHash computes the canonical content identifier for a single-file
// payload: the SHA-1 of the bencoded info dictionary. The identifier is
// derived locally, before any publish, so the index can be consulted without
// round-tripping through the swarm engine.
func InfoHash(name string, data []byte) (string, error) {
	info := map[string]any{
		"length":       int64(len(data)),
		"name":         name,
		"piece length": int64(PieceLength),
		"pieces":       pieceHashes(data),
	}

	encoded, err := bencode(info)
	if err != nil {
		return "", fmt.Errorf("encode info dict: %w", err)
	}

	sum := sha1.Sum(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// pieceHashes returns the concatenated SHA-1 hashes of each fixed-size piece.
func pieceHashes(data []byte) []byte {
	// An empty payload still has zero pieces, not one empty piece.
	pieces := make([]byte, 0, (len(data)/PieceLength+1)*sha1.Size)
	for off := 0; off < len(data); off += PieceLength {
		end := off + PieceLength
		if end > len(data) {
			end = len(data)
		}
		sum := sha1.Sum(data[off:end])
		pieces = append(pieces, sum[:]...)
	}
	return pieces
}
