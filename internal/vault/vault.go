// Package vault is the client-side storage adapter. It orchestrates
// encrypt → deduplicate → publish → pin on upload, and the mirrored fallback
// chain plus decryption on download. Key material never leaves the device
// except inside the returned encryption metadata block, which the caller's
// metadata-sync layer propagates to the owner's other devices.
package vault

import (
	"time"

	"github.com/halcyon-systems/driftvault/internal/localstore"
	"github.com/halcyon-systems/driftvault/internal/swarm"
)

// DefaultLegacyGateways are the public gateways probed, in order, for
// identifiers in the legacy content-addressing scheme.
var DefaultLegacyGateways = []string{
	"https://ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://dweb.link/ipfs/",
}

// Vault drives uploads and downloads against the swarm, the pinning server
// and the device-local stores.
type Vault struct {
	swarm swarm.Client
	db    *localstore.DB
	pin   *PinClient

	fetchTimeout   time.Duration
	legacyGateways []string
}

// Option configures a Vault.
type Option func(*Vault)

// WithFetchTimeout bounds how long a swarm fetch may run before the adapter
// falls back to the pinning server.
func WithFetchTimeout(d time.Duration) Option {
	return func(v *Vault) { v.fetchTimeout = d }
}

// WithLegacyGateways overrides the legacy gateway chain.
func WithLegacyGateways(gateways []string) Option {
	return func(v *Vault) { v.legacyGateways = gateways }
}

// New creates a Vault. pin may be nil when no pinning server is configured;
// uploads then rely on the swarm alone.
func New(sw swarm.Client, db *localstore.DB, pin *PinClient, opts ...Option) *Vault {
	v := &Vault{
		swarm:          sw,
		db:             db,
		pin:            pin,
		fetchTimeout:   15 * time.Second,
		legacyGateways: DefaultLegacyGateways,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// EncryptionMeta is the metadata block carried alongside file records in the
// external metadata-sync layer. Binary fields marshal as base64.
type EncryptionMeta struct {
	IV           []byte `json:"iv"`
	Salt         []byte `json:"salt,omitempty"`
	OriginalType string `json:"originalType"`
	OriginalName string `json:"originalName"`
}

// FileMeta describes a retrieved file after any decryption.
type FileMeta struct {
	Name       string
	MimeType   string
	Visibility string
}
