package access

import (
	"time"
)

// Capability is a renewable grant of filesystem access to a specific path.
// It outlives a single operation: tokens are persisted and survive process
// restarts. A stale capability (its volume identity changed since minting)
// must be re-derived before reuse, never presented as valid.
type Capability struct {
	// Path is the absolute path the grant is bound to
	Path string

	// Token is the opaque persisted credential
	Token []byte

	// VolumeID fingerprints the volume the path lived on when the token
	// was minted; a mismatch against the current fingerprint marks the
	// capability stale
	VolumeID string

	// IssuedAt records when the token was minted
	IssuedAt time.Time

	// Stale is set when the underlying volume was remounted or replaced
	Stale bool
}
