package store

import (
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// NewETag produces a short opaque version token: hex(blake3(uuid())[:8]),
// a 16-character hex string. Every Backend implementation uses this for
// the ETag it stamps on a write.
func NewETag() string {
	u := uuid.New()
	hash := blake3.Sum256(u[:])
	return hex.EncodeToString(hash[:8])
}
