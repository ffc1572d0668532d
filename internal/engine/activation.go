package engine

import "github.com/google/uuid"

// IDGenerator generates activation ids for DevicesMakeReady.
// Implemented by UUIDv7Generator (production) and
// testutil.FixedIDGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 activation ids, so
// activations sort by creation time in logs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
