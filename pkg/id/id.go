// Package id mints run identities. A run id is the single value in a
// run's output that is allowed to differ between two runs over identical
// inputs; everything inside a run's ledger uses deterministic sequence
// numbers instead.
package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULIDs keep run rows time-sortable in the journal. Monotonic entropy
// preserves that ordering when a pool starts several runs within the
// same millisecond.
var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// NewRun returns a fresh run identity.
func NewRun() string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), entropy)
	if err != nil {
		// Entropy exhaustion within one millisecond; no run can continue
		// without an identity.
		panic(err)
	}
	return id.String()
}
