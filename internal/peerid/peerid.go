// Package peerid generates the 20-byte peer identifier a process uses
// for the lifetime of a run.
package peerid

import (
	"crypto/rand"
	"sync"
)

// clientTag is the Azureus-style client prefix, following the
// convention used throughout the pack (e.g. "-GO0001-").
const clientTag = "-GR0001-"

var (
	once sync.Once
	id   [20]byte
)

// Generate returns the process's fixed 20-byte peer identifier,
// computing it once on first call and memoizing it thereafter.
func Generate() [20]byte {
	once.Do(func() {
		copy(id[:], clientTag)
		// Fill the remainder with randomness so concurrent runs on
		// the same host don't collide in a swarm.
		if _, err := rand.Read(id[len(clientTag):]); err != nil {
			// crypto/rand.Read on a supported platform does not fail;
			// if it somehow does, a deterministic fallback still
			// yields a valid (if less unique) 20-byte identifier.
			copy(id[len(clientTag):], "000000000000")
		}
	})
	return id
}
