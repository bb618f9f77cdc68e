// Package idgen generates the identifiers Zimi attaches to downloads,
// history events and rate-limit buckets.
package idgen

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings,
// time-sortable so download/history IDs also sort by creation order.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Short returns a Generator producing base-36 IDs of the given length,
// used for download task IDs where a full UUID is unnecessarily long.
func Short(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		b := make([]byte, length)
		for i := range b {
			b[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(b)
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix, used to make
// task/history IDs self-describing (e.g. "dl_", "hist_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using Default.
func New() string {
	return Default()
}
