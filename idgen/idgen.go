// Package idgen generates the identifiers stored in sitegen tables.
//
// Every entity ID is a UUIDv7 (time-sortable) behind a short type prefix,
// so an ID pasted in a log line says what it refers to.
package idgen

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Short returns a Generator of random base-36 strings of the given length,
// used where a UUID is too long to show a user (deployment aliases).
func Short(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand: " + err.Error())
		}
		for i, b := range buf {
			buf[i] = alphabet[int(b)%len(alphabet)]
		}
		return string(buf)
	}
}

// Prefixed prepends prefix to every ID produced by gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string { return prefix + gen() }
}

// Default is the generator behind New.
var Default Generator = UUIDv7()

// Entity generators.
var (
	User       = Prefixed("usr_", Default)
	Project    = Prefixed("prj_", Default)
	Generation = Prefixed("gen_", Default)
	Deployment = Prefixed("dpl_", Default)
	Event      = Prefixed("evt_", Default)
)

// New produces an unprefixed ID.
func New() string { return Default() }

// Parse validates a possibly prefixed UUID and returns it unchanged.
func Parse(s string) (string, error) {
	raw := s
	if i := strings.IndexByte(s, '_'); i >= 0 {
		raw = s[i+1:]
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("idgen: invalid id %q: %w", s, err)
	}
	return s, nil
}
