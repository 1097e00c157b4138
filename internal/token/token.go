// Package token generates the two credentials a hosted script is born
// with: the public script ID used in URLs and storage paths, and the
// secret owner key that gates the view path. Both are drawn uniformly
// from fixed alphabets using an injectable randomness source.
package token

import (
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// IDLength is the symbol count of a public script ID.
	IDLength = 12
	// OwnerKeyLength is the symbol count of an owner key.
	OwnerKeyLength = 32

	// idAlphabet has 64 URL-safe symbols, so one random byte maps to one
	// symbol without bias.
	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"
	// keyAlphabet has the 62 alphanumerics; sampling uses rejection to
	// stay uniform.
	keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Generator produces script IDs and owner keys. The zero value is not
// usable; construct with NewGenerator.
type Generator struct {
	source io.Reader
}

// NewGenerator returns a Generator reading from source. A nil source
// selects crypto/rand, which production callers should use; tests may
// inject a deterministic reader.
func NewGenerator(source io.Reader) *Generator {
	if source == nil {
		source = rand.Reader
	}
	return &Generator{source: source}
}

// NewScriptID returns a fresh public script identifier. IDs are not
// checked for collisions; 12 symbols over a 64-symbol alphabet leave
// collision probability negligible for any realistic record count.
func (g *Generator) NewScriptID() (string, error) {
	buf := make([]byte, IDLength)
	if _, err := io.ReadFull(g.source, buf); err != nil {
		return "", fmt.Errorf("read randomness: %w", err)
	}
	out := make([]byte, IDLength)
	for i, b := range buf {
		out[i] = idAlphabet[b&63]
	}
	return string(out), nil
}

// NewOwnerKey returns a fresh owner key. The key is the sole credential
// for viewing a script and is never regenerable.
func (g *Generator) NewOwnerKey() (string, error) {
	// 248 is the largest multiple of 62 that fits a byte; values at or
	// above it are rejected to keep the draw uniform.
	const limit = byte(len(keyAlphabet) * 4)

	out := make([]byte, 0, OwnerKeyLength)
	buf := make([]byte, OwnerKeyLength)
	for len(out) < OwnerKeyLength {
		if _, err := io.ReadFull(g.source, buf); err != nil {
			return "", fmt.Errorf("read randomness: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, keyAlphabet[int(b)%len(keyAlphabet)])
			if len(out) == OwnerKeyLength {
				break
			}
		}
	}
	return string(out), nil
}
