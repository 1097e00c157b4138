// Package scriptstore persists one immutable record per hosted script
// and provides the two read projections over it: the anonymous execution
// view and the key-gated owner view.
package scriptstore

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// ErrKeyMismatch is returned by OwnerProjection when the supplied owner
// key does not match the stored one.
var ErrKeyMismatch = errors.New("owner key mismatch")

// Record is the persisted unit for one hosted script. The script body is
// stored base64-encoded: that is transport safety through the storage
// layer, not encryption — confidentiality rests entirely on the owner
// key staying secret, and upgrading the encoding to real encryption
// would change that documented threat model.
//
// Records are written once at upload and never mutated or deleted.
type Record struct {
	Script    string    `json:"script"`
	OwnerKey  string    `json:"ownerKey"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewRecord assembles a record, encoding the body.
func NewRecord(script []byte, ownerKey, filename string, createdAt time.Time) Record {
	return Record{
		Script:    EncodeBody(script),
		OwnerKey:  ownerKey,
		Filename:  filename,
		CreatedAt: createdAt.UTC(),
	}
}

func EncodeBody(script []byte) string {
	return base64.StdEncoding.EncodeToString(script)
}

func DecodeBody(encoded string) ([]byte, error) {
	body, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode script body: %w", err)
	}
	return body, nil
}

// Authorize reports whether key matches the record's owner key. The
// comparison is constant-time so response timing reveals nothing about
// how much of a guessed key was right.
func (r Record) Authorize(key string) bool {
	return subtle.ConstantTimeCompare([]byte(r.OwnerKey), []byte(key)) == 1
}

// ExecutionProjection is the anonymous read path's view of a record:
// the decoded body and nothing else.
func ExecutionProjection(r Record) ([]byte, error) {
	return DecodeBody(r.Script)
}

// OwnerView is what the authenticated view path returns on a key match.
type OwnerView struct {
	Script    string    `json:"script"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"createdAt"`
}

// OwnerProjection verifies key against the record and, only on a match,
// decodes the body. The stored key itself never appears in the result.
func OwnerProjection(r Record, key string) (OwnerView, error) {
	if !r.Authorize(key) {
		return OwnerView{}, ErrKeyMismatch
	}
	body, err := DecodeBody(r.Script)
	if err != nil {
		return OwnerView{}, err
	}
	return OwnerView{
		Script:    string(body),
		Filename:  r.Filename,
		CreatedAt: r.CreatedAt,
	}, nil
}
