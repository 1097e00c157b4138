package scriptstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no record exists for an ID.
var ErrNotFound = errors.New("script not found")

// Store persists script records. Records are write-once read-many: there
// is deliberately no update or delete.
type Store interface {
	// Put serializes the record and persists it under the ID's path.
	// It returns only after the backend has acknowledged the write, so
	// a successful Put is immediately visible to Get.
	Put(ctx context.Context, id string, record Record) error
	// Get returns the record for id, or ErrNotFound. It never returns
	// a partial record.
	Get(ctx context.Context, id string) (Record, error)
}

const dataObjectName = "data.json"

// objectPrefix is the listing prefix that namespaces one script's
// objects in the bucket.
func objectPrefix(id string) string {
	return "scripts/" + id + "/"
}

// objectKey is the conventional location of the record inside its
// prefix. Readers discover it by listing the prefix rather than
// assuming it, matching the backend's content-addressable contract.
func objectKey(id string) string {
	return objectPrefix(id) + dataObjectName
}
