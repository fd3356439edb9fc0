// Package store provides capability-checked persistence over two
// interchangeable backends: PostgreSQL, or a remote version-tagged JSON file
// store reached over HTTP. Callers depend only on the verb set here and never
// branch on which backend is active.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection names used by the service.
const (
	CollectionJobs      = "jobs"
	CollectionDocuments = "documents"
	CollectionSlugs     = "slugs"
)

// ErrNotFound indicates the referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates a precondition-guarded write lost a race. The caller
// must re-read and re-attempt; the losing write is never applied silently.
var ErrConflict = errors.New("write conflict")

// IsConflict reports whether err is a precondition conflict that the caller
// can resolve by re-reading and re-attempting.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// Precondition guards a Put. Zero value means unconditional.
type Precondition struct {
	// Version is the expected current version tag of the record.
	Version string
	// Absent requires that no record exists yet (create-only put). This is
	// how slug uniqueness is enforced on either backend.
	Absent bool
}

// Record is a stored value plus the version tag required to update it safely.
type Record struct {
	Data    json.RawMessage
	Version string
}

// Store is the persistence abstraction. Implementations map a collection to a
// table (Postgres) or to a named JSON document (file store).
type Store interface {
	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, collection, id string) (*Record, error)
	// Put writes value (JSON-marshaled) under the id, honoring pre, and
	// returns the new version tag. A failed precondition returns ErrConflict
	// (or ErrNotFound when pre.Version is set and the record is gone).
	Put(ctx context.Context, collection, id string, value any, pre *Precondition) (string, error)
	// Append atomically appends item to the JSON array at path inside the
	// record. The record must exist.
	Append(ctx context.Context, collection, id, path string, item any) error
	// Name identifies the active backend ("postgres", "filestore", "memory").
	Name() string
	// Close releases backend resources.
	Close()
}

// Decode unmarshals a record into out, mapping a nil record to ErrNotFound.
func Decode(rec *Record, out any) error {
	if rec == nil {
		return ErrNotFound
	}
	return json.Unmarshal(rec.Data, out)
}

func marshalValue(value any) ([]byte, error) {
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return raw, nil
}
