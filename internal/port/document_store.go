package port

import (
	"context"
	"errors"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	// ErrTxConflict is returned once a store gives up retrying a transaction.
	ErrTxConflict = errors.New("transaction conflict")
)

// Document is the storage representation of a record: nested maps, slices
// and primitives as a JSON decoder would produce them.
type Document map[string]any

// Tx is the view of one collection inside a running transaction. Writes are
// only visible to other readers once the transaction commits.
type Tx interface {
	// Get returns ErrDocumentNotFound when id does not exist.
	Get(ctx context.Context, id string) (Document, error)

	// Set creates or fully replaces the document stored under id.
	Set(ctx context.Context, id string, doc Document) error
}

// DocumentStore is a transactional key-document collection.
type DocumentStore interface {
	// RunTransaction executes fn atomically. Conflicting concurrent
	// transactions are retried by the store a bounded number of times; fn may
	// therefore run more than once and must not have side effects outside tx.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Get reads the committed document stored under id.
	Get(ctx context.Context, id string) (Document, error)

	// Delete removes id, returning ErrDocumentNotFound when it does not exist.
	Delete(ctx context.Context, id string) error

	// Where returns every document whose top-level field equals value.
	// Only fields listed in IndexedFields are supported.
	Where(ctx context.Context, field, value string) ([]Document, error)

	// Scan returns every document of the collection.
	Scan(ctx context.Context) ([]Document, error)

	Ping(ctx context.Context) error
}

// Top-level fields a DocumentStore can filter on with Where.
const (
	FieldTokenBlueprintID   = "tokenBlueprintId"
	FieldProductBlueprintID = "productBlueprintId"
)

var IndexedFields = []string{FieldTokenBlueprintID, FieldProductBlueprintID}

// IsIndexedField reports whether Where supports field.
func IsIndexedField(field string) bool {
	for _, f := range IndexedFields {
		if f == field {
			return true
		}
	}
	return false
}
