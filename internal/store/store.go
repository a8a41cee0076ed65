// Package store persists SOS records in the local database.
package store

import (
	"context"

	"ResQLink/internal/models"
)

// SchemaVersion is the current layout of the sos_alerts collection.
const SchemaVersion = 1

// RecordStore is the durable record collection. Every operation other than
// Open fails with errors.ErrStoreNotInitialized until Open has succeeded.
type RecordStore interface {
	Open(ctx context.Context) error
	Ready() bool
	// Err reports the failure of the last Open, if any. It is sticky.
	Err() error
	Ping(ctx context.Context) error

	// Insert stores rec with a freshly assigned id and returns that id.
	// rec.ID is ignored; an empty status becomes pending.
	Insert(ctx context.Context, rec models.SOSRecord) (uint64, error)
	ListAll(ctx context.Context) ([]models.SOSRecord, error)
	ListByStatus(ctx context.Context, status models.Status) ([]models.SOSRecord, error)
	// UpdateStatus overwrites the status of one record in a single statement.
	UpdateStatus(ctx context.Context, id uint64, status models.Status) error
	// CompareAndSwapStatus sets next only if the stored status equals expected.
	CompareAndSwapStatus(ctx context.Context, id uint64, expected, next models.Status) (bool, error)

	Close() error
}
