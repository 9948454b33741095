package repository

import (
	"context"
	"time"

	"github.com/iliyamo/userdata-registry/internal/model"
)

// UserDataStore persists UserData records.  Implementations must enforce
// registration id uniqueness, assign CreatedAt once and refresh UpdatedAt
// on every successful mutation.
type UserDataStore interface {
	// List returns every record in insertion order.
	List(ctx context.Context) ([]*model.UserData, error)
	// Create inserts d and populates its ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, d *model.UserData) error
	GetByID(ctx context.Context, id uint64) (*model.UserData, error)
	// GetByRegistrationID matches the registration id exactly (case-sensitive).
	GetByRegistrationID(ctx context.Context, registrationID string) (*model.UserData, error)
	// Update replaces the writable fields of the record with d.ID and
	// populates d.CreatedAt and d.UpdatedAt from the stored row.
	Update(ctx context.Context, d *model.UserData) error
	// Delete removes the record permanently and returns what was removed.
	Delete(ctx context.Context, id uint64) (*model.UserData, error)
}

// nextTimestamp returns the value UpdatedAt should take when a record last
// stamped at prev is mutated at now.  Timestamps are kept at microsecond
// precision to match DATETIME(6), and the result is always strictly after
// prev even when the clock has not advanced.
func nextTimestamp(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		return prev.UTC().Add(time.Microsecond)
	}
	return now
}
