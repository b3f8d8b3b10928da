package database

import (
	"context"
	"errors"
)

// ErrNotUnique is returned when an index lookup that must match at most one row matches more.
// It signals a broken store invariant and must never be coerced into a single result.
var ErrNotUnique = errors.New("index lookup matched more than one time image")

type DatabaseService interface {
	CreateDatabase(ctx context.Context) error
	DoesDatabaseExist() bool
	Close() error

	// InsertTimeImage stores a row as-is and returns its generated ID. It backs seeding only;
	// uniqueness is deliberately not enforced so that lookups can detect violations.
	InsertTimeImage(ctx context.Context, image *TimeImage) (string, error)

	// FindByHourMinute returns the single row on the (hour, minute) index, nil when none
	// matches and ErrNotUnique when several do. Preview rows are part of the index.
	FindByHourMinute(ctx context.Context, hour, minute int) (*TimeImage, error)
	// FindByPreviewKey returns the single row with the given preview key under the same contract.
	FindByPreviewKey(ctx context.Context, previewKey string) (*TimeImage, error)
}
