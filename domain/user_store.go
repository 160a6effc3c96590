package domain

import (
	"context"
	"time"
)

// UserTx is the view of the user table inside one transaction.
// Lookups return (nil, nil) when no row matches; errors are reserved
// for storage failures.
type UserTx interface {
	GetUserByExternalID(ctx context.Context, externalID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
}

// UserStore is the storage contract the sync core depends on. The
// implementation must run WithinTx at serializable isolation: the
// upsert engine's lookup-then-write sequences rely on it.
type UserStore interface {
	// GetUserByExternalID is the untransacted fast-path lookup.
	// Returns (nil, nil) when no row matches.
	GetUserByExternalID(ctx context.Context, externalID string) (*User, error)

	// WithinTx runs fn inside one serializable transaction, committing
	// when fn returns nil and rolling back otherwise.
	WithinTx(ctx context.Context, fn func(tx UserTx) error) error

	// SoftDeleteByExternalID marks every row with the given external id
	// inactive and returns the number of rows touched. Zero is not an
	// error.
	SoftDeleteByExternalID(ctx context.Context, externalID string, at time.Time) (int64, error)

	// IsRetryableConflict reports whether err is a transient
	// transaction casualty (serialization failure, deadlock, or a
	// unique-constraint race) worth re-running the transaction for.
	IsRetryableConflict(err error) bool
}
