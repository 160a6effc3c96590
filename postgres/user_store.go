// Package postgres implements domain.UserStore over PostgreSQL. It is
// the only place that talks SQL for the user table; everything above it
// goes through the domain interfaces.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"go.homestash.io/api/domain"
)

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
    id             UUID PRIMARY KEY,
    external_id    TEXT UNIQUE,
    email          TEXT NOT NULL UNIQUE,
    display_name   TEXT NOT NULL DEFAULT '',
    avatar_url     TEXT,
    email_verified BOOLEAN NOT NULL DEFAULT FALSE,
    is_active      BOOLEAN NOT NULL DEFAULT TRUE,
    deleted_at     TIMESTAMPTZ,
    last_login_at  TIMESTAMPTZ,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// UserStore implements domain.UserStore.
type UserStore struct {
	db *sqlx.DB
}

// NewUserStore creates a UserStore on an open connection pool.
func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

// EnsureSchema creates the users table if it does not exist yet.
func (s *UserStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, usersSchema); err != nil {
		return fmt.Errorf("failed to ensure users schema: %w", err)
	}
	return nil
}

// GetUserByExternalID is the untransacted fast-path lookup.
func (s *UserStore) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return getUserBy(ctx, s.db, "external_id", externalID)
}

// WithinTx runs fn in one serializable transaction. The upsert engine's
// lookup-then-write sequences depend on this isolation level; anything
// weaker reopens the concurrent-first-login race.
func (s *UserStore) WithinTx(ctx context.Context, fn func(tx domain.UserTx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&userTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

// SoftDeleteByExternalID marks every matching row removed. Zero rows is
// a valid outcome: the user may already be gone or never existed here.
func (s *UserStore) SoftDeleteByExternalID(ctx context.Context, externalID string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_active = FALSE, deleted_at = $2, updated_at = $2 WHERE external_id = $1`,
		externalID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to soft-delete user: %w", err)
	}
	return res.RowsAffected()
}

// IsRetryableConflict classifies transaction casualties by pq error
// code rather than message text: serialization failures, deadlocks and
// unique-constraint races all re-run cleanly.
func (s *UserStore) IsRetryableConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"23505": // unique_violation
		return true
	}
	return false
}

// queryer covers both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func getUserBy(ctx context.Context, q queryer, column, value string) (*domain.User, error) {
	var user domain.User
	err := q.GetContext(ctx, &user,
		fmt.Sprintf(`SELECT * FROM users WHERE %s = $1`, column), value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by %s: %w", column, err)
	}
	return &user, nil
}

// userTx implements domain.UserTx on an open transaction.
type userTx struct {
	tx *sqlx.Tx
}

func (t *userTx) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return getUserBy(ctx, t.tx, "external_id", externalID)
}

func (t *userTx) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return getUserBy(ctx, t.tx, "email", email)
}

func (t *userTx) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO users (id, external_id, email, display_name, avatar_url,
		                   email_verified, is_active, deleted_at, last_login_at,
		                   created_at, updated_at)
		VALUES (:id, :external_id, :email, :display_name, :avatar_url,
		        :email_verified, :is_active, :deleted_at, :last_login_at,
		        :created_at, :updated_at)`, user)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// updateUserQuery deliberately omits is_active and deleted_at: the
// upsert engine never modifies the soft-delete pair, and writing the
// values read at transaction start would let a concurrent soft delete
// (a plain read-committed UPDATE, invisible to SSI) be overwritten
// with stale active values.
const updateUserQuery = `
	UPDATE users
	SET external_id    = :external_id,
	    email          = :email,
	    display_name   = :display_name,
	    avatar_url     = :avatar_url,
	    email_verified = :email_verified,
	    last_login_at  = :last_login_at,
	    updated_at     = :updated_at
	WHERE id = :id`

func (t *userTx) UpdateUser(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = time.Now().UTC()
	res, err := t.tx.NamedExecContext(ctx, updateUserQuery, user)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("user %s vanished during update", user.ID)
	}
	return nil
}

// Ensure interface compliance.
var (
	_ domain.UserStore = (*UserStore)(nil)
	_ domain.UserTx    = (*userTx)(nil)
)
