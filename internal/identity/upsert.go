package identity

import (
	"context"
	"time"

	"github.com/google/uuid"

	"go.homestash.io/api/domain"
	"go.homestash.io/api/errors"
	"go.homestash.io/api/log"
)

// maxUpsertAttempts bounds the synchronous retry loop around the upsert
// transaction. The race window is a handful of storage round trips, so
// a small fixed budget with no backoff is enough.
const maxUpsertAttempts = 3

// UpsertEngine commits a resolved identity to storage while holding the
// two uniqueness invariants: one active user per external id, one user
// per email. Every identity-bearing code path funnels through here; no
// other code may write external_id, email, or the soft-delete pair.
type UpsertEngine struct {
	store  domain.UserStore
	logger log.Logger
}

// NewUpsertEngine creates an UpsertEngine.
func NewUpsertEngine(store domain.UserStore, logger log.Logger) *UpsertEngine {
	return &UpsertEngine{store: store, logger: logger}
}

// Upsert creates or updates the local user row for ident. Each attempt
// runs inside one serializable transaction; a transient conflict with a
// concurrently racing identical upsert re-runs the whole attempt, so
// the loser converges to an update instead of erroring. Exhausting the
// budget surfaces the underlying storage error unchanged.
func (e *UpsertEngine) Upsert(ctx context.Context, ident domain.Identity) (*domain.User, error) {
	var (
		user *domain.User
		err  error
	)
	for attempt := 1; attempt <= maxUpsertAttempts; attempt++ {
		user, err = e.attempt(ctx, ident)
		if err == nil {
			return user, nil
		}
		if !e.store.IsRetryableConflict(err) {
			return nil, err
		}
		e.logger.Debug(ctx, "retrying upsert after storage conflict", map[string]interface{}{
			"external_id": ident.ExternalID,
			"attempt":     attempt,
			"error":       err.Error(),
		})
	}
	return nil, err
}

func (e *UpsertEngine) attempt(ctx context.Context, ident domain.Identity) (*domain.User, error) {
	var out *domain.User
	err := e.store.WithinTx(ctx, func(tx domain.UserTx) error {
		existing, err := tx.GetUserByExternalID(ctx, ident.ExternalID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Email != ident.Email {
				owner, err := tx.GetUserByEmail(ctx, ident.Email)
				if err != nil {
					return err
				}
				if owner != nil && owner.ID != existing.ID {
					return errors.NewIdentityConflict("email already belongs to a different account")
				}
			}
			applyProfile(existing, ident)
			if err := tx.UpdateUser(ctx, existing); err != nil {
				return err
			}
			out = existing
			return nil
		}

		byEmail, err := tx.GetUserByEmail(ctx, ident.Email)
		if err != nil {
			return err
		}
		if byEmail != nil {
			if byEmail.HasExternalID() && *byEmail.ExternalID != ident.ExternalID {
				return errors.NewIdentityConflict("email already belongs to a different external identity")
			}
			// Linking a legacy account through an email match requires
			// the address to be verified: an unverified email must
			// never take over an existing account.
			if !byEmail.HasExternalID() && !ident.EmailVerified {
				return errors.NewEmailVerificationRequired("email must be verified before linking an existing account")
			}
			externalID := ident.ExternalID
			byEmail.ExternalID = &externalID
			applyProfile(byEmail, ident)
			if err := tx.UpdateUser(ctx, byEmail); err != nil {
				return err
			}
			out = byEmail
			return nil
		}

		now := time.Now().UTC()
		externalID := ident.ExternalID
		user := &domain.User{
			ID:            uuid.NewString(),
			ExternalID:    &externalID,
			Email:         ident.Email,
			DisplayName:   ident.DisplayName,
			AvatarURL:     ident.AvatarURL,
			EmailVerified: ident.EmailVerified,
			IsActive:      true,
			LastLoginAt:   ident.LastLoginAt,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		out = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// applyProfile refreshes the derived fields on an existing row. The
// soft-delete pair is deliberately left alone: identity updates must
// not resurrect a deletion flag.
func applyProfile(user *domain.User, ident domain.Identity) {
	user.Email = ident.Email
	user.DisplayName = ident.DisplayName
	user.AvatarURL = ident.AvatarURL
	user.EmailVerified = ident.EmailVerified
	if ident.LastLoginAt != nil {
		user.LastLoginAt = ident.LastLoginAt
	}
}
