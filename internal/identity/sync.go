package identity

import (
	"context"

	"go.homestash.io/api/domain"
	"go.homestash.io/api/errors"
	"go.homestash.io/api/internal/clerk"
	"go.homestash.io/api/log"
)

// Syncer is the request-time half of user sync: it resolves (or lazily
// provisions) the local user for an authenticated request. The caller
// has already verified the token cryptographically; this component only
// reconciles storage.
type Syncer struct {
	store  domain.UserStore
	idp    clerk.UserAPI
	engine *UpsertEngine
	logger log.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(store domain.UserStore, idp clerk.UserAPI, engine *UpsertEngine, logger log.Logger) *Syncer {
	return &Syncer{store: store, idp: idp, engine: engine, logger: logger}
}

// Ensure returns the local user reference for externalID, creating the
// row on first contact. An existing soft-deleted row fails fast with
// UserInactive before the IdP is ever consulted.
func (s *Syncer) Ensure(ctx context.Context, externalID string, claims map[string]any) (domain.Ref, error) {
	existing, err := s.store.GetUserByExternalID(ctx, externalID)
	if err != nil {
		return domain.Ref{}, err
	}
	if existing != nil {
		if !existing.IsActive || existing.DeletedAt != nil {
			return domain.Ref{}, errors.NewUserInactive("account is deactivated")
		}
		return existing.Ref(), nil
	}

	ident, err := s.resolveRemote(ctx, externalID, claims)
	if err != nil {
		return domain.Ref{}, err
	}
	user, err := s.engine.Upsert(ctx, ident)
	if err != nil {
		return domain.Ref{}, err
	}
	return user.Ref(), nil
}

// resolveRemote looks the user up at the IdP. A permanent failure (the
// IdP no longer hands this user out) is fatal and never falls through;
// a transient one is logged and degraded to the session claims.
func (s *Syncer) resolveRemote(ctx context.Context, externalID string, claims map[string]any) (domain.Identity, error) {
	apiUser, err := s.idp.GetUserByExternalID(ctx, externalID)
	if err != nil {
		if clerk.IsPermanentLookupFailure(err) {
			return domain.Identity{}, errors.NewClerkUserNotAccessible("user is not accessible at the identity provider")
		}
		s.logger.Warn(ctx, "idp lookup failed, falling back to session claims", map[string]interface{}{
			"external_id": externalID,
			"error":       err.Error(),
		})
		return FromClaims(externalID, claims)
	}
	return APISource{User: apiUser}.Identity()
}
