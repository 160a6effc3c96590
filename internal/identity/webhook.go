package identity

import (
	"context"
	"time"

	"go.homestash.io/api/domain"
	"go.homestash.io/api/errors"
	"go.homestash.io/api/log"
)

// Lifecycle event types the IdP delivers for users.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// LifecycleEvent is one inbound webhook delivery, already
// signature-verified by the HTTP layer.
type LifecycleEvent struct {
	Type string      `json:"type"`
	Data WebhookUser `json:"data"`
}

// WebhookSyncer applies IdP lifecycle events to local storage. It is
// safe to invoke twice with the same event: the upsert engine's lookups
// make repeated application a no-op update, and a delete affecting zero
// rows succeeds.
type WebhookSyncer struct {
	store  domain.UserStore
	engine *UpsertEngine
	logger log.Logger
}

// NewWebhookSyncer creates a WebhookSyncer.
func NewWebhookSyncer(store domain.UserStore, engine *UpsertEngine, logger log.Logger) *WebhookSyncer {
	return &WebhookSyncer{store: store, engine: engine, logger: logger}
}

// Apply routes one lifecycle event. Unknown event types are logged and
// dropped: the IdP also delivers session events this core does not
// consume.
func (s *WebhookSyncer) Apply(ctx context.Context, event LifecycleEvent) error {
	switch event.Type {
	case EventUserDeleted:
		return s.applyDeleted(ctx, event)
	case EventUserCreated, EventUserUpdated:
		ident, err := (WebhookSource{User: event.Data}).Identity()
		if err != nil {
			if se, ok := errors.AsSyncError(err); ok && se.Code == errors.EmailMissing {
				// Client-class: the provider will redeliver the same
				// payload forever, so the caller must not keep retrying.
				return errors.NewWebhookEmailMissing(se.Description)
			}
			return err
		}
		_, err = s.engine.Upsert(ctx, ident)
		return err
	default:
		s.logger.Warn(ctx, "ignoring unhandled lifecycle event", map[string]interface{}{
			"event_type": event.Type,
		})
		return nil
	}
}

// applyDeleted soft-deletes every row for the event's external id. A
// delete without an external id is malformed but harmless: warn and
// report success so the provider stops redelivering it.
func (s *WebhookSyncer) applyDeleted(ctx context.Context, event LifecycleEvent) error {
	if event.Data.ExternalID == "" {
		s.logger.Warn(ctx, "user.deleted event without external id, skipping")
		return nil
	}
	rows, err := s.store.SoftDeleteByExternalID(ctx, event.Data.ExternalID, time.Now().UTC())
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "applied user.deleted event", map[string]interface{}{
		"external_id": event.Data.ExternalID,
		"rows":        rows,
	})
	return nil
}
