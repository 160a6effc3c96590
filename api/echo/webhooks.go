package echo

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"go.homestash.io/api/cache"
	"go.homestash.io/api/errors"
	"go.homestash.io/api/internal/clerk"
	"go.homestash.io/api/internal/identity"
	"go.homestash.io/api/log"
)

// defaultReservationTTL bounds how long a duplicate delivery is
// suppressed. It must exceed the IdP's maximum redelivery window.
const defaultReservationTTL = 24 * time.Hour

// SignatureVerifier checks a webhook delivery against its signature
// headers. Implemented by clerk.WebhookVerifier.
type SignatureVerifier interface {
	Verify(header http.Header, body []byte) error
}

// WebhookAPI owns the webhook delivery lifecycle: signature check,
// idempotency reservation, dispatch to the webhook syncer, and the
// release-on-5xx / keep-on-4xx reservation policy.
type WebhookAPI struct {
	verifier       SignatureVerifier
	reservations   cache.IdempotencyStore
	syncer         *identity.WebhookSyncer
	reservationTTL time.Duration
	logger         log.Logger
}

// NewWebhookAPI creates a WebhookAPI. A zero reservationTTL selects the
// 24h default.
func NewWebhookAPI(
	verifier SignatureVerifier,
	reservations cache.IdempotencyStore,
	syncer *identity.WebhookSyncer,
	reservationTTL time.Duration,
	logger log.Logger,
) *WebhookAPI {
	if reservationTTL <= 0 {
		reservationTTL = defaultReservationTTL
	}
	return &WebhookAPI{
		verifier:       verifier,
		reservations:   reservations,
		syncer:         syncer,
		reservationTTL: reservationTTL,
		logger:         logger,
	}
}

// RegisterRoutes registers the webhook routes.
func (wa *WebhookAPI) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/clerk", wa.HandleLifecycleEvent)
}

// HandleLifecycleEvent processes one IdP webhook delivery.
func (wa *WebhookAPI) HandleLifecycleEvent(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		se := errors.NewInvalidPayload("failed to read request body")
		return c.JSON(se.Status, se)
	}
	if err := wa.verifier.Verify(c.Request().Header, body); err != nil {
		se := errors.NewInvalidSignature("webhook signature verification failed")
		return c.JSON(se.Status, se)
	}

	var event identity.LifecycleEvent
	if err := json.Unmarshal(body, &event); err != nil {
		se := errors.NewInvalidPayload("malformed event payload")
		return c.JSON(se.Status, se)
	}

	deliveryID := c.Request().Header.Get(clerk.HeaderWebhookID)
	reserved := false
	if deliveryID != "" {
		won, err := wa.reservations.SetIfAbsent(ctx, deliveryID, event.Type, wa.reservationTTL)
		if err != nil {
			// The upsert path is idempotent, so a cache outage degrades
			// to processing without dedup rather than dropping events.
			wa.logger.Warn(ctx, "idempotency reservation unavailable, processing without dedup", map[string]interface{}{
				"delivery_id": deliveryID,
				"error":       err.Error(),
			})
		} else if !won {
			wa.logger.Debug(ctx, "duplicate webhook delivery suppressed", map[string]interface{}{
				"delivery_id": deliveryID,
				"event_type":  event.Type,
			})
			return c.NoContent(http.StatusOK)
		} else {
			reserved = true
		}
	}

	if err := wa.syncer.Apply(ctx, event); err != nil {
		status := errors.StatusOf(err)
		if status >= http.StatusInternalServerError {
			// Release the reservation so the provider's retry can
			// re-attempt; 4xx keeps it so a payload the provider will
			// never fix is not reprocessed.
			if reserved {
				if delErr := wa.reservations.Delete(ctx, deliveryID); delErr != nil {
					wa.logger.Warn(ctx, "failed to release idempotency reservation", map[string]interface{}{
						"delivery_id": deliveryID,
						"error":       delErr.Error(),
					})
				}
			}
			wa.logger.Error(ctx, "webhook processing failed", err, map[string]interface{}{
				"delivery_id": deliveryID,
				"event_type":  event.Type,
			})
		}
		return c.JSON(status, errors.ResponseFor(err))
	}
	return c.NoContent(http.StatusOK)
}
