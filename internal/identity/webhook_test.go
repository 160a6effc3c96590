package identity_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.homestash.io/api/domain"
	syncerrors "go.homestash.io/api/errors"
	"go.homestash.io/api/internal/identity"
	"go.homestash.io/api/log"
)

func newWebhookSyncer(store *fakeStore) (*identity.WebhookSyncer, *log.Recorder) {
	recorder := log.NewRecorder()
	engine := identity.NewUpsertEngine(store, recorder)
	return identity.NewWebhookSyncer(store, engine, recorder), recorder
}

func TestApply_UserCreated(t *testing.T) {
	store := newFakeStore()
	syncer, _ := newWebhookSyncer(store)

	err := syncer.Apply(context.Background(), identity.LifecycleEvent{
		Type: identity.EventUserCreated,
		Data: identity.WebhookUser{
			ExternalID: "ext_1",
			Emails: []domain.EmailAddress{
				{Address: "new@x.com", IsPrimary: true, VerificationStatus: "verified"},
			},
			FirstName: "New",
			LastName:  "User",
		},
	})
	require.NoError(t, err)

	require.Equal(t, 1, store.count())
	created, err := store.GetUserByExternalID(context.Background(), "ext_1")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "new@x.com", created.Email)
	assert.Equal(t, "New User", created.DisplayName)
	assert.True(t, created.EmailVerified)
	assert.True(t, created.IsActive)
}

func TestApply_SameEventTwiceYieldsOneRow(t *testing.T) {
	store := newFakeStore()
	syncer, _ := newWebhookSyncer(store)
	event := identity.LifecycleEvent{
		Type: identity.EventUserUpdated,
		Data: identity.WebhookUser{
			ExternalID: "ext_1",
			Emails: []domain.EmailAddress{
				{Address: "a@x.com", IsPrimary: true, VerificationStatus: "verified"},
			},
			Username: "alpha",
		},
	}

	require.NoError(t, syncer.Apply(context.Background(), event))
	require.NoError(t, syncer.Apply(context.Background(), event))

	assert.Equal(t, 1, store.count())
	user, err := store.GetUserByExternalID(context.Background(), "ext_1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", user.DisplayName)
}

func TestApply_UpdatedEventDoesNotResurrect(t *testing.T) {
	store := newFakeStore()
	syncer, _ := newWebhookSyncer(store)
	deletedAt := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	store.add(&domain.User{
		ID:          "u1",
		ExternalID:  strPtr("ext_1"),
		Email:       "gone@x.com",
		DisplayName: "Before",
		IsActive:    false,
		DeletedAt:   &deletedAt,
	})

	err := syncer.Apply(context.Background(), identity.LifecycleEvent{
		Type: identity.EventUserUpdated,
		Data: identity.WebhookUser{
			ExternalID: "ext_1",
			Emails: []domain.EmailAddress{
				{Address: "gone@x.com", IsPrimary: true, VerificationStatus: "verified"},
			},
			FirstName: "After",
		},
	})
	require.NoError(t, err)

	user := store.byID("u1")
	assert.Equal(t, "After", user.DisplayName)
	assert.False(t, user.IsActive)
	require.NotNil(t, user.DeletedAt)
	assert.Equal(t, deletedAt, *user.DeletedAt)
}

func TestApply_EmailMissingIsClientClassFailure(t *testing.T) {
	store := newFakeStore()
	syncer, _ := newWebhookSyncer(store)

	err := syncer.Apply(context.Background(), identity.LifecycleEvent{
		Type: identity.EventUserCreated,
		Data: identity.WebhookUser{ExternalID: "ext_1"},
	})
	se, ok := syncerrors.AsSyncError(err)
	require.True(t, ok)
	assert.Equal(t, syncerrors.EmailMissing, se.Code)
	assert.Equal(t, http.StatusBadRequest, se.Status, "the caller must not retry a payload the provider will never fix")
	assert.Equal(t, 0, store.count())
}

func TestApply_UserDeleted(t *testing.T) {
	store := newFakeStore()
	syncer, _ := newWebhookSyncer(store)
	store.add(&domain.User{
		ID:         "u1",
		ExternalID: strPtr("ext_1"),
		Email:      "a@x.com",
		IsActive:   true,
	})

	err := syncer.Apply(context.Background(), identity.LifecycleEvent{
		Type: identity.EventUserDeleted,
		Data: identity.WebhookUser{ExternalID: "ext_1"},
	})
	require.NoError(t, err)

	user := store.byID("u1")
	assert.False(t, user.IsActive)
	assert.NotNil(t, user.DeletedAt)
}

func TestApply_UserDeletedWithoutExternalID(t *testing.T) {
	store := newFakeStore()
	syncer, recorder := newWebhookSyncer(store)
	store.add(&domain.User{
		ID:         "u1",
		ExternalID: strPtr("ext_1"),
		Email:      "a@x.com",
		IsActive:   true,
	})

	err := syncer.Apply(context.Background(), identity.LifecycleEvent{
		Type: identity.EventUserDeleted,
	})
	require.NoError(t, err, "malformed-but-harmless deletes succeed")

	assert.Empty(t, store.softDeleteCalls, "no write may happen")
	assert.True(t, store.byID("u1").IsActive)
	require.Len(t, recorder.ByLevel("warn"), 1)
}

func TestApply_UserDeletedForUnknownUser(t *testing.T) {
	store := newFakeStore()
	syncer, _ := newWebhookSyncer(store)

	err := syncer.Apply(context.Background(), identity.LifecycleEvent{
		Type: identity.EventUserDeleted,
		Data: identity.WebhookUser{ExternalID: "ext_missing"},
	})
	require.NoError(t, err, "zero affected rows is not an error")
}

func TestApply_UnknownEventTypeIsIgnored(t *testing.T) {
	store := newFakeStore()
	syncer, recorder := newWebhookSyncer(store)

	err := syncer.Apply(context.Background(), identity.LifecycleEvent{Type: "session.created"})
	require.NoError(t, err)
	assert.Equal(t, 0, store.count())
	require.Len(t, recorder.ByLevel("warn"), 1)
}
