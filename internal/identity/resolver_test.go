package identity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.homestash.io/api/domain"
	"go.homestash.io/api/errors"
	"go.homestash.io/api/internal/clerk"
	"go.homestash.io/api/internal/identity"
)

func TestWebhookSource_PrimaryEmailSelected(t *testing.T) {
	src := identity.WebhookSource{User: identity.WebhookUser{
		ExternalID: "ext_1",
		Emails: []domain.EmailAddress{
			{Address: "secondary@x.com", VerificationStatus: "unverified"},
			{Address: "primary@x.com", IsPrimary: true, VerificationStatus: "verified"},
		},
		FirstName: "Jane",
		LastName:  "Doe",
	}}

	ident, err := src.Identity()
	require.NoError(t, err)
	assert.Equal(t, "primary@x.com", ident.Email)
	assert.True(t, ident.EmailVerified, "verification state must come from the selected email")
	assert.Equal(t, "Jane Doe", ident.DisplayName)
}

func TestWebhookSource_FallsBackToFirstEmail(t *testing.T) {
	src := identity.WebhookSource{User: identity.WebhookUser{
		ExternalID: "ext_1",
		Emails: []domain.EmailAddress{
			{Address: "first@x.com", VerificationStatus: "unverified"},
			{Address: "second@x.com", VerificationStatus: "verified"},
		},
	}}

	ident, err := src.Identity()
	require.NoError(t, err)
	assert.Equal(t, "first@x.com", ident.Email)
	assert.False(t, ident.EmailVerified)
}

func TestWebhookSource_NoEmail(t *testing.T) {
	src := identity.WebhookSource{User: identity.WebhookUser{ExternalID: "ext_1"}}

	_, err := src.Identity()
	se, ok := errors.AsSyncError(err)
	require.True(t, ok)
	assert.Equal(t, errors.EmailMissing, se.Code)
}

func TestWebhookSource_EmailNormalized(t *testing.T) {
	src := identity.WebhookSource{User: identity.WebhookUser{
		ExternalID: "ext_1",
		Emails: []domain.EmailAddress{
			{Address: "  Jane.Doe@X.COM ", IsPrimary: true, VerificationStatus: "verified"},
		},
	}}

	ident, err := src.Identity()
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@x.com", ident.Email)
}

func TestWebhookSource_LastSignInMillis(t *testing.T) {
	ms := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	src := identity.WebhookSource{User: identity.WebhookUser{
		ExternalID: "ext_1",
		Emails: []domain.EmailAddress{
			{Address: "a@x.com", IsPrimary: true, VerificationStatus: "verified"},
		},
		LastSignInAt: &ms,
	}}

	ident, err := src.Identity()
	require.NoError(t, err)
	require.NotNil(t, ident.LastLoginAt)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), *ident.LastLoginAt)
}

func TestDisplayNameFallbackChain(t *testing.T) {
	tests := []struct {
		name     string
		user     identity.WebhookUser
		wantName string
	}{
		{
			name: "full name wins",
			user: identity.WebhookUser{
				FirstName: " Jane ", LastName: " Doe ", Username: "jdoe",
				Emails: []domain.EmailAddress{{Address: "jane.doe@x.com", IsPrimary: true}},
			},
			wantName: "Jane Doe",
		},
		{
			name: "first name alone",
			user: identity.WebhookUser{
				FirstName: "Jane",
				Emails:    []domain.EmailAddress{{Address: "jane.doe@x.com", IsPrimary: true}},
			},
			wantName: "Jane",
		},
		{
			name: "username next",
			user: identity.WebhookUser{
				Username: "jdoe",
				Emails:   []domain.EmailAddress{{Address: "jane.doe@x.com", IsPrimary: true}},
			},
			wantName: "jdoe",
		},
		{
			name: "email local part title-cased",
			user: identity.WebhookUser{
				Emails: []domain.EmailAddress{{Address: "jane.doe@x.com", IsPrimary: true}},
			},
			wantName: "Jane Doe",
		},
		{
			name: "underscore and dash separators",
			user: identity.WebhookUser{
				Emails: []domain.EmailAddress{{Address: "john_q-public@x.com", IsPrimary: true}},
			},
			wantName: "John Q Public",
		},
		{
			name: "non-ascii local part",
			user: identity.WebhookUser{
				Emails: []domain.EmailAddress{{Address: "élodie.durand@x.com", IsPrimary: true}},
			},
			wantName: "Élodie Durand",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.user.ExternalID = "ext_1"
			ident, err := (identity.WebhookSource{User: tt.user}).Identity()
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, ident.DisplayName)
		})
	}
}

func TestAPISource_Identity(t *testing.T) {
	ms := int64(1714564800000)
	src := identity.APISource{User: &clerk.APIUser{
		ExternalID: "ext_2",
		Emails: []domain.EmailAddress{
			{Address: "Bob@X.com", IsPrimary: true, VerificationStatus: "verified"},
		},
		Username:     "bob",
		AvatarURL:    "https://img.x.com/bob.png",
		LastSignInAt: &ms,
	}}

	ident, err := src.Identity()
	require.NoError(t, err)
	assert.Equal(t, "ext_2", ident.ExternalID)
	assert.Equal(t, "bob@x.com", ident.Email)
	assert.Equal(t, "bob", ident.DisplayName)
	require.NotNil(t, ident.AvatarURL)
	assert.Equal(t, "https://img.x.com/bob.png", *ident.AvatarURL)
	assert.True(t, ident.EmailVerified)
	require.NotNil(t, ident.LastLoginAt)
}

func TestAPISource_NoEmail(t *testing.T) {
	_, err := (identity.APISource{User: &clerk.APIUser{ExternalID: "ext_2"}}).Identity()
	se, ok := errors.AsSyncError(err)
	require.True(t, ok)
	assert.Equal(t, errors.EmailMissing, se.Code)
}

func TestFromClaims(t *testing.T) {
	t.Run("canonical key", func(t *testing.T) {
		ident, err := identity.FromClaims("ext_3", map[string]any{"email": "Carol@X.com"})
		require.NoError(t, err)
		assert.Equal(t, "carol@x.com", ident.Email)
		assert.Equal(t, "Carol", ident.DisplayName)
		assert.False(t, ident.EmailVerified, "claims are never authoritative for verification")
	})

	t.Run("alternate-cased key", func(t *testing.T) {
		ident, err := identity.FromClaims("ext_3", map[string]any{"Email": "carol@x.com"})
		require.NoError(t, err)
		assert.Equal(t, "carol@x.com", ident.Email)
	})

	t.Run("no usable email", func(t *testing.T) {
		_, err := identity.FromClaims("ext_3", map[string]any{"sub": "ext_3"})
		se, ok := errors.AsSyncError(err)
		require.True(t, ok)
		assert.Equal(t, errors.EmailMissing, se.Code)
	})

	t.Run("nil claims", func(t *testing.T) {
		_, err := identity.FromClaims("ext_3", nil)
		se, ok := errors.AsSyncError(err)
		require.True(t, ok)
		assert.Equal(t, errors.EmailMissing, se.Code)
	})
}
