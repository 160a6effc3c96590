// Package identity reconciles IdP-issued identities with local user
// rows. The resolver half normalizes the three inbound shapes (webhook
// payload, API user object, session claims) into one canonical
// domain.Identity; the sync half commits it.
package identity

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.homestash.io/api/domain"
	"go.homestash.io/api/errors"
	"go.homestash.io/api/internal/clerk"
)

// Source is implemented by every identity-bearing input shape. The
// upsert engine only ever sees the resolved domain.Identity and stays
// oblivious to which source produced it.
type Source interface {
	Identity() (domain.Identity, error)
}

// WebhookUser is the user object embedded in an IdP lifecycle event.
type WebhookUser struct {
	ExternalID   string                `json:"id"`
	Emails       []domain.EmailAddress `json:"email_addresses"`
	FirstName    string                `json:"first_name"`
	LastName     string                `json:"last_name"`
	Username     string                `json:"username"`
	AvatarURL    string                `json:"avatar_url"`
	LastSignInAt *int64                `json:"last_sign_in_at"` // unix millis
}

// WebhookSource resolves an identity from a lifecycle event payload.
type WebhookSource struct {
	User WebhookUser
}

func (s WebhookSource) Identity() (domain.Identity, error) {
	email, ok := primaryEmail(s.User.Emails)
	if !ok {
		return domain.Identity{}, errors.NewEmailMissing("webhook payload carries no usable email")
	}
	return domain.Identity{
		ExternalID:    s.User.ExternalID,
		Email:         NormalizeEmail(email.Address),
		DisplayName:   displayName(s.User.FirstName, s.User.LastName, s.User.Username, email.Address),
		AvatarURL:     optionalString(s.User.AvatarURL),
		EmailVerified: email.Verified(),
		LastLoginAt:   fromUnixMillis(s.User.LastSignInAt),
	}, nil
}

// APISource resolves an identity from an IdP API user object.
type APISource struct {
	User *clerk.APIUser
}

func (s APISource) Identity() (domain.Identity, error) {
	email, ok := primaryEmail(s.User.Emails)
	if !ok {
		return domain.Identity{}, errors.NewEmailMissing("idp user object carries no usable email")
	}
	return domain.Identity{
		ExternalID:    s.User.ExternalID,
		Email:         NormalizeEmail(email.Address),
		DisplayName:   displayName(s.User.FirstName, s.User.LastName, s.User.Username, email.Address),
		AvatarURL:     optionalString(s.User.AvatarURL),
		EmailVerified: email.Verified(),
		LastLoginAt:   s.User.LastSignIn(),
	}, nil
}

// FromClaims builds an identity from already-verified session claims.
// This is the last-resort path used when the IdP API is unreachable:
// claims are not authoritative for verification state, so the result is
// always unverified.
func FromClaims(externalID string, claims map[string]any) (domain.Identity, error) {
	email := emailFromClaims(claims)
	if email == "" {
		return domain.Identity{}, errors.NewEmailMissing("session claims carry no usable email")
	}
	email = NormalizeEmail(email)
	return domain.Identity{
		ExternalID:    externalID,
		Email:         email,
		DisplayName:   displayName("", "", "", email),
		EmailVerified: false,
	}, nil
}

// NormalizeEmail collapses case and whitespace variants of the same
// address to one value. Applied on every resolution path.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// primaryEmail selects the address flagged primary, falling back to the
// first listed one.
func primaryEmail(emails []domain.EmailAddress) (domain.EmailAddress, bool) {
	for _, e := range emails {
		if e.IsPrimary && strings.TrimSpace(e.Address) != "" {
			return e, true
		}
	}
	for _, e := range emails {
		if strings.TrimSpace(e.Address) != "" {
			return e, true
		}
	}
	return domain.EmailAddress{}, false
}

// displayName resolves the display name through the fixed fallback
// chain: full name, then username, then the formatted local part of the
// email, then the literal "User".
func displayName(firstName, lastName, username, email string) string {
	full := strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName))
	if full != "" {
		return full
	}
	if username = strings.TrimSpace(username); username != "" {
		return username
	}
	if name := nameFromEmail(email); name != "" {
		return name
	}
	return "User"
}

// nameFromEmail turns the local part of an address into a readable
// name: separators become spaces and each word is title-cased, so
// "jane.doe@x.com" yields "Jane Doe".
func nameFromEmail(email string) string {
	local, _, found := strings.Cut(strings.TrimSpace(email), "@")
	if !found || local == "" {
		return ""
	}
	local = strings.Map(func(r rune) rune {
		switch r {
		case '.', '_', '-', '+':
			return ' '
		}
		return r
	}, local)

	words := strings.Fields(local)
	for i, w := range words {
		first, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(first)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

// emailFromClaims reads the email claim defensively: the canonical
// lower-cased key first, then any alternate-cased variant.
func emailFromClaims(claims map[string]any) string {
	if v, ok := claims["email"].(string); ok && strings.TrimSpace(v) != "" {
		return v
	}
	for k, v := range claims {
		if strings.EqualFold(k, "email") {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func fromUnixMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
