package domain

import "time"

// User represents a local account row. Accounts created before the IdP
// integration carry no ExternalID; everything provisioned through sync
// does.
type User struct {
	ID            string     `db:"id"`
	ExternalID    *string    `db:"external_id"`
	Email         string     `db:"email"`
	DisplayName   string     `db:"display_name"`
	AvatarURL     *string    `db:"avatar_url"`
	EmailVerified bool       `db:"email_verified"`
	IsActive      bool       `db:"is_active"`
	DeletedAt     *time.Time `db:"deleted_at"`
	LastLoginAt   *time.Time `db:"last_login_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// HasExternalID reports whether the user is linked to an IdP account.
func (u *User) HasExternalID() bool {
	return u.ExternalID != nil && *u.ExternalID != ""
}

// Ref is the minimal user reference handed back to the request layer.
type Ref struct {
	ID         string `json:"id"`
	ExternalID string `json:"externalId"`
	Email      string `json:"email"`
}

// Ref returns the request-layer view of the user.
func (u *User) Ref() Ref {
	ref := Ref{ID: u.ID, Email: u.Email}
	if u.ExternalID != nil {
		ref.ExternalID = *u.ExternalID
	}
	return ref
}
