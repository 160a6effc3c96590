// Package clerk is a thin client for the IdP's user API. It covers only
// the single lookup the sync core needs and classifies failures so the
// caller can tell a dead account from a flaky network.
package clerk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.homestash.io/api/domain"
)

// DefaultBaseURL is the IdP's API root.
const DefaultBaseURL = "https://api.clerk.com/v1"

// APIUser is the IdP's user object, reduced to the fields the sync core
// consumes.
type APIUser struct {
	ExternalID   string                `json:"externalId"`
	Emails       []domain.EmailAddress `json:"emails"`
	FirstName    string                `json:"firstName,omitempty"`
	LastName     string                `json:"lastName,omitempty"`
	Username     string                `json:"username,omitempty"`
	AvatarURL    string                `json:"avatarUrl,omitempty"`
	LastSignInAt *int64                `json:"lastSignInAt,omitempty"` // unix millis
}

// LastSignIn converts the millisecond timestamp, if present.
func (u *APIUser) LastSignIn() *time.Time {
	if u.LastSignInAt == nil {
		return nil
	}
	t := time.UnixMilli(*u.LastSignInAt).UTC()
	return &t
}

// APIError is a non-2xx response from the IdP.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clerk api: status %d: %s", e.StatusCode, e.Body)
}

// IsPermanentLookupFailure reports whether err means the IdP will never
// hand this user out (gone or forbidden), as opposed to a transient
// outage the caller may work around.
func IsPermanentLookupFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusForbidden || apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

// UserAPI is the lookup surface the sync core depends on.
type UserAPI interface {
	GetUserByExternalID(ctx context.Context, externalID string) (*APIUser, error)
}

// Client implements UserAPI over the IdP's REST API.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

// NewClient creates a Client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL, secretKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// GetUserByExternalID fetches a single user object by its IdP id.
func (c *Client) GetUserByExternalID(ctx context.Context, externalID string) (*APIUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/users/%s", c.baseURL, externalID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user from clerk: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var user APIUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal clerk user: %w", err)
	}
	return &user, nil
}

// Ensure Client implements UserAPI.
var _ UserAPI = (*Client)(nil)
