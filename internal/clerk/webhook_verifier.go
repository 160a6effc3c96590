package clerk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Webhook delivery headers, svix-compatible.
const (
	HeaderWebhookID        = "svix-id"
	HeaderWebhookTimestamp = "svix-timestamp"
	HeaderWebhookSignature = "svix-signature"
)

var ErrInvalidSignature = errors.New("webhook signature mismatch")

// WebhookVerifier checks the HMAC-SHA256 signature the IdP attaches to
// each delivery. The signed content is "{id}.{timestamp}.{body}" and
// the signature header carries space-separated "v1,<base64>" entries.
type WebhookVerifier struct {
	secret []byte
}

// NewWebhookVerifier creates a verifier from the dashboard signing
// secret ("whsec_..." prefix is accepted and stripped).
func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode webhook signing secret: %w", err)
	}
	return &WebhookVerifier{secret: raw}, nil
}

// Verify checks the delivery signature against the raw request body.
func (v *WebhookVerifier) Verify(header http.Header, body []byte) error {
	id := header.Get(HeaderWebhookID)
	timestamp := header.Get(HeaderWebhookTimestamp)
	signatures := header.Get(HeaderWebhookSignature)
	if id == "" || timestamp == "" || signatures == "" {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%s.%s.", id, timestamp)
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, entry := range strings.Fields(signatures) {
		version, sig, found := strings.Cut(entry, ",")
		if !found || version != "v1" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}
