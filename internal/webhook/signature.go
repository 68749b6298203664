package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aimerfeng/Gigsy/internal/models"
)

// Signature errors. All of them reject the request as malformed.
var (
	ErrMissingHeaders   = fmt.Errorf("%w: missing signature headers", models.ErrValidation)
	ErrInvalidTimestamp = fmt.Errorf("%w: invalid signature timestamp", models.ErrValidation)
	ErrStaleTimestamp   = fmt.Errorf("%w: signature timestamp outside tolerance", models.ErrValidation)
	ErrInvalidSignature = fmt.Errorf("%w: invalid webhook signature", models.ErrValidation)
)

// Signature headers
const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"
)

const (
	secretPrefix     = "whsec_"
	defaultTolerance = 5 * time.Minute
)

// Verifier checks signed webhook deliveries. The signed content is
// "<id>.<timestamp>.<body>", signed with HMAC-SHA256; the signature header
// holds one or more space-separated "v1,<base64>" entries.
type Verifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier decodes a "whsec_"-prefixed base64 secret
func NewVerifier(secret string) (*Verifier, error) {
	raw := strings.TrimPrefix(secret, secretPrefix)
	if raw == "" {
		return nil, fmt.Errorf("webhook secret is empty")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("webhook secret is not valid base64: %w", err)
	}
	return &Verifier{key: key, tolerance: defaultTolerance, now: time.Now}, nil
}

// Verify returns nil when h carries a valid, fresh signature for body
func (v *Verifier) Verify(h http.Header, body []byte) error {
	id := h.Get(HeaderID)
	ts := h.Get(HeaderTimestamp)
	sigs := h.Get(HeaderSignature)
	if id == "" || ts == "" || sigs == "" {
		return ErrMissingHeaders
	}

	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	sent := time.Unix(sec, 0)
	now := v.now()
	if now.Sub(sent) > v.tolerance || sent.Sub(now) > v.tolerance {
		return ErrStaleTimestamp
	}

	expected := v.sign(id, ts, body)
	for _, entry := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != "v1" {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign produces a header value for id, timestamp and body
func (v *Verifier) Sign(id string, at time.Time, body []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "v1," + base64.StdEncoding.EncodeToString(v.sign(id, ts, body))
}

func (v *Verifier) sign(id, ts string, body []byte) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte{'.'})
	mac.Write([]byte(ts))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return mac.Sum(nil)
}
