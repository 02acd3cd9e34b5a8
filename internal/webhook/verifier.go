package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	secretPrefix     = "whsec_"
	signatureVersion = "v1"

	// DefaultTolerance bounds the accepted clock skew of svix-timestamp in both directions.
	DefaultTolerance = 5 * time.Minute
)

// ErrVerification is the root of every signature verification failure.
var ErrVerification = errors.New("webhook verification failed")

var (
	ErrMissingHeaders      = fmt.Errorf("%w: missing signature headers", ErrVerification)
	ErrInvalidTimestamp    = fmt.Errorf("%w: invalid timestamp", ErrVerification)
	ErrTimestampOutOfRange = fmt.Errorf("%w: timestamp outside tolerance", ErrVerification)
	ErrSignatureMismatch   = fmt.Errorf("%w: no matching signature", ErrVerification)
)

// SignatureHeaders are the svix-* headers of one delivery. Absent headers are "".
type SignatureHeaders struct {
	ID        string
	Timestamp string
	Signature string
}

// Verifier checks Svix-style webhook signatures.
type Verifier struct {
	key       []byte
	tolerance time.Duration
}

// NewVerifier decodes a whsec_ secret. A tolerance <= 0 uses DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(secret), secretPrefix)
	if raw == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode webhook secret: %w", err)
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{key: key, tolerance: tolerance}, nil
}

// Verify authenticates payload against headers at time now.
func (v *Verifier) Verify(payload []byte, headers SignatureHeaders, now time.Time) error {
	id := strings.TrimSpace(headers.ID)
	ts := strings.TrimSpace(headers.Timestamp)
	sigs := strings.TrimSpace(headers.Signature)
	if id == "" || ts == "" || sigs == "" {
		return ErrMissingHeaders
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	sent := time.Unix(unix, 0)
	if now.Sub(sent) > v.tolerance || sent.Sub(now) > v.tolerance {
		return ErrTimestampOutOfRange
	}

	expected := v.sign(id, ts, payload)
	for _, entry := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != signatureVersion {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if subtle.ConstantTimeCompare(decoded, expected) == 1 {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// Sign returns the svix-signature header value for payload. Used by tests and local tooling.
func (v *Verifier) Sign(id string, timestamp time.Time, payload []byte) string {
	ts := strconv.FormatInt(timestamp.Unix(), 10)
	return signatureVersion + "," + base64.StdEncoding.EncodeToString(v.sign(id, ts, payload))
}

func (v *Verifier) sign(id, ts string, payload []byte) []byte {
	mac := hmac.New(sha256.New, v.key)
	_, _ = mac.Write([]byte(id))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(ts))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}
