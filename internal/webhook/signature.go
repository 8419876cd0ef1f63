package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// SignatureHeader carries the base64 HMAC-SHA256 digest of the raw
// request body, keyed by the tenant's channel secret.
const SignatureHeader = "X-Line-Signature"

var (
	ErrBadSignature  = errors.New("signature mismatch")
	ErrMissingSecret = errors.New("channel secret not configured")
)

// VerifySignature checks the webhook signature against the raw body.
// Fails closed: a tenant without a secret can never pass verification.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	if signature == "" {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// Sign computes the signature for a body. Used by tests and outbound
// webhook simulation.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
