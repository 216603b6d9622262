package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the raw body.
const SignatureHeader = "x-line-signature"

// ErrInvalidSignature is the only verification error; it carries no detail.
var ErrInvalidSignature = errors.New("invalid signature")

// VerifySignature reports whether signature is the base64 HMAC-SHA256 of body
// under secret. body must be the bytes exactly as received.
// An empty signature or secret never verifies.
func VerifySignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}

// Verify is VerifySignature as an error, for callers that log or wrap it.
func Verify(body []byte, signature, secret string) error {
	if !VerifySignature(body, signature, secret) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the signature header value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
