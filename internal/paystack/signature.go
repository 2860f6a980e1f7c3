package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the header Paystack signs webhook deliveries with.
const SignatureHeader = "X-Paystack-Signature"

// SignatureVerifier validates that a webhook payload originated from
// Paystack. It computes HMAC-SHA512 over the exact bytes received; the body
// must never be re-serialized before verification.
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(secretKey string) *SignatureVerifier {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return &SignatureVerifier{}
	}
	return &SignatureVerifier{secret: []byte(secretKey)}
}

// Verify fails closed: a missing header, missing secret or mismatch all
// return ErrInvalidSignature.
func (v *SignatureVerifier) Verify(payload []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" || len(v.secret) == 0 {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha512.New, v.secret)
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the signature for a payload. Used by tests and local replay
// tooling.
func (v *SignatureVerifier) Sign(payload []byte) string {
	mac := hmac.New(sha512.New, v.secret)
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
