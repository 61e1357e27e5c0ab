package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// EventVerifier answers the single question the webhook route needs:
// is this event authentic. The dispatcher never sees key material.
type EventVerifier interface {
	Verify(payload []byte, signature string) bool
}

type hmacVerifier struct {
	secret []byte
}

// NewHMACVerifier verifies the gateway's hex-encoded HMAC-SHA256 signature
// header against the raw request body.
func NewHMACVerifier(secret string) EventVerifier {
	return &hmacVerifier{secret: []byte(secret)}
}

func (v *hmacVerifier) Verify(payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
