package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier("top-secret")
	payload := []byte(`{"event":"charge.completed"}`)

	assert.True(t, v.Verify(payload, sign("top-secret", payload)))
	assert.False(t, v.Verify(payload, sign("wrong-secret", payload)))
	assert.False(t, v.Verify([]byte(`{"event":"tampered"}`), sign("top-secret", payload)))
	assert.False(t, v.Verify(payload, ""))
}
