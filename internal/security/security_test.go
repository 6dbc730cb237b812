package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerifySignature(t *testing.T) {
	payload := []byte(`{"event_type":"page_view"}`)
	secret := "super-secret-key"

	sig := Sign(payload, secret)
	assert.True(t, VerifySignature(payload, sig, secret))
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"event_type":"page_view"}`)
	sig := Sign(payload, "right-secret")

	assert.False(t, VerifySignature(payload, sig, "wrong-secret"))
}

func TestVerifySignatureRejectsTamperedPayload(t *testing.T) {
	secret := "super-secret-key"
	sig := Sign([]byte(`{"event_type":"page_view"}`), secret)

	assert.False(t, VerifySignature([]byte(`{"event_type":"purchase"}`), sig, secret))
}

func TestVerifySignatureRequiresSecretAndSignature(t *testing.T) {
	payload := []byte("body")
	assert.False(t, VerifySignature(payload, "sha256=abc", ""))
	assert.False(t, VerifySignature(payload, "", "secret"))
}

func TestVerifySignatureAcceptsUnprefixedHex(t *testing.T) {
	payload := []byte("body")
	secret := "s"
	sig := Sign(payload, secret)
	bare := sig[len("sha256="):]
	assert.True(t, VerifySignature(payload, bare, secret))
}

func TestVerifyAPIKey(t *testing.T) {
	assert.True(t, VerifyAPIKey("key-123", "key-123"))
	assert.False(t, VerifyAPIKey("key-123", "key-456"))
	assert.False(t, VerifyAPIKey("", "key-123"))
	assert.False(t, VerifyAPIKey("key-123", ""))
}
