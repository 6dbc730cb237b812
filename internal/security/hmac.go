// Package security provides HMAC request authentication: timing-safe
// signature verification and constant-time API-key comparison.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
)

// VerifySignature checks an "sha256=<hex>"-style event signature against
// the payload using the given per-source secret, in constant time.
func VerifySignature(payload []byte, signature, secret string) bool {
	if secret == "" {
		log.Printf("⚠️ event rejected - secret not configured")
		return false
	}
	if signature == "" {
		log.Printf("⚠️ event rejected - no signature provided")
		return false
	}

	sig := signature
	if strings.HasPrefix(sig, "sha256=") {
		sig = sig[len("sha256="):]
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected))
}

// Sign computes the "sha256=<hex>" signature for a payload, used by tests
// and by any outbound webhook leadpipeline itself issues.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifyAPIKey does a constant-time comparison of a presented API key
// against the configured one for a source, used by integrations that send
// a bearer key instead of signing the payload (spec.md §6 auth options).
func VerifyAPIKey(presented, configured string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return hmac.Equal([]byte(presented), []byte(configured))
}
