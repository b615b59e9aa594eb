// Package signature implements the HMAC webhook signing scheme shared
// by the storefront providers: HMAC-SHA256 over the raw request body,
// base64 encoded.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Compute returns the base64 HMAC-SHA256 of body under secret.
func Compute(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the presented signature matches the body. The
// comparison is constant time.
func Verify(secret string, body []byte, presented string) bool {
	if presented == "" {
		return false
	}
	expected := Compute(secret, body)
	return hmac.Equal([]byte(expected), []byte(presented))
}
