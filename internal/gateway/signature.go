package gateway

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// WebhookSignature is the value PhonePe sends in the webhook Authorization header.
func WebhookSignature(username, password string) string {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return hex.EncodeToString(sum[:])
}

// VerifyWebhookSignature checks an Authorization header of the form
// "[SHA256 ]<hex>" against sha256(username:password).
func VerifyWebhookSignature(authHeader, username, password string) bool {
	got := strings.TrimSpace(authHeader)
	if len(got) >= 7 && strings.EqualFold(got[:7], "SHA256 ") {
		got = strings.TrimSpace(got[7:])
	}
	if got == "" {
		return false
	}
	want := WebhookSignature(username, password)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(got)), []byte(want)) == 1
}
