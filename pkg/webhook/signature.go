// Package webhook implements the signature scheme used by the payment rail
// for inbound event callbacks.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// ComputeSignature returns the base64-encoded HMAC-SHA256 of the colon-joined
// fields under the shared secret. The rail signs the tuple
// eventType:requestId:userId:walletId:transactionId:transactionType:transactionTime:responseCode:timestamp
// in that order; callers pass the fields already ordered.
func ComputeSignature(secret string, fields ...string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(fields, ":")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the signature for the given fields and compares
// it against the presented value in constant time.
func VerifySignature(secret, signature string, fields ...string) bool {
	expected := ComputeSignature(secret, fields...)
	return hmac.Equal([]byte(expected), []byte(signature))
}
