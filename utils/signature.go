package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifyWebhookSignature checks a Razorpay webhook signature: hex-encoded
// HMAC-SHA256 over the raw request body. The body must be the exact bytes as
// received; re-serializing the JSON changes key order and breaks the match.
// Comparison is constant-time.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyPaymentSignature checks the signature Razorpay hands to the client
// after checkout: HMAC-SHA256 over "<order_id>|<payment_id>" keyed with the
// API key secret.
func VerifyPaymentSignature(orderID, paymentID, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
