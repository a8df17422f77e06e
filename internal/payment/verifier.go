package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HMACVerifier checks provider success signatures: the hex HMAC-SHA256 of
// "providerOrderID|paymentID" keyed with the API secret.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier for secret.
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Sign returns the signature the provider sends for a payment.
func (v *HMACVerifier) Sign(providerOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(providerOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is valid for the payment.
func (v *HMACVerifier) Verify(providerOrderID, paymentID, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(providerOrderID + "|" + paymentID))
	return hmac.Equal(mac.Sum(nil), want)
}
