package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// TapWebhookSignature computes the hashstring Tap sends with charge webhooks:
// HMAC-SHA256 over the concatenated x_id/x_amount/x_currency/x_status fields,
// keyed with the merchant secret.
func TapWebhookSignature(secret, chargeID string, amount float64, currency, status string) string {
	toHash := fmt.Sprintf("x_id%sx_amount%.2fx_currency%sx_status%s", chargeID, amount, currency, status)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(toHash))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyTapWebhookSignature checks a delivery's hashstring header.
func VerifyTapWebhookSignature(secret, chargeID string, amount float64, currency, status, signature string) bool {
	expected := TapWebhookSignature(secret, chargeID, amount, currency, status)
	return strings.EqualFold(expected, signature)
}
