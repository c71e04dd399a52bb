package gateway

import (
    "crypto/hmac"
    "crypto/sha256"
    "encoding/hex"
    "fmt"
)

// Sign computes the HMAC-SHA256 signature over an order reference and
// amount, hex encoded.  The same function signs outbound checkout
// requests and verifies inbound confirmations.
func Sign(secret, orderRef string, amountCents int64) string {
    mac := hmac.New(sha256.New, []byte(secret))
    fmt.Fprintf(mac, "%s|%d", orderRef, amountCents)
    return hex.EncodeToString(mac.Sum(nil))
}

// SignConfirmation computes the signature the provider attaches to a
// payment confirmation (webhook or return redirect): order reference,
// amount, provider transaction id and reported status.
func SignConfirmation(secret, orderRef string, amountCents int64, txnID string, status Status) string {
    mac := hmac.New(sha256.New, []byte(secret))
    fmt.Fprintf(mac, "%s|%d|%s|%s", orderRef, amountCents, txnID, status)
    return hex.EncodeToString(mac.Sum(nil))
}

// VerifyConfirmation checks a confirmation signature in constant time.
func VerifyConfirmation(secret, orderRef string, amountCents int64, txnID string, status Status, signature string) bool {
    want := SignConfirmation(secret, orderRef, amountCents, txnID, status)
    return hmac.Equal([]byte(want), []byte(signature))
}
