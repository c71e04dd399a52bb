package gateway

import (
    "encoding/base64"

    qrcode "github.com/skip2/go-qrcode"
)

// QRPNGBase64 renders the checkout URL as a 256x256 PNG QR code and
// returns it base64 encoded, ready to embed in a JSON response or an
// <img> data URL.
func QRPNGBase64(checkoutURL string) (string, error) {
    png, err := qrcode.Encode(checkoutURL, qrcode.Medium, 256)
    if err != nil {
        return "", err
    }
    return base64.StdEncoding.EncodeToString(png), nil
}
