package utils

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRCodeSize is the edge length in pixels of generated QR codes.
const QRCodeSize = 256

// QRCodeDataURI encodes content as a PNG QR code wrapped in a data URI, ready
// for an <img src>.
func QRCodeDataURI(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, QRCodeSize)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
