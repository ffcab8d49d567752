package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultSize = 256
	maxSize     = 1024
)

// PNG renders token as a QR code image. The payload is the token alone.
func PNG(token string, size int) ([]byte, error) {
	if token == "" {
		return nil, fmt.Errorf("qr: empty payload")
	}
	if size <= 0 {
		size = DefaultSize
	}
	if size > maxSize {
		size = maxSize
	}
	png, err := qrcode.Encode(token, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}
	return png, nil
}
