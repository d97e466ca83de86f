package source

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/skip2/go-qrcode"
)

// QRImage renders text as a QR code on a transparent background.
// It gives the CLI a source image without needing a file.
func QRImage(text string, size int) (*Image, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: %v", ErrDecode, errors.New("empty qr text"))
	}
	q, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("%w: qr: %v", ErrDecode, err)
	}
	q.BackgroundColor = color.Transparent
	q.ForegroundColor = color.Black

	return NewImage("qr", q.Image(size)), nil
}
