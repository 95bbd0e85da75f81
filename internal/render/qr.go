package render

import (
	"fmt"
	"image"
	"image/color"

	qrcode "github.com/skip2/go-qrcode"
)

// QRCode encodes content at error-correction level High, black on white,
// with at least side pixels per edge.
func QRCode(content string, side int) (image.Image, error) {
	q, err := qrcode.New(content, qrcode.High)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	q.BackgroundColor = color.White
	q.ForegroundColor = color.Black
	return q.Image(side), nil
}
