package qr

import "github.com/skip2/go-qrcode"

// ImageRenderer rasterizes opaque QR strings into PNG bytes. Purely
// mechanical; it never inspects the payload.
type ImageRenderer struct {
	size int
}

func NewImageRenderer() *ImageRenderer {
	return &ImageRenderer{size: 256}
}

func (r *ImageRenderer) RenderImage(opaque string) ([]byte, error) {
	return qrcode.Encode(opaque, qrcode.Medium, r.size)
}
