// Package acquisition turns user input (uploads, data URLs, the sample
// garment catalog) into validated encoded images.
package acquisition

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	_ "golang.org/x/image/webp"

	"tryon/internal/domain"
)

// DefaultMaxBytes matches the upload limit shown to users.
const DefaultMaxBytes = 10 << 20

var supportedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// Decoder validates raw image payloads.
type Decoder struct {
	// MaxBytes caps the payload size. Zero means DefaultMaxBytes.
	MaxBytes int64
}

func (d Decoder) limit() int64 {
	if d.MaxBytes > 0 {
		return d.MaxBytes
	}
	return DefaultMaxBytes
}

// Decode sniffs the content type, checks that the payload is a decodable
// PNG, JPEG, WEBP or GIF and records its dimensions.
func (d Decoder) Decode(data []byte) (domain.Image, error) {
	if len(data) == 0 {
		return domain.Image{}, domain.ErrEmptyImage
	}
	if int64(len(data)) > d.limit() {
		return domain.Image{}, fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrImageTooLarge, len(data), d.limit())
	}
	contentType := http.DetectContentType(data)
	if !supportedTypes[contentType] {
		return domain.Image{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedImage, contentType)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.Image{}, fmt.Errorf("%w: %v", domain.ErrUnsupportedImage, err)
	}
	return domain.NewImage(data, contentType).WithDimensions(cfg.Width, cfg.Height), nil
}

// Read consumes r up to the size limit and decodes the payload.
func (d Decoder) Read(r io.Reader) (domain.Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, d.limit()+1))
	if err != nil {
		return domain.Image{}, fmt.Errorf("read image: %w", err)
	}
	return d.Decode(data)
}

// DecodeDataURL accepts "data:<type>;base64,<payload>" or a bare base64
// payload. The declared type is ignored in favour of the sniffed one.
func (d Decoder) DecodeDataURL(raw string) (domain.Image, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Image{}, domain.ErrEmptyImage
	}
	payload := raw
	if strings.HasPrefix(raw, "data:") {
		meta, data, ok := strings.Cut(raw[len("data:"):], ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return domain.Image{}, fmt.Errorf("%w: data url must be base64 encoded", domain.ErrUnsupportedImage)
		}
		payload = data
	}
	if encLimit := base64.StdEncoding.EncodedLen(int(d.limit())); len(payload) > encLimit+4 {
		return domain.Image{}, fmt.Errorf("%w: encoded payload too long", domain.ErrImageTooLarge)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return domain.Image{}, fmt.Errorf("%w: invalid base64: %v", domain.ErrUnsupportedImage, err)
	}
	return d.Decode(data)
}
