package domain

import (
	"bytes"
	"encoding/base64"
	"io"
)

// Image is an encoded image handle: an opaque byte payload tagged with its
// content type. The payload is copied on construction and never mutated, so
// an Image can be shared freely between goroutines.
type Image struct {
	data        []byte
	contentType string
	width       int
	height      int
}

// NewImage copies data into a new Image.
func NewImage(data []byte, contentType string) Image {
	return Image{data: append([]byte(nil), data...), contentType: contentType}
}

// WithDimensions returns a copy of img that carries the decoded pixel size.
func (img Image) WithDimensions(width, height int) Image {
	img.width, img.height = width, height
	return img
}

// IsEmpty reports whether the image carries no payload.
func (img Image) IsEmpty() bool { return len(img.data) == 0 }

func (img Image) ContentType() string { return img.contentType }

func (img Image) Len() int { return len(img.data) }

func (img Image) Width() int { return img.width }

func (img Image) Height() int { return img.height }

// Bytes returns a copy of the payload.
func (img Image) Bytes() []byte { return append([]byte(nil), img.data...) }

// Reader streams the payload without copying it.
func (img Image) Reader() io.Reader { return bytes.NewReader(img.data) }

// Base64 returns the payload in standard base64 encoding.
func (img Image) Base64() string { return base64.StdEncoding.EncodeToString(img.data) }

// DataURL renders the image as a data: URL.
func (img Image) DataURL() string {
	return "data:" + img.contentType + ";base64," + img.Base64()
}

// Equal reports whether both images carry the same payload and content type.
func (img Image) Equal(other Image) bool {
	return img.contentType == other.contentType && bytes.Equal(img.data, other.data)
}

// Extension returns a file extension matching the content type.
func (img Image) Extension() string {
	switch img.contentType {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
