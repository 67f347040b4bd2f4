package studio

import (
	"net/http"
	"strings"

	"github.com/raine/kalamitra/internal/listing"
)

// MaxUploadSize is the largest accepted product photo.
const MaxUploadSize = 4 * 1024 * 1024

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// ValidateImage checks an uploaded photo and returns it with a normalized MIME
// type. When mimeType is empty the type is sniffed from the content.
func ValidateImage(data []byte, mimeType string) (listing.Image, error) {
	if len(data) == 0 {
		return listing.Image{}, invalid(MsgInvalidFileType)
	}

	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if mimeType == "image/jpg" {
		mimeType = "image/jpeg"
	}

	if !allowedImageTypes[mimeType] {
		return listing.Image{}, invalid(MsgInvalidFileType)
	}
	if len(data) > MaxUploadSize {
		return listing.Image{}, invalid(MsgFileTooLarge)
	}

	return listing.Image{Data: data, MIMEType: mimeType}, nil
}
