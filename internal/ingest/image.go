// Package ingest turns local files into request attachments. It never
// calls the network and never touches the key store.
package ingest

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"chispart/internal/core"
)

// Size caps for attached images, per deployment mode.
const (
	MaxImageBytesDesktop = 20 << 20
	MaxImageBytesMobile  = 10 << 20
)

// supportedImageMIMEs maps the accepted types (jpg, jpeg, png, webp).
var supportedImageMIMEs = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// extToMIME resolves a filename extension when sniffing fails.
var extToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// MaxImageBytes returns the cap for the given mode.
func MaxImageBytes(mobile bool) int {
	if mobile {
		return MaxImageBytesMobile
	}
	return MaxImageBytesDesktop
}

// DetectImageMIME sniffs content, falls back to the filename extension,
// and defaults to image/jpeg when undetectable.
func DetectImageMIME(data []byte, filename string) string {
	if mime := http.DetectContentType(data); supportedImageMIMEs[mime] {
		return mime
	}
	for ext, mime := range extToMIME {
		if strings.HasSuffix(strings.ToLower(filename), ext) {
			return mime
		}
	}
	return "image/jpeg"
}

// ImageDataURL validates and encodes image bytes as a data URL.
func ImageDataURL(data []byte, mime string, maxBytes int) (string, error) {
	if len(data) == 0 {
		return "", core.NewFileError("image is empty", nil)
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return "", core.NewFileError(
			fmt.Sprintf("image exceeds the %d MB limit", maxBytes>>20), nil)
	}
	if mime == "" {
		mime = "image/jpeg"
	}
	if !supportedImageMIMEs[mime] {
		return "", core.NewFileError(fmt.Sprintf("unsupported image type %q (use jpg, jpeg, png or webp)", mime), nil)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
