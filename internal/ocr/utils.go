package ocr

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

// ContentHash is the hex SHA-256 used as the cache key.
func ContentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DecodeImageData accepts plain base64 or a data URL ("data:image/png;base64,...").
// The MIME type comes from the data URL header or is sniffed from the bytes.
func DecodeImageData(s string) (Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Image{}, common.NewAppError("INVALID_IMAGE", "imageData is required", common.ErrInvalidInput)
	}

	mime := ""
	if strings.HasPrefix(s, "data:") {
		header, payload, ok := strings.Cut(s, ",")
		if !ok {
			return Image{}, common.NewAppError("INVALID_IMAGE", "imageData is not a valid data URL", common.ErrInvalidInput)
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		s = payload
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil || len(data) == 0 {
		return Image{}, common.NewAppError("INVALID_IMAGE", "imageData is not valid base64", common.ErrInvalidInput)
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return Image{Data: data, MIME: mime}, nil
}
