package constants

import "strings"

// ImageExtensions holds the ticket photo formats accepted by OCR and ingestion.
var ImageExtensions = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsImageExt reports whether ext (with or without dot) is an accepted photo format.
func IsImageExt(ext string) bool {
	_, ok := ImageExtensions[NormalizeExt(ext)]
	return ok
}

// MIMEForExt returns the content type for an image extension, or application/octet-stream.
func MIMEForExt(ext string) string {
	if mt, ok := ImageExtensions[NormalizeExt(ext)]; ok {
		return mt
	}
	return "application/octet-stream"
}
