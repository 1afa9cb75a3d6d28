package constants

import (
	"path/filepath"
	"strings"
)

// AllowedExtensions holds the default allowed file extensions for invoice ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tiff": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ExtFromFilename returns the normalized extension of a filename, or "bin"
// when the name carries none.
func ExtFromFilename(name string) string {
	ext := NormalizeExt(filepath.Ext(name))
	if ext == "" {
		return "bin"
	}
	return ext
}

// ContentTypeForExt maps a normalized extension to a MIME type for object uploads.
func ContentTypeForExt(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return "application/pdf"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "tiff":
		return "image/tiff"
	case "txt":
		return "text/plain"
	case "json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
