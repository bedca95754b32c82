package constants

import "strings"

// Formats holds the allowed values for the format field in ScanJob.
var Formats = []string{"JPEG", "PNG", "GIF", "TIFF", "BMP", "WEBP"}

// AllowedExtensions holds the default allowed file extensions for scan ingestion.
var AllowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"tif":  {},
	"tiff": {},
	"bmp":  {},
	"webp": {},
}

// extFormat maps a normalized extension to its canonical format label.
var extFormat = map[string]string{
	"jpg":  "JPEG",
	"jpeg": "JPEG",
	"png":  "PNG",
	"gif":  "GIF",
	"tif":  "TIFF",
	"tiff": "TIFF",
	"bmp":  "BMP",
	"webp": "WEBP",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// FormatForExt returns the canonical format label for a file extension,
// or "" when the extension is not an allowed image type.
func FormatForExt(ext string) string {
	return extFormat[NormalizeExt(ext)]
}
