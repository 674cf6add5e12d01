package staticfileserver

import (
	"path/filepath"
	"strings"
)

// defaultMimeTypes is the built-in media-type table. Keys are lowercase
// extensions without the leading dot. The table is fixed at compile time so
// responses do not depend on the host's mime.types files.
var defaultMimeTypes = map[string]string{
	"html": "text/html",
	"css":  "text/css",
	"js":   "application/javascript",
	"ico":  "image/x-icon",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"svg":  "image/svg+xml",
	"json": "application/json",

	// Common SPA build outputs.
	"avif":        "image/avif",
	"gif":         "image/gif",
	"map":         "application/json",
	"mjs":         "application/javascript",
	"txt":         "text/plain",
	"wasm":        "application/wasm",
	"webmanifest": "application/manifest+json",
	"webp":        "image/webp",
	"woff":        "font/woff",
	"woff2":       "font/woff2",
	"xml":         "application/xml",
}

const defaultOctetStreamMimeType = "application/octet-stream"

// MimeTypeResolver maps file paths to media types: configured overrides
// first, then the built-in table, then application/octet-stream.
type MimeTypeResolver struct {
	customMimeTypes map[string]string
}

// NewMimeTypeResolver creates a MimeTypeResolver. overrides is keyed like
// the built-in table (see config.StaticFileServerConfig.ResolvedMimeTypes);
// keys are lowercased and a leading dot is tolerated.
func NewMimeTypeResolver(overrides map[string]string) *MimeTypeResolver {
	r := &MimeTypeResolver{customMimeTypes: make(map[string]string, len(overrides))}
	for ext, mimeType := range overrides {
		r.customMimeTypes[strings.ToLower(strings.TrimPrefix(ext, "."))] = mimeType
	}
	return r
}

// GetMimeType determines the media type for filePath.
func (r *MimeTypeResolver) GetMimeType(filePath string) string {
	if mimeType, ok := r.lookup(Extension(filePath)); ok {
		return mimeType
	}
	return defaultOctetStreamMimeType
}

// Known reports whether the extension of filePath has an entry in the table
// or the overrides.
func (r *MimeTypeResolver) Known(filePath string) bool {
	_, ok := r.lookup(Extension(filePath))
	return ok
}

func (r *MimeTypeResolver) lookup(ext string) (string, bool) {
	if ext == "" {
		return "", false
	}
	ext = strings.ToLower(ext)
	if mimeType, ok := r.customMimeTypes[ext]; ok {
		return mimeType, true
	}
	mimeType, ok := defaultMimeTypes[ext]
	return mimeType, ok
}

// Extension returns the text after the final dot of the last path element,
// without the dot. A name with no dot, or whose only dot is the leading one
// (".env"), has no extension.
func Extension(filePath string) string {
	base := filepath.Base(filePath)
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return ""
	}
	return base[i+1:]
}
