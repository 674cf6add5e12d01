package staticfileserver

import "strings"

// imageURLEscapes is applied in order, one full pass per entry. "%25" runs
// first, so a double-encoded "%252F" ends up as "/".
var imageURLEscapes = [...]struct{ escape, literal string }{
	{"%25", "%"},
	{"%20", " "},
	{"%2F", "/"},
	{"%3A", ":"},
	{"%2D", "-"},
	{"%2E", "."},
	{"%5F", "_"},
	{"%7E", "~"},
	{"%2B", "+"},
	{"%23", "#"},
	{"%3F", "?"},
	{"%26", "&"},
	{"%3D", "="},
	{"%40", "@"},
	{"%24", "$"},
}

// UnescapeImageURL decodes the url parameter of an image-optimizer request.
// Only the escapes in the table are decoded, and only in upper case; every
// other byte sequence is left as is.
func UnescapeImageURL(s string) string {
	for _, e := range imageURLEscapes {
		s = strings.ReplaceAll(s, e.escape, e.literal)
	}
	return s
}

// isAbsoluteHTTPURL reports whether s should be redirected to rather than
// served from disk.
func isAbsoluteHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
