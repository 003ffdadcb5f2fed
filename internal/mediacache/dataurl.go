package mediacache

import (
	"encoding/base64"
	"strings"
)

// IsRemoteURL reports whether s points at a remote resource the cache can
// download. Anything else (data URIs, blob refs, relative paths) is already
// renderable as-is and must pass through untouched.
func IsRemoteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// EncodeDataURL wraps raw media bytes in a self-contained data URI.
func EncodeDataURL(contentType string, data []byte) string {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(contentType) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(contentType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}
