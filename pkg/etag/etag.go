// Package etag computes strong entity tags for response bodies.
package etag

import (
	"crypto/sha1"
	"encoding/base64"
	"strings"
)

// FromData returns the quoted entity tag of data.
func FromData(data []byte) string {
	csum := sha1.Sum(data)
	return `"` + base64.RawURLEncoding.EncodeToString(csum[:]) + `"`
}

// Match reports whether an If-None-Match header value matches tag.
func Match(ifNoneMatch, tag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == tag {
			return true
		}
	}
	return false
}
