package types

import "strings"

// Slugify derives a stable artifact id from a human-provided name:
// lowercase alphanumerics with single hyphens separating runs of any
// other characters. Slugify is idempotent. An input that yields an
// empty slug is a validation error.
func Slugify(name string) (string, error) {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	slug := b.String()
	if slug == "" {
		return "", &ValidationError{Field: "name", Message: "produces an empty slug"}
	}
	return slug, nil
}
