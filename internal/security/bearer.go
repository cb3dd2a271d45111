package security

import "strings"

// BearerToken extracts the token from an Authorization header value. Both
// "Bearer <token>" (any case) and a bare token are accepted.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	scheme, rest, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, "bearer") {
		header = strings.TrimSpace(rest)
	}
	if header == "" || strings.ContainsAny(header, " \t") {
		return "", false
	}
	return header, true
}
