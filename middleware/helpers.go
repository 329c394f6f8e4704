package middleware

import (
	"net/http"
	"strings"
)

// BearerCredential returns the token of an "Authorization: Bearer <token>"
// header, or "" when the header is missing or uses another scheme.
func BearerCredential(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
