package client

import (
	"net/http"
	"regexp"
)

// sessionCookiePattern matches the service's session cookie inside a
// Set-Cookie value, ignoring attributes and unrelated cookies.
var sessionCookiePattern = regexp.MustCompile(`spheron\.sid=[^;]+`)

// SessionCookie scans Set-Cookie entries for the session cookie and returns
// it alone as a cookie-header value, or empty when absent.
func SessionCookie(header http.Header) string {
	for _, raw := range header.Values("Set-Cookie") {
		if match := sessionCookiePattern.FindString(raw); match != "" {
			return match
		}
	}
	return ""
}
