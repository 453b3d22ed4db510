package identity

import (
	"fmt"
	"strings"
)

// Platform is the coarse device class inferred from a user-agent string.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformUnknown Platform = "Unknown"
)

// Identity is the synthetic client fingerprint assigned to an account. Once
// assigned it stays stable for the life of the account key.
type Identity struct {
	UserAgent string
	Platform  Platform
}

var platformPatterns = []struct {
	substr   string
	platform Platform
}{
	{"iphone", PlatformIOS},
	{"android", PlatformAndroid},
	{"ipad", PlatformIOS},
}

// Classify maps a user-agent string to a platform by substring match, first
// match wins.
func Classify(userAgent string) Platform {
	lower := strings.ToLower(userAgent)
	for _, p := range platformPatterns {
		if strings.Contains(lower, p.substr) {
			return p.platform
		}
	}
	return PlatformUnknown
}

// New builds an Identity for a user-agent string.
func New(userAgent string) Identity {
	return Identity{UserAgent: userAgent, Platform: Classify(userAgent)}
}

// Headers returns the base browser headers for this identity, attached to
// every request the session client sends.
func (id Identity) Headers() map[string]string {
	return map[string]string{
		"accept":             "application/json, text/plain, */*",
		"accept-language":    "en-US,en;q=0.9",
		"content-type":       "application/json",
		"sec-ch-ua":          fmt.Sprintf(`Not)A;Brand";v="99", "%s WebView";v="127", "Chromium";v="127`, id.Platform),
		"sec-ch-ua-mobile":   "?1",
		"sec-ch-ua-platform": string(id.Platform),
		"sec-fetch-dest":     "empty",
		"sec-fetch-mode":     "cors",
		"sec-fetch-site":     "same-site",
		"User-Agent":         id.UserAgent,
	}
}
