package util

import "strings"

// substrings in a user agent that indicate a handheld device.
// best effort only: user agents are self-reported and spoofable.
var mobileMarkers = []string{
	"android",
	"iphone",
	"ipad",
	"ipod",
	"mobile",
	"windows phone",
	"blackberry",
	"opera mini",
}

// IsMobileUserAgent inspects the client's declared user agent string for
// handheld platform markers. An empty or unrecognized user agent returns false
// so that desktop captures are never auto-rotated by mistake.
func IsMobileUserAgent(userAgent string) bool {

	if userAgent == "" {
		return false
	}

	ua := strings.ToLower(userAgent)
	for _, marker := range mobileMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}

	return false
}
