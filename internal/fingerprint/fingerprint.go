// Package fingerprint derives a stable device identity from raw
// client-reported attributes and scores how suspicious they look.
//
// Both functions are total: every missing or malformed field degrades to
// a safe fallback, never an error. The normalization must stay in sync
// with the client-side collection script, or repeat logins from the same
// physical device stop matching.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Payload carries the raw, untrusted attributes reported by the client
// at registration and login time.
type Payload struct {
	UserAgent  string `json:"userAgent"`
	Platform   string `json:"platform"`
	CPUThreads string `json:"cpuThreads"`
	Screen     string `json:"screen"`
	Timezone   string `json:"timezone"`
}

// Compute returns the hex SHA-256 fingerprint of the normalized payload.
//
// Normalization rules:
//   - user agent and platform are lower-cased
//   - mobile browsers misreport platform, so "android"/"iphone"/"ios"
//     substrings in the user agent force the platform value
//   - screen "WxH" collapses to its aspect ratio (2 decimals) so DPI and
//     resolution changes on the same device don't change the identity
//   - UTC or empty timezone becomes "unstable" (mobile OSes toggle it)
//   - CPU thread count is excluded entirely; it fluctuates per context
func Compute(p Payload) string {
	ua := strings.ToLower(p.UserAgent)
	platform := strings.ToLower(p.Platform)

	if strings.Contains(ua, "android") {
		platform = "android"
	}
	if strings.Contains(ua, "iphone") || strings.Contains(ua, "ios") {
		platform = "ios"
	}

	ratio := "unknown"
	if w, h, ok := parseScreen(p.Screen); ok && h != 0 {
		ratio = strconv.FormatFloat(float64(w)/float64(h), 'f', 2, 64)
	}

	tz := p.Timezone
	if up := strings.ToUpper(tz); up == "UTC" || up == "" {
		tz = "unstable"
	}

	raw := strings.Join([]string{ua, platform, ratio, tz}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// parseScreen parses a "<width>x<height>" resolution string.
func parseScreen(s string) (w, h int, ok bool) {
	parts := strings.Split(s, "x")
	if len(parts) != 2 {
		return 0, 0, false
	}

	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}

	h, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}

	return w, h, true
}
