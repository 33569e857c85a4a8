package fingerprint

import (
	"strconv"
	"strings"
)

// Risk weights. Cumulative, not mutually exclusive; the total is an
// advisory signal shown to admins and never gates approval on its own.
const (
	riskAutomation    = 50 // headless/bot user agent signature
	riskSmallScreen   = 10 // suspiciously small or emulated viewport
	riskLowCPU        = 10 // single-threaded or unparseable CPU count
	riskNoTimezone    = 5  // missing or UTC timezone
	riskLegacyBrowser = 10 // MSIE/Trident, trivially spoofable
)

var automationSignatures = []string{"headless", "phantom", "selenium"}

// Score computes the additive risk heuristic for a registration payload.
// It never fails; unparseable fields count toward the score where the
// rules say so and are otherwise ignored.
func Score(p Payload) int {
	score := 0
	ua := strings.ToLower(p.UserAgent)

	for _, sig := range automationSignatures {
		if strings.Contains(ua, sig) {
			score += riskAutomation
			break
		}
	}

	if w, h, ok := parseScreen(p.Screen); ok && (w <= 800 || h <= 600) {
		score += riskSmallScreen
	}

	threads, err := strconv.Atoi(strings.TrimSpace(p.CPUThreads))
	if err != nil {
		threads = 0
	}
	if threads <= 1 {
		score += riskLowCPU
	}

	if tz := strings.ToUpper(p.Timezone); tz == "" || tz == "UTC" {
		score += riskNoTimezone
	}

	if strings.Contains(ua, "msie") || strings.Contains(ua, "trident") {
		score += riskLegacyBrowser
	}

	return score
}
