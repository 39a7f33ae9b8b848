package executor

import (
	"strings"

	"navigator/internal/core/nav"
)

// Detector recognizes pages that block automation instead of serving content.
type Detector interface {
	Blocked(snap *nav.PageSnapshot) (reason string, blocked bool)
}

// ChallengeDetector knows Cloudflare interstitials and the common captcha walls.
type ChallengeDetector struct{}

var challengeTitles = []string{
	"Just a moment",
	"Checking your browser",
	"Attention Required",
	"Robot Check",
}

var captchaMarkup = []string{
	`id="captchacharacters"`,
	"cf-challenge",
	"challenge-platform",
	"px-captcha",
}

func (ChallengeDetector) Blocked(snap *nav.PageSnapshot) (string, bool) {
	if snap == nil {
		return "", false
	}
	for _, t := range challengeTitles {
		if strings.Contains(snap.Title, t) {
			return "challenge page: " + snap.Title, true
		}
	}
	if snap.Contains("Cloudflare") && snap.Contains("Ray ID") {
		return "cloudflare block page", true
	}
	if snap.Contains("Waiting for") && snap.Contains("to respond") {
		return "cloudflare waiting room", true
	}
	if snap.Contains("Enter the characters you see below") {
		return "captcha", true
	}
	for _, m := range captchaMarkup {
		if snap.HTMLContains(m) {
			return "captcha markup " + m, true
		}
	}
	return "", false
}
