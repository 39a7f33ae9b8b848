package session

import "strings"

var blockedPatterns = []string{
	// ads
	"googlesyndication.com", "doubleclick.net", "googleadservices.com", "amazon-adsystem.com",
	"outbrain.com", "taboola.com", "adsystem.amazon", "googleads",
	// trackers
	"google-analytics.com", "googletagmanager.com", "hotjar.com", "mixpanel.com",
	"segment.com", "amplitude.com", "fullstory.com", "logrocket.com",
	"mouseflow.com", "smartlook.com", "facebook.com/tr", "linkedin.com/px",
	// chat widgets
	"intercom.io", "zendesk.com", "livechat.com", "drift.com", "tawk.to", "crisp.chat",
}

// blockedURL reports requests that never matter for reading a product page.
func blockedURL(u string) bool {
	u = strings.ToLower(u)
	for _, p := range blockedPatterns {
		if strings.Contains(u, p) {
			return true
		}
	}
	return false
}
