package session

import "math/rand/v2"

// Profile is a consistent set of request headers for one browser identity.
// Every lease draws one, so two leases rarely look like the same visitor.
type Profile struct {
	UserAgent       string
	Accept          string
	AcceptLanguage  string
	AcceptEncoding  string
	SecFetchDest    string
	SecFetchMode    string
	SecFetchSite    string
	SecFetchUser    string
	SecChUa         string
	SecChUaMobile   string
	SecChUaPlatform string
	Width, Height   int
	Mobile          bool
}

// Strategy picks the family of profiles a pool leases with.
type Strategy string

const (
	StrategyDesktop Strategy = "desktop"
	StrategyMobile  Strategy = "mobile"
)

const chromeAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
const safariAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
const chromeSecChUa = `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`

var desktopProfiles = []Profile{
	{
		UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Accept:          chromeAccept,
		AcceptLanguage:  "en-US,en;q=0.9",
		AcceptEncoding:  "gzip, deflate, br, zstd",
		SecFetchDest:    "document",
		SecFetchMode:    "navigate",
		SecFetchSite:    "none",
		SecFetchUser:    "?1",
		SecChUa:         chromeSecChUa,
		SecChUaMobile:   "?0",
		SecChUaPlatform: `"macOS"`,
		Width:           1440,
		Height:          900,
	},
	{
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Accept:          chromeAccept,
		AcceptLanguage:  "en-IN,en;q=0.9",
		AcceptEncoding:  "gzip, deflate, br, zstd",
		SecFetchDest:    "document",
		SecFetchMode:    "navigate",
		SecFetchSite:    "none",
		SecFetchUser:    "?1",
		SecChUa:         chromeSecChUa,
		SecChUaMobile:   "?0",
		SecChUaPlatform: `"Windows"`,
		Width:           1920,
		Height:          1080,
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Safari/605.1.15",
		Accept:         safariAccept,
		AcceptLanguage: "en-US,en;q=0.9",
		AcceptEncoding: "gzip, deflate, br",
		SecFetchDest:   "document",
		SecFetchMode:   "navigate",
		SecFetchSite:   "none",
		Width:          1536,
		Height:         864,
	},
}

var mobileProfiles = []Profile{
	{
		UserAgent:       "Mozilla/5.0 (iPhone; CPU iPhone OS 18_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Mobile/15E148 Safari/604.1",
		Accept:          safariAccept,
		AcceptLanguage:  "en-US,en;q=0.9",
		AcceptEncoding:  "gzip, deflate, br",
		SecFetchDest:    "document",
		SecFetchMode:    "navigate",
		SecFetchSite:    "none",
		SecChUaMobile:   "?1",
		SecChUaPlatform: `"iOS"`,
		Width:           390,
		Height:          844,
		Mobile:          true,
	},
	{
		UserAgent:       "Mozilla/5.0 (Linux; Android 14; Pixel 8 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Mobile Safari/537.36",
		Accept:          chromeAccept,
		AcceptLanguage:  "en-US,en;q=0.9",
		AcceptEncoding:  "gzip, deflate, br, zstd",
		SecFetchDest:    "document",
		SecFetchMode:    "navigate",
		SecFetchSite:    "none",
		SecFetchUser:    "?1",
		SecChUa:         chromeSecChUa,
		SecChUaMobile:   "?1",
		SecChUaPlatform: `"Android"`,
		Width:           412,
		Height:          915,
		Mobile:          true,
	},
}

// PickProfile returns a random profile for the strategy. Unknown strategies
// fall back to desktop.
func PickProfile(s Strategy) Profile {
	if s == StrategyMobile {
		return mobileProfiles[rand.IntN(len(mobileProfiles))]
	}
	return desktopProfiles[rand.IntN(len(desktopProfiles))]
}

// Headers builds the extra HTTP headers sent with every request of a session.
func (p Profile) Headers() map[string]string {
	headers := map[string]string{
		"Accept":                    p.Accept,
		"Accept-Language":           p.AcceptLanguage,
		"Accept-Encoding":           p.AcceptEncoding,
		"Upgrade-Insecure-Requests": "1",
	}
	if p.SecFetchDest != "" {
		headers["Sec-Fetch-Dest"] = p.SecFetchDest
		headers["Sec-Fetch-Mode"] = p.SecFetchMode
		headers["Sec-Fetch-Site"] = p.SecFetchSite
		if p.SecFetchUser != "" {
			headers["Sec-Fetch-User"] = p.SecFetchUser
		}
	}
	if p.SecChUa != "" {
		headers["Sec-Ch-Ua"] = p.SecChUa
		headers["Sec-Ch-Ua-Mobile"] = p.SecChUaMobile
		headers["Sec-Ch-Ua-Platform"] = p.SecChUaPlatform
	}
	return headers
}
