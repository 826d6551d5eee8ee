package session

import (
	"math/rand/v2"
	"net/http"
)

// HeaderProfile is one coherent desktop browser fingerprint
type HeaderProfile struct {
	UserAgent      string
	AcceptLanguage string
	SecChUA        string
	Platform       string
}

// DefaultProfiles is the rotation pool used when none is configured
var DefaultProfiles = []HeaderProfile{
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9",
		SecChUA:        `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
		Platform:       `"Windows"`,
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		AcceptLanguage: "en-GB,en;q=0.9",
		SecChUA:        `"Google Chrome";v="123", "Not:A-Brand";v="8", "Chromium";v="123"`,
		Platform:       `"macOS"`,
	},
	{
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.8",
		SecChUA:        `"Chromium";v="122", "Not(A:Brand";v="24", "Google Chrome";v="122"`,
		Platform:       `"Linux"`,
	},
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
		AcceptLanguage: "en-US,en;q=0.9,de;q=0.6",
		SecChUA:        `"Chromium";v="124", "Microsoft Edge";v="124", "Not-A.Brand";v="99"`,
		Platform:       `"Windows"`,
	},
}

func pickProfile(pool []HeaderProfile) HeaderProfile {
	return pool[rand.IntN(len(pool))]
}

// apply sets the rotating fingerprint plus the fixed API headers
func (p HeaderProfile) apply(h http.Header, appID, csrf, referer string) {
	h.Set("User-Agent", p.UserAgent)
	h.Set("Accept-Language", p.AcceptLanguage)
	h.Set("sec-ch-ua", p.SecChUA)
	h.Set("sec-ch-ua-mobile", "?0")
	h.Set("sec-ch-ua-platform", p.Platform)
	h.Set("Accept", "*/*")
	h.Set("X-IG-App-ID", appID)
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("Referer", referer)
	if csrf != "" {
		h.Set("X-CSRFToken", csrf)
	}
}
