package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteCookieGuide prints how to copy the session cookies out of a browser
func WriteCookieGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	lines := []string{
		rule,
		"SESSION COOKIE EXTRACTION",
		rule,
		"",
		"The worker signs upstream requests with the cookies of a logged-in",
		"browser session. Use a dedicated account, never your personal one.",
		"",
		"1. Log in at https://www.instagram.com in your browser.",
		"2. Open Developer Tools (F12, or Cmd+Option+I on macOS).",
		"3. Application tab (Chrome) or Storage tab (Firefox) > Cookies >",
		"   https://www.instagram.com",
		"4. Copy the values of these cookies:",
		"",
		"   sessionid   required, long string containing %3A",
		"   csrftoken   optional, refreshed automatically by the worker",
		"   ds_user_id  optional, numeric id of the logged-in account",
		"",
		"Copy only the value, without quotes or semicolons. A session that",
		"the upstream invalidates stops the worker and raises an alert; run",
		"`igharvest auth login` again with fresh cookies.",
		rule,
	}
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
