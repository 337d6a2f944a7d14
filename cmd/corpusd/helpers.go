package main

import (
	"net/url"
	"strings"
)

// redactDatabaseURL strips credentials from a database URL before it is
// ever printed, so validate-config output is safe to paste into a bug
// report or log aggregator.
func redactDatabaseURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw
	}
	// url.UserPassword would percent-encode the mask, so the userinfo is
	// spliced back in as literal text after the authority marker.
	parsed.User = nil
	return strings.Replace(parsed.String(), "//", "//***:***@", 1)
}
