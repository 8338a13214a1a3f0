// Package tabs passes tab, window and toolbar-action operations through to
// the host browser, with the host's quirks smoothed over.
package tabs

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// Tab id flavors. Ids below zero are behind-the-scene: requests that belong
// to no tab, or to some tab that cannot be pinpointed.
const (
	UnsetTabID = 0
	NoTabID    = -1
	AnyTabID   = -2
)

// IsBehindTheScene reports whether id is one of the negative tab ids.
func IsBehindTheScene(id int) bool {
	return id < 0
}

// Normalize maps anything that is not a real host tab id to UnsetTabID.
func Normalize(id int) int {
	if id > 0 {
		return id
	}
	return UnsetTabID
}

var (
	reHasScheme  = regexp.MustCompile(`^[\w-]{2,}:`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// SanitizeURL strips whitespace from the header of a data: URI. Whitespace
// is never valid there and has been seen used to slip past filters. The
// first run of whitespace is removed; anything else is returned unchanged.
func SanitizeURL(raw string) string {
	if !strings.HasPrefix(raw, "data:") {
		return raw
	}
	pos := strings.IndexByte(raw, ',')
	if pos == -1 {
		return raw
	}
	header := raw[:pos]
	loc := reWhitespace.FindStringIndex(header)
	if loc == nil {
		return raw
	}
	return header[:loc[0]] + header[loc[1]:] + raw[pos:]
}

// ResolveURL turns a path relative to the extension into an absolute URL
// under base. URLs that already carry a scheme are returned as is.
func ResolveURL(base, target string) string {
	if target == "" || reHasScheme.MatchString(target) {
		return target
	}
	if base == "" {
		return target
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(target, "/")
}

var punycode = idna.New(idna.MapForLookup(), idna.Transitional(false))

// PunycodeHostname returns the ASCII form of hostname. A hostname that fails
// conversion is returned unchanged.
func PunycodeHostname(hostname string) string {
	if hostname == "" {
		return hostname
	}
	ascii, err := punycode.ToASCII(hostname)
	if err != nil {
		return hostname
	}
	return ascii
}

// PunycodeURL rewrites the host part of rawURL into its ASCII form.
func PunycodeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	host := u.Hostname()
	ascii := PunycodeHostname(host)
	if ascii == host {
		return rawURL
	}
	if port := u.Port(); port != "" {
		u.Host = ascii + ":" + port
	} else {
		u.Host = ascii
	}
	return u.String()
}
