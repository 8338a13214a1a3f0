package tabs

import "testing"

func TestTabIDs(t *testing.T) {
	tests := []struct {
		id          int
		behindScene bool
		normalized  int
	}{
		{AnyTabID, true, UnsetTabID},
		{NoTabID, true, UnsetTabID},
		{UnsetTabID, false, UnsetTabID},
		{42, false, 42},
	}
	for _, tt := range tests {
		if got := IsBehindTheScene(tt.id); got != tt.behindScene {
			t.Errorf("IsBehindTheScene(%d) = %v, want %v", tt.id, got, tt.behindScene)
		}
		if got := Normalize(tt.id); got != tt.normalized {
			t.Errorf("Normalize(%d) = %d, want %d", tt.id, got, tt.normalized)
		}
	}
}

func TestSanitizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/a b", "https://example.com/a b"},
		{"data:text/html,<p>hi there</p>", "data:text/html,<p>hi there</p>"},
		{"data:text/ht\n\tml;base64,PGI+", "data:text/html;base64,PGI+"},
		{"data:text/html;  charset=utf-8,<b>a b</b>", "data:text/html;charset=utf-8,<b>a b</b>"},
		{"data:no comma here", "data:no comma here"},
	}
	for _, tt := range tests {
		if got := SanitizeURL(tt.in); got != tt.want {
			t.Errorf("SanitizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveURL(t *testing.T) {
	const base = "chrome-extension://abcdef/"
	tests := []struct {
		target string
		want   string
	}{
		{"dashboard.html", "chrome-extension://abcdef/dashboard.html"},
		{"/logger-ui.html#tab", "chrome-extension://abcdef/logger-ui.html#tab"},
		{"https://example.com/", "https://example.com/"},
		{"about:blank", "about:blank"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ResolveURL(base, tt.target); got != tt.want {
			t.Errorf("ResolveURL(%q) = %q, want %q", tt.target, got, tt.want)
		}
	}
	if got := ResolveURL("", "popup.html"); got != "popup.html" {
		t.Errorf("ResolveURL without base = %q", got)
	}
}

func TestPunycode(t *testing.T) {
	if got := PunycodeHostname("münchen.de"); got != "xn--mnchen-3ya.de" {
		t.Errorf("PunycodeHostname = %q", got)
	}
	if got := PunycodeHostname("example.com"); got != "example.com" {
		t.Errorf("PunycodeHostname ascii = %q", got)
	}
	if got := PunycodeURL("https://bücher.example:8443/path?q=1"); got != "https://xn--bcher-kva.example:8443/path?q=1" {
		t.Errorf("PunycodeURL = %q", got)
	}
	if got := PunycodeURL("https://example.com/ü"); got != "https://example.com/ü" {
		t.Errorf("PunycodeURL ascii host = %q", got)
	}
	if got := PunycodeURL("not a url"); got != "not a url" {
		t.Errorf("PunycodeURL garbage = %q", got)
	}
}
