package clicks

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

const (
	firefoxDesktop = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	chromeAndroid  = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36"
	safariIPad     = "Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"
	googlebot      = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trust      bool
		want       string
	}{
		{
			name:       "remote addr host",
			remoteAddr: "192.0.2.10:5555",
			want:       "192.0.2.10",
		},
		{
			name:       "proxy headers ignored when untrusted",
			remoteAddr: "192.0.2.10:5555",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1", HeaderConnectingIP: "203.0.113.2"},
			want:       "192.0.2.10",
		},
		{
			name:       "cf connecting ip first",
			remoteAddr: "192.0.2.10:5555",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1", HeaderConnectingIP: "203.0.113.2"},
			trust:      true,
			want:       "203.0.113.2",
		},
		{
			name:       "first forwarded hop",
			remoteAddr: "192.0.2.10:5555",
			headers:    map[string]string{"X-Forwarded-For": " 203.0.113.1 , 10.0.0.1"},
			trust:      true,
			want:       "203.0.113.1",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "192.0.2.10:5555",
			headers:    map[string]string{"X-Real-IP": "203.0.113.3"},
			trust:      true,
			want:       "203.0.113.3",
		},
		{
			name:       "garbage header falls through",
			remoteAddr: "192.0.2.10:5555",
			headers:    map[string]string{HeaderConnectingIP: "not-an-ip", "X-Real-IP": "203.0.113.3"},
			trust:      true,
			want:       "203.0.113.3",
		},
		{
			name:       "ipv6 remote",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
		{
			name:       "ipv4 mapped ipv6 is unmapped",
			remoteAddr: "[::ffff:192.0.2.4]:443",
			want:       "192.0.2.4",
		},
		{
			name:       "remote without port",
			remoteAddr: "192.0.2.10",
			want:       "192.0.2.10",
		},
		{
			name:       "unparseable remote",
			remoteAddr: "pipe",
			want:       Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req, tt.trust); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromRequest(t *testing.T) {
	t.Run("bare request gets defaults", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "192.0.2.10:1234"

		ip, d := FromRequest(req, false)
		if ip != "192.0.2.10" {
			t.Errorf("ip = %q", ip)
		}
		want := Dimensions{}.WithDefaults()
		if d != want {
			t.Errorf("Dimensions = %+v, want %+v", d, want)
		}
	})

	t.Run("trusted edge headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(HeaderCity, "Berlin")
		req.Header.Set(HeaderRegion, "BE")
		req.Header.Set(HeaderCountry, "DE")
		req.Header.Set(HeaderLatitude, "52.52")
		req.Header.Set(HeaderLongitude, "13.40")
		req.Header.Set("Referer", "https://t.example/")
		req.Header.Set("Accept-Language", "fr-CH, fr;q=0.9, en;q=0.8")
		req.Header.Set("User-Agent", firefoxDesktop)

		_, d := FromRequest(req, true)
		want := Dimensions{
			City:      "Berlin",
			Region:    "BE",
			Country:   "DE",
			Latitude:  "52.52",
			Longitude: "13.40",
			Referer:   "https://t.example/",
			Language:  "fr-CH",
			Device:    "Desktop",
			Browser:   "Firefox",
		}
		if d != want {
			t.Errorf("Dimensions = %+v, want %+v", d, want)
		}
	})

	t.Run("geo headers ignored when untrusted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(HeaderCountry, "DE")

		if _, d := FromRequest(req, false); d.Country != Unknown {
			t.Errorf("Country = %q, want %q", d.Country, Unknown)
		}
	})

	t.Run("oversized values are clipped", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Referer", "https://t.example/"+strings.Repeat("a", 2*maxDimensionLength))

		if _, d := FromRequest(req, false); len(d.Referer) != maxDimensionLength {
			t.Errorf("len(Referer) = %d, want %d", len(d.Referer), maxDimensionLength)
		}
	})

	t.Run("clipping keeps multibyte runes whole", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Referer", strings.Repeat("a", maxDimensionLength-1)+"é")

		_, d := FromRequest(req, false)
		if !utf8.ValidString(d.Referer) {
			t.Fatalf("Referer is not valid UTF-8")
		}
		if want := strings.Repeat("a", maxDimensionLength-1); d.Referer != want {
			t.Errorf("len(Referer) = %d, want %d", len(d.Referer), len(want))
		}
	})

	t.Run("invalid UTF-8 is dropped", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(HeaderCity, "Z\xffrich")

		_, d := FromRequest(req, true)
		if d.City != "Zrich" {
			t.Errorf("City = %q, want %q", d.City, "Zrich")
		}
	})
}

func TestClip(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantLen int
	}{
		{"short", "  hello  ", 5},
		{"exact", strings.Repeat("a", maxDimensionLength), maxDimensionLength},
		{"ascii overflow", strings.Repeat("a", maxDimensionLength+10), maxDimensionLength},
		{"two byte rune straddles limit", strings.Repeat("a", maxDimensionLength-1) + "é", maxDimensionLength - 1},
		{"three byte rune straddles limit", strings.Repeat("a", maxDimensionLength-2) + "€", maxDimensionLength - 2},
		{"invalid bytes", "a\xff\xfeb", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clip(tt.in)
			if len(got) != tt.wantLen {
				t.Errorf("len(clip) = %d, want %d", len(got), tt.wantLen)
			}
			if !utf8.ValidString(got) {
				t.Errorf("clip(%q) is not valid UTF-8", tt.in)
			}
		})
	}
}

func TestPreferredLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"en-US", "en-US"},
		{"de;q=0.5, ja", "ja"},
		{"*", ""},
		{"!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := preferredLanguage(tt.header); got != tt.want {
				t.Errorf("preferredLanguage(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name        string
		ua          string
		wantDevice  string
		wantBrowser string
	}{
		{"empty", "", "", ""},
		{"desktop firefox", firefoxDesktop, "Desktop", "Firefox"},
		{"android chrome", chromeAndroid, "Mobile", "Chrome"},
		{"ipad safari", safariIPad, "Tablet", "Safari"},
		{"bot", googlebot, "Bot", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, browser := parseUserAgent(tt.ua)
			if device != tt.wantDevice {
				t.Errorf("device = %q, want %q", device, tt.wantDevice)
			}
			// bot names vary between parser releases; only the device class is asserted
			if tt.ua != googlebot && browser != tt.wantBrowser {
				t.Errorf("browser = %q, want %q", browser, tt.wantBrowser)
			}
		})
	}
}
