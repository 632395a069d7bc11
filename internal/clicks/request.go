package clicks

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"unicode/utf8"

	"github.com/mssola/useragent"
	"golang.org/x/text/language"
)

// Headers set by a Cloudflare-style edge in front of the service.
const (
	HeaderConnectingIP = "CF-Connecting-IP"
	HeaderCity         = "CF-IPCity"
	HeaderRegion       = "CF-Region"
	HeaderCountry      = "CF-IPCountry"
	HeaderLatitude     = "CF-IPLatitude"
	HeaderLongitude    = "CF-IPLongitude"

	maxDimensionLength = 512
)

// anyLanguage is the tag the Accept-Language wildcard "*" parses to.
const anyLanguage = "mul"

// FromRequest extracts the source IP and click dimensions from r. Proxy and
// geo headers are only read when trustProxy is set; otherwise the source IP is
// the connection's remote address and geo fields stay Unknown. Values that
// cannot be parsed fall back to defaults.
func FromRequest(r *http.Request, trustProxy bool) (string, Dimensions) {
	d := Dimensions{
		Referer:  clip(r.Referer()),
		Language: preferredLanguage(r.Header.Get("Accept-Language")),
	}
	d.Device, d.Browser = parseUserAgent(r.UserAgent())

	if trustProxy {
		d.City = clip(r.Header.Get(HeaderCity))
		d.Region = clip(r.Header.Get(HeaderRegion))
		d.Country = clip(r.Header.Get(HeaderCountry))
		d.Latitude = clip(r.Header.Get(HeaderLatitude))
		d.Longitude = clip(r.Header.Get(HeaderLongitude))
	}

	return ClientIP(r, trustProxy), d.WithDefaults()
}

// ClientIP returns the caller's IP. With trustProxy it prefers
// CF-Connecting-IP, then the first X-Forwarded-For hop, then X-Real-IP.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		candidates := []string{
			r.Header.Get(HeaderConnectingIP),
			firstHop(r.Header.Get("X-Forwarded-For")),
			r.Header.Get("X-Real-IP"),
		}
		for _, c := range candidates {
			if ip, ok := parseIP(c); ok {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip, ok := parseIP(host); ok {
		return ip
	}
	return Unknown
}

func firstHop(xff string) string {
	first, _, _ := strings.Cut(xff, ",")
	return first
}

func parseIP(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}

func preferredLanguage(header string) string {
	if header == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	if tags[0] == language.Und || tags[0].String() == anyLanguage {
		return ""
	}
	return tags[0].String()
}

func parseUserAgent(raw string) (device, browser string) {
	if strings.TrimSpace(raw) == "" {
		return "", ""
	}

	ua := useragent.New(raw)
	switch {
	case ua.Bot():
		device = "Bot"
	case isTablet(raw):
		device = "Tablet"
	case ua.Mobile():
		device = "Mobile"
	default:
		device = "Desktop"
	}

	name, _ := ua.Browser()
	return device, clip(name)
}

func isTablet(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.Contains(lower, "ipad") ||
		strings.Contains(lower, "tablet") ||
		(strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"))
}

// clip drops invalid UTF-8 and cuts s to maxDimensionLength bytes without
// splitting a rune.
func clip(s string) string {
	s = strings.TrimSpace(strings.ToValidUTF8(s, ""))
	if len(s) <= maxDimensionLength {
		return s
	}
	cut := maxDimensionLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
