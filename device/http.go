package device

import (
	"net"
	"net/http"
	"strings"
)

// Headers names the request headers an edge proxy uses to report device and
// geo attributes.
type Headers struct {
	DeviceID       string
	ClientType     string
	BrowserFamily  string
	BrowserVersion string
	ClientIP       string
	ASN            string
	Country        string
}

// DefaultHeaders is the header set read by [FromRequest].
var DefaultHeaders = Headers{
	DeviceID:       "X-Device-ID",
	ClientType:     "X-Client-Type",
	BrowserFamily:  "X-Browser-Family",
	BrowserVersion: "X-Browser-Version",
	ClientIP:       "X-Real-IP",
	ASN:            "X-Geo-ASN",
	Country:        "X-Geo-Country",
}

// FromRequest extracts a normalized, validated [Context] using [DefaultHeaders].
func FromRequest(r *http.Request) (Context, error) {
	return DefaultHeaders.FromRequest(r)
}

// FromRequest extracts a normalized, validated [Context] from r. When the
// client IP header is absent the host part of r.RemoteAddr is used.
func (h Headers) FromRequest(r *http.Request) (Context, error) {
	c := Context{
		DeviceID:       r.Header.Get(h.DeviceID),
		ClientType:     ClientType(r.Header.Get(h.ClientType)),
		BrowserFamily:  r.Header.Get(h.BrowserFamily),
		BrowserVersion: r.Header.Get(h.BrowserVersion),
		IP:             r.Header.Get(h.ClientIP),
		ASN:            r.Header.Get(h.ASN),
		Country:        r.Header.Get(h.Country),
	}
	if strings.TrimSpace(c.IP) == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			c.IP = host
		}
	}
	return Parse(c)
}
