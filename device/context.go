package device

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"unicode"
)

// ClientType identifies the kind of client holding a session.
type ClientType string

const (
	ClientUnknown ClientType = ""
	ClientWeb     ClientType = "web"
	ClientIOS     ClientType = "ios"
	ClientAndroid ClientType = "android"
	ClientCLI     ClientType = "cli"
)

// MaxFieldLength bounds every string field of a [Context].
const MaxFieldLength = 128

var (
	// ErrInvalidContext is returned by [Context.Validate] for any rejected field.
	ErrInvalidContext = errors.New("device: invalid context")
)

// Context is the device and network snapshot observed for a request.
type Context struct {
	DeviceID       string     `json:"device_id,omitempty"`
	ClientType     ClientType `json:"client_type,omitempty"`
	BrowserFamily  string     `json:"browser_family,omitempty"`
	BrowserVersion string     `json:"browser_version,omitempty"`
	IP             string     `json:"ip,omitempty"`
	ASN            string     `json:"asn,omitempty"`
	Country        string     `json:"country,omitempty"`
}

// Normalize returns a copy with surrounding whitespace removed, the client
// type and browser family lower-cased, the country upper-cased and the ASN
// stripped of an "AS" prefix.
func (c Context) Normalize() Context {
	out := Context{
		DeviceID:       strings.TrimSpace(c.DeviceID),
		ClientType:     ClientType(strings.ToLower(strings.TrimSpace(string(c.ClientType)))),
		BrowserFamily:  strings.ToLower(strings.TrimSpace(c.BrowserFamily)),
		BrowserVersion: strings.TrimSpace(c.BrowserVersion),
		IP:             strings.TrimSpace(c.IP),
		ASN:            strings.TrimSpace(c.ASN),
		Country:        strings.ToUpper(strings.TrimSpace(c.Country)),
	}
	if len(out.ASN) > 2 && strings.EqualFold(out.ASN[:2], "as") {
		out.ASN = out.ASN[2:]
	}
	if out.IP != "" {
		if addr, err := netip.ParseAddr(out.IP); err == nil {
			out.IP = addr.Unmap().String()
		}
	}
	return out
}

// Validate reports whether every reported field is acceptable.
// Call it on a normalized context.
func (c Context) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"device_id", c.DeviceID},
		{"client_type", string(c.ClientType)},
		{"browser_family", c.BrowserFamily},
		{"browser_version", c.BrowserVersion},
		{"ip", c.IP},
		{"asn", c.ASN},
		{"country", c.Country},
	}
	for _, f := range fields {
		if len(f.value) > MaxFieldLength {
			return fmt.Errorf("%w: %s too long", ErrInvalidContext, f.name)
		}
		if strings.IndexFunc(f.value, unicode.IsControl) >= 0 {
			return fmt.Errorf("%w: %s contains control characters", ErrInvalidContext, f.name)
		}
	}

	switch c.ClientType {
	case ClientUnknown, ClientWeb, ClientIOS, ClientAndroid, ClientCLI:
	default:
		return fmt.Errorf("%w: unknown client type %q", ErrInvalidContext, c.ClientType)
	}

	if c.IP != "" {
		if _, err := netip.ParseAddr(c.IP); err != nil {
			return fmt.Errorf("%w: ip", ErrInvalidContext)
		}
	}
	if c.ASN != "" && strings.IndexFunc(c.ASN, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return fmt.Errorf("%w: asn must be numeric", ErrInvalidContext)
	}
	if c.Country != "" {
		if len(c.Country) != 2 || strings.IndexFunc(c.Country, func(r rune) bool { return r < 'A' || r > 'Z' }) >= 0 {
			return fmt.Errorf("%w: country must be ISO 3166-1 alpha-2", ErrInvalidContext)
		}
	}

	return nil
}

// Parse normalizes and validates c in one step.
func Parse(c Context) (Context, error) {
	n := c.Normalize()
	if err := n.Validate(); err != nil {
		return Context{}, err
	}
	return n, nil
}

// MergeNetwork overlays the network fields reported in next onto c. Device identity
// fields are left untouched; they change only after primary re-verification.
func (c Context) MergeNetwork(next Context) Context {
	out := c
	if next.IP != "" {
		out.IP = next.IP
	}
	if next.ASN != "" {
		out.ASN = next.ASN
	}
	if next.Country != "" {
		out.Country = next.Country
	}
	return out
}

// Snapshot flattens c into string pairs for security event records.
func (c Context) Snapshot() map[string]string {
	out := make(map[string]string, 7)
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put("device_id", c.DeviceID)
	put("client_type", string(c.ClientType))
	put("browser_family", c.BrowserFamily)
	put("browser_version", c.BrowserVersion)
	put("ip", c.IP)
	put("asn", c.ASN)
	put("country", c.Country)
	return out
}
