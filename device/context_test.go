package device

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseNormalizesFields(t *testing.T) {
	got, err := Parse(Context{
		DeviceID:      "  dev-1 ",
		ClientType:    "WEB",
		BrowserFamily: "Firefox",
		IP:            "::ffff:10.0.0.1",
		ASN:           "AS13335",
		Country:       "de",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.DeviceID != "dev-1" || got.ClientType != ClientWeb || got.BrowserFamily != "firefox" {
		t.Fatalf("unexpected identity fields: %+v", got)
	}
	if got.IP != "10.0.0.1" || got.ASN != "13335" || got.Country != "DE" {
		t.Fatalf("unexpected network fields: %+v", got)
	}
}

func TestParseRejectsInvalidFields(t *testing.T) {
	cases := map[string]Context{
		"client type": {ClientType: "toaster"},
		"country":     {Country: "Germany"},
		"asn":         {ASN: "abc"},
		"ip":          {IP: "999.1.1.1"},
		"control":     {DeviceID: "dev\x00id"},
		"length":      {BrowserVersion: strings.Repeat("1", MaxFieldLength+1)},
	}
	for name, c := range cases {
		if _, err := Parse(c); !errors.Is(err, ErrInvalidContext) {
			t.Fatalf("%s: expected ErrInvalidContext, got %v", name, err)
		}
	}
}

func TestEmptyContextIsValid(t *testing.T) {
	if _, err := Parse(Context{}); err != nil {
		t.Fatalf("empty context should be valid: %v", err)
	}
}

func TestMergeNetworkKeepsIdentity(t *testing.T) {
	base := Context{DeviceID: "a", BrowserFamily: "chrome", IP: "10.0.0.1", ASN: "1", Country: "US"}
	got := base.MergeNetwork(Context{DeviceID: "b", IP: "10.0.0.2", Country: "CA"})
	if got.DeviceID != "a" || got.BrowserFamily != "chrome" {
		t.Fatalf("identity fields must not change: %+v", got)
	}
	if got.IP != "10.0.0.2" || got.ASN != "1" || got.Country != "CA" {
		t.Fatalf("unexpected network merge: %+v", got)
	}
}

func TestFromRequestReadsHeadersAndRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.7:5555"
	r.Header.Set("X-Device-ID", "dev-9")
	r.Header.Set("X-Client-Type", "ios")
	r.Header.Set("X-Geo-Country", "fr")

	got, err := FromRequest(r)
	if err != nil {
		t.Fatalf("from request: %v", err)
	}
	if got.DeviceID != "dev-9" || got.ClientType != ClientIOS || got.Country != "FR" || got.IP != "192.0.2.7" {
		t.Fatalf("unexpected context: %+v", got)
	}
}
