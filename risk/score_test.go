package risk

import (
	"testing"

	"github.com/disappointingsupernova/sessiongate/device"
)

var baseline = device.Context{
	DeviceID:       "dev-1",
	ClientType:     device.ClientWeb,
	BrowserFamily:  "chrome",
	BrowserVersion: "120",
	IP:             "198.51.100.1",
	ASN:            "64500",
	Country:        "US",
}

func TestScoreDeltas(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*device.Context)
		want   int
	}{
		{"identical", func(*device.Context) {}, 0},
		{"device id", func(c *device.Context) { c.DeviceID = "dev-2" }, DeltaDeviceID},
		{"client type", func(c *device.Context) { c.ClientType = device.ClientIOS }, DeltaClientType},
		{"browser family", func(c *device.Context) { c.BrowserFamily = "firefox"; c.BrowserVersion = "1" }, DeltaBrowserFamily},
		{"browser version", func(c *device.Context) { c.BrowserVersion = "121" }, DeltaBrowserVersion},
		{"country", func(c *device.Context) { c.Country = "CA"; c.ASN = "1"; c.IP = "203.0.113.9" }, DeltaCountry},
		{"asn same country", func(c *device.Context) { c.ASN = "64501"; c.IP = "203.0.113.9" }, DeltaASN},
		{"address same asn", func(c *device.Context) { c.IP = "198.51.100.2" }, DeltaSameASN},
		{"device and country", func(c *device.Context) { c.DeviceID = "x"; c.Country = "FR" }, DeltaDeviceID + DeltaCountry},
	}

	for _, tc := range cases {
		observed := baseline
		tc.mutate(&observed)
		got, _ := Score(baseline, observed)
		if got != tc.want {
			t.Fatalf("%s: expected delta %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestScoreIgnoresUnreportedFields(t *testing.T) {
	got, factors := Score(baseline, device.Context{})
	if got != 0 || len(factors) != 0 {
		t.Fatalf("expected no delta for empty observation, got %d %v", got, factors)
	}
}

func TestAccumulateSaturates(t *testing.T) {
	if got := Accumulate(MaxScore-1, 40); got != MaxScore {
		t.Fatalf("expected saturation, got %d", got)
	}
	if got := Accumulate(10, -5); got != 10 {
		t.Fatalf("negative delta must not decrease score, got %d", got)
	}
}

func TestAssessSlowDrift(t *testing.T) {
	p := DefaultPolicy()
	recorded := baseline
	score := 0

	step := func(observed device.Context) Assessment {
		a := p.Assess(score, recorded, observed)
		score = a.Cumulative
		recorded = recorded.MergeNetwork(observed)
		return a
	}

	for i, asn := range []string{"64501", "64502", "64503"} {
		obs := recorded
		obs.ASN = asn
		a := step(obs)
		if a.Delta != DeltaASN {
			t.Fatalf("step %d: expected asn delta, got %d", i, a.Delta)
		}
		if a.Rotate || a.Reauth {
			t.Fatalf("step %d: no action expected at %d", i, a.Cumulative)
		}
	}
	if score != 24 {
		t.Fatalf("expected 24 after three asn changes, got %d", score)
	}

	obs := recorded
	obs.Country = "CA"
	a := step(obs)
	if a.Cumulative != 49 || !a.Rotate || a.Reauth {
		t.Fatalf("expected rotate-only at 49, got %+v", a)
	}

	obs = recorded
	obs.DeviceID = "dev-2"
	a = step(obs)
	if a.Cumulative != 89 || !a.Reauth {
		t.Fatalf("expected reauth at 89, got %+v", a)
	}
}

func TestPolicyActionsAreIndependent(t *testing.T) {
	p := Policy{RotateEnabled: false, ReauthEnabled: true, ReauthThreshold: 70}
	if p.ShouldRotate(1000) {
		t.Fatalf("rotate disabled must never fire")
	}
	if !p.ShouldReauth(70) {
		t.Fatalf("reauth should fire at threshold")
	}
	if err := (Policy{RotateEnabled: true}).Validate(); err == nil {
		t.Fatalf("expected validation error for zero rotate threshold")
	}
}
