package risk

import (
	"math"

	"github.com/disappointingsupernova/sessiongate/device"
)

// Deltas applied per observed change.
const (
	DeltaDeviceID       = 40
	DeltaClientType     = 30
	DeltaBrowserFamily  = 20
	DeltaBrowserVersion = 5
	DeltaCountry        = 25
	DeltaASN            = 8
	DeltaSameASN        = 2
)

// MaxScore caps the cumulative score so it never wraps.
const MaxScore = math.MaxInt32

// Factor names one contribution to a delta.
type Factor struct {
	Name  string `json:"name"`
	Delta int    `json:"delta"`
}

const (
	FactorDeviceID       = "device_id"
	FactorClientType     = "client_type"
	FactorBrowserFamily  = "browser_family"
	FactorBrowserVersion = "browser_version"
	FactorCountry        = "country"
	FactorASN            = "asn"
	FactorAddress        = "address"
)

// Score compares the recorded context with the observed one and returns the
// summed delta plus the contributing factors. Fields the request does not
// report are ignored. Network changes contribute through exactly one branch:
// a country change, else an ASN change, else an address change inside the
// same network.
func Score(recorded, observed device.Context) (int, []Factor) {
	var factors []Factor
	add := func(name string, delta int) {
		factors = append(factors, Factor{Name: name, Delta: delta})
	}

	if observed.DeviceID != "" && observed.DeviceID != recorded.DeviceID {
		add(FactorDeviceID, DeltaDeviceID)
	}
	if observed.ClientType != "" && observed.ClientType != recorded.ClientType {
		add(FactorClientType, DeltaClientType)
	}
	if observed.BrowserFamily != "" && observed.BrowserFamily != recorded.BrowserFamily {
		add(FactorBrowserFamily, DeltaBrowserFamily)
	} else if observed.BrowserVersion != "" && observed.BrowserVersion != recorded.BrowserVersion {
		add(FactorBrowserVersion, DeltaBrowserVersion)
	}

	switch {
	case observed.Country != "" && observed.Country != recorded.Country:
		add(FactorCountry, DeltaCountry)
	case observed.ASN != "" && observed.ASN != recorded.ASN:
		add(FactorASN, DeltaASN)
	case observed.IP != "" && observed.IP != recorded.IP:
		add(FactorAddress, DeltaSameASN)
	}

	delta := 0
	for _, f := range factors {
		delta += f.Delta
	}
	return delta, factors
}

// Accumulate adds delta to cumulative, saturating at [MaxScore]. Negative
// deltas are ignored.
func Accumulate(cumulative, delta int) int {
	if cumulative < 0 {
		cumulative = 0
	}
	if delta <= 0 {
		return cumulative
	}
	if cumulative > MaxScore-delta {
		return MaxScore
	}
	return cumulative + delta
}
