package risk

import (
	"errors"
	"strconv"

	"github.com/disappointingsupernova/sessiongate/device"
)

// Default thresholds.
const (
	DefaultRotateThreshold = 40
	DefaultReauthThreshold = 70
)

// Policy turns a cumulative score into actions. Rotation and re-authentication
// are independent: either can be disabled or tuned without affecting the other.
type Policy struct {
	RotateEnabled   bool
	RotateThreshold int
	ReauthEnabled   bool
	ReauthThreshold int
}

// DefaultPolicy enables both actions at the default thresholds.
func DefaultPolicy() Policy {
	return Policy{
		RotateEnabled:   true,
		RotateThreshold: DefaultRotateThreshold,
		ReauthEnabled:   true,
		ReauthThreshold: DefaultReauthThreshold,
	}
}

// Validate checks threshold sanity for enabled actions.
func (p Policy) Validate() error {
	if p.RotateEnabled && p.RotateThreshold <= 0 {
		return errors.New("risk: rotate threshold must be > 0")
	}
	if p.ReauthEnabled && p.ReauthThreshold <= 0 {
		return errors.New("risk: reauth threshold must be > 0")
	}
	return nil
}

// Assessment is the outcome of scoring one request against a session.
type Assessment struct {
	Delta      int      `json:"delta"`
	Previous   int      `json:"previous"`
	Cumulative int      `json:"cumulative"`
	Factors    []Factor `json:"factors,omitempty"`
	// Rotate asks for the next refresh credential to carry the reduced lifetime.
	Rotate bool `json:"rotate"`
	// Reauth asks for the session to move to reauth_required.
	Reauth bool `json:"reauth"`
}

// Assess scores observed against recorded and evaluates the thresholds on the
// summed cumulative score.
func (p Policy) Assess(cumulative int, recorded, observed device.Context) Assessment {
	delta, factors := Score(recorded, observed)
	next := Accumulate(cumulative, delta)
	return Assessment{
		Delta:      delta,
		Previous:   cumulative,
		Cumulative: next,
		Factors:    factors,
		Rotate:     p.ShouldRotate(next),
		Reauth:     p.ShouldReauth(next),
	}
}

// ShouldRotate reports whether score has reached the rotate threshold.
func (p Policy) ShouldRotate(score int) bool {
	return p.RotateEnabled && score >= p.RotateThreshold
}

// ShouldReauth reports whether score has reached the re-authentication threshold.
func (p Policy) ShouldReauth(score int) bool {
	return p.ReauthEnabled && score >= p.ReauthThreshold
}

// Detail flattens a into string pairs for security event records.
func (a Assessment) Detail() map[string]string {
	detail := map[string]string{
		"delta":      strconv.Itoa(a.Delta),
		"cumulative": strconv.Itoa(a.Cumulative),
	}
	for _, f := range a.Factors {
		detail["factor_"+f.Name] = strconv.Itoa(f.Delta)
	}
	return detail
}
