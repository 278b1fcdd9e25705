package gateway

import (
	"errors"
	"fmt"
)

// Capability names an optional gateway feature.
//
// Features that are not enabled fail fast and explicitly via Require,
// rather than being silently absent from routing tables.
type Capability string

const (
	CapabilityPredictiveDialing Capability = "predictive_dialing"
	CapabilityCallTransfer      Capability = "call_transfer"
	CapabilityCallRecording     Capability = "call_recording"
	CapabilityVoicemailDrop     Capability = "voicemail_drop"
)

var ErrCapabilityUnavailable = errors.New("capability unavailable")

// Capabilities is the set of features enabled for this deployment.
type Capabilities struct {
	enabled map[Capability]bool
}

func NewCapabilities(enabled ...Capability) *Capabilities {
	m := make(map[Capability]bool, len(enabled))
	for _, c := range enabled {
		m[c] = true
	}
	return &Capabilities{enabled: m}
}

func (c *Capabilities) Has(cap Capability) bool {
	return c != nil && c.enabled[cap]
}

// Require returns ErrCapabilityUnavailable (wrapped with the capability
// name) when the feature is not enabled.
func (c *Capabilities) Require(cap Capability) error {
	if c.Has(cap) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrCapabilityUnavailable, cap)
}
