package gateway

import (
	"errors"
	"testing"
)

func TestCapabilities_RequireFailsFast(t *testing.T) {
	caps := NewCapabilities(CapabilityCallRecording)

	if err := caps.Require(CapabilityCallRecording); err != nil {
		t.Fatalf("expected enabled capability, got %v", err)
	}
	err := caps.Require(CapabilityPredictiveDialing)
	if !errors.Is(err, ErrCapabilityUnavailable) {
		t.Fatalf("expected ErrCapabilityUnavailable, got %v", err)
	}
}

func TestCapabilities_NilIsEmpty(t *testing.T) {
	var caps *Capabilities
	if caps.Has(CapabilityCallTransfer) {
		t.Fatalf("nil capabilities should have nothing")
	}
	if err := caps.Require(CapabilityCallTransfer); err == nil {
		t.Fatalf("expected error from nil capabilities")
	}
}
