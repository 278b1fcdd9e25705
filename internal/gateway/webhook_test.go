package gateway

import (
	"testing"
)

func TestParseEvent_Valid(t *testing.T) {
	body := []byte(`{"session_id":"s-1","event_type":"answered","seq":3}`)
	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.SessionID != "s-1" || ev.Type != EventAnswered || ev.Seq != 3 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestParseEvent_RejectsUnknownType(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"session_id":"s-1","event_type":"teleported"}`)); err == nil {
		t.Fatalf("expected error for unknown event_type")
	}
}

func TestParseEvent_RequiresAnIdentifier(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"event_type":"progress"}`)); err == nil {
		t.Fatalf("expected error when both ids are missing")
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"session_id":"s-1","event_type":"progress"}`)
	sig := Sign("secret", body)

	if !VerifySignature("secret", body, sig) {
		t.Fatalf("expected valid signature to verify")
	}
	if VerifySignature("secret", body, "deadbeef") {
		t.Fatalf("expected bogus signature to fail")
	}
	if VerifySignature("other", body, sig) {
		t.Fatalf("expected wrong secret to fail")
	}
	if VerifySignature("", body, sig) {
		t.Fatalf("expected empty secret to fail closed")
	}
}
