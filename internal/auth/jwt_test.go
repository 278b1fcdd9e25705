package auth

import (
	"testing"
	"time"

	"dialer-engine/internal/config"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		JWTSecret:      "secret",
		JWTIssuer:      "issuer",
		JWTAudience:    "aud",
		AccessTokenTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "agent-1", RoleAgent)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok == "" {
		t.Fatalf("expected token string")
	}

	claims, err := m.Verify(tok, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.AgentID != "agent-1" || claims.Role != RoleAgent {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute})

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "agent-1", RoleAgent)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	// Past the TTL plus clock-skew leeway.
	if _, err := m.Verify(tok, now.Add(5*time.Minute)); err == nil {
		t.Fatalf("expected expiry rejection")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()

	issuer, _ := NewManager(config.AuthConfig{JWTSecret: "secret-a", AccessTokenTTL: time.Minute})
	verifier, _ := NewManager(config.AuthConfig{JWTSecret: "secret-b", AccessTokenTTL: time.Minute})

	tok, err := issuer.Issue(now, "agent-1", RoleAgent)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(tok, now); err == nil {
		t.Fatalf("expected signature rejection")
	}
}

func TestClaimsActsFor(t *testing.T) {
	agent := Claims{AgentID: "agent-1", Role: RoleAgent}
	if !agent.ActsFor("agent-1") {
		t.Fatalf("agent must act for itself")
	}
	if agent.ActsFor("agent-2") {
		t.Fatalf("agent must not act for another agent")
	}

	sup := Claims{AgentID: "sup-1", Role: RoleSupervisor}
	if !sup.ActsFor("agent-2") {
		t.Fatalf("supervisor must act for any agent")
	}
}
