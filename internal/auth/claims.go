package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const TokenTypeAccess TokenType = "access"

// Roles the engine distinguishes. Agents act on their own sessions;
// supervisors may act on anyone's.
const (
	RoleAgent      = "agent"
	RoleSupervisor = "supervisor"
)

// Claims are the only supported JWT claims shape for this service.
// Tokens are issued by the platform's identity service; the engine only
// verifies them. AgentID must always be present.
type Claims struct {
	jwt.RegisteredClaims

	AgentID   string    `json:"agent_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}

// ActsFor reports whether the token holder may operate on behalf of
// agentID.
func (c Claims) ActsFor(agentID string) bool {
	if c.Role == RoleSupervisor {
		return true
	}
	return c.AgentID == agentID
}
