package models

import (
	"time"

	"github.com/google/uuid"
)

// AgentChallenge represents one issued, single-use authentication challenge.
// The nonce is 32 random bytes hex-encoded (64 chars) and comes back as the
// assertion's "jti" claim. UsedAt is set exactly once; the row_version CAS in
// the repository is what makes that transition atomic under concurrency.
type AgentChallenge struct {
	Versioned

	ID        uuid.UUID  `json:"id"`
	AgentName string     `json:"agent_name"`
	Nonce     string     `json:"nonce"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

func (c *AgentChallenge) GetID() string { return c.ID.String() }

func (c *AgentChallenge) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

func (c *AgentChallenge) IsUsed() bool {
	return c.UsedAt != nil
}
