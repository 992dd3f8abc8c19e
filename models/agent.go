package models

import (
	"time"

	"github.com/google/uuid"
)

// Agent is a registered non-human principal. PublicKey holds the RSA
// public key (PEM, PKIX) the agent registered; everything it sends is
// verified or encrypted against that key.
type Agent struct {
	Versioned

	ID        uuid.UUID `json:"id"`
	AgentName string    `json:"agent_name"`
	PublicKey string    `json:"public_key"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Agent) GetID() string { return a.ID.String() }
