// dtos/agent_auth_dtos.go
package dtos

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// AgentChallengeRequest starts the machine-auth handshake.
type AgentChallengeRequest struct {
	AgentName string `json:"agent_name" validate:"required,max=256"`
}

func (r *AgentChallengeRequest) Validate() error { return validate.Struct(r) }

// AgentChallengeResponse carries the RSA-encrypted challenge blob. The agent
// decrypts it with its private key to recover the nonce.
type AgentChallengeResponse struct {
	Challenge string `json:"challenge"`
}

// AgentAssertionRequest carries the signed RFC 7523 JWT answering a
// previously issued challenge.
type AgentAssertionRequest struct {
	Assertion string `json:"assertion" validate:"required,jwt"`
}

func (r *AgentAssertionRequest) Validate() error { return validate.Struct(r) }
