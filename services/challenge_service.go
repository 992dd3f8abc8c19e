// services/challenge_service.go
package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/poofware/go-agent-auth/models"
	"github.com/poofware/go-agent-auth/utils"
)

const (
	// ChallengeExpiry bounds how long an issued challenge stays answerable.
	ChallengeExpiry = 10 * time.Minute

	// NonceLength is the raw nonce size in bytes; hex-encoded it doubles.
	NonceLength    = 32
	NonceHexLength = 2 * NonceLength
)

// Pre-compile the nonce shape check.
var nonceRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ---------------------------------------------------------------------
// Validation options
//
// The same invariants must validate either a plain challenge or a
// challenge-plus-version-token, decided by the caller. The version check
// composes onto the base rules instead of duplicating them.
// ---------------------------------------------------------------------

type challengeValidateOptions struct {
	requireVersionToken bool
}

type ChallengeValidateOption func(*challengeValidateOptions)

// WithVersionToken makes validation additionally require a persisted
// row_version (>= 1) on the challenge. Callers that loaded the entity from
// the store opt in; freshly built entities skip it.
func WithVersionToken() ChallengeValidateOption {
	return func(o *challengeValidateOptions) { o.requireVersionToken = true }
}

// ---------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------

// NewAgentChallenge builds a fully validated challenge for agentName:
// fresh UUIDv4 id, 32 random bytes of nonce (64 hex chars), a ten-minute
// expiry window. Nothing is persisted here; the caller owns storage.
func NewAgentChallenge(agentName string) (*models.AgentChallenge, error) {
	if strings.TrimSpace(agentName) == "" {
		return nil, utils.ErrAgentNameEmpty
	}

	nonce, err := utils.RandomHex(NonceLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrNonceGenerationFailed, err)
	}

	now := time.Now().UTC()
	challenge := &models.AgentChallenge{
		ID:        uuid.New(),
		AgentName: agentName,
		Nonce:     nonce,
		CreatedAt: now,
		ExpiresAt: now.Add(ChallengeExpiry),
	}

	if err := ValidateAgentChallenge(challenge); err != nil {
		return nil, err
	}
	return challenge, nil
}

// ValidateAgentChallenge checks every structural invariant of a challenge
// and returns the first failure. It never mutates its input.
func ValidateAgentChallenge(c *models.AgentChallenge, opts ...ChallengeValidateOption) error {
	var options challengeValidateOptions
	for _, opt := range opts {
		opt(&options)
	}

	if c.ID == uuid.Nil || c.ID.Version() != 4 {
		return utils.ErrChallengeIDInvalidUUID
	}
	if c.AgentName == "" {
		return utils.ErrAgentNameEmpty
	}
	if !nonceRegex.MatchString(c.Nonce) {
		return utils.ErrNonceInvalidLength
	}
	if !c.ExpiresAt.After(c.CreatedAt) {
		return utils.ErrExpireBeforeCreation
	}
	if c.UsedAt != nil && !c.UsedAt.After(c.CreatedAt) {
		return utils.ErrUsedAtBeforeCreation
	}
	if options.requireVersionToken && c.GetRowVersion() < 1 {
		return utils.ErrRowVersionInvalid
	}
	return nil
}

// MarkChallengeUsed decides the CREATED -> USED transition on an in-memory
// snapshot and returns the transitioned copy. This is only the logical half:
// persisting the transition must go through the repository's row_version CAS
// so that exactly one of two racing callers wins.
func MarkChallengeUsed(c *models.AgentChallenge, opts ...ChallengeValidateOption) (*models.AgentChallenge, error) {
	if c.IsUsed() {
		return nil, utils.ErrChallengeAlreadyUsed
	}
	if c.IsExpired() {
		return nil, utils.ErrChallengeExpired
	}

	now := time.Now().UTC()
	used := *c
	used.UsedAt = &now

	if err := ValidateAgentChallenge(&used, opts...); err != nil {
		return nil, err
	}
	return &used, nil
}

// EncryptServerChallengePayload serializes the ephemeral challenge payload
// and seals it under the agent's registered public key (RSA-OAEP/SHA-256,
// base64). The returned string is "the challenge" from the agent's point of
// view; only the matching private key can open it.
func EncryptServerChallengePayload(c *models.AgentChallenge, agent *models.Agent, issuer string) (string, error) {
	payload := models.ServerChallengePayload{
		Audience:  agent.AgentName,
		ExpiresAt: c.ExpiresAt,
		Issuer:    issuer,
		Nonce:     c.Nonce,
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrEncryptionFailed, err)
	}

	pub, err := utils.ParseRSAPublicKey(agent.PublicKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrEncryptionFailed, err)
	}

	encrypted, err := utils.EncryptRSAOAEP(pub, plaintext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrEncryptionFailed, err)
	}
	return encrypted, nil
}
