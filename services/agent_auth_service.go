// services/agent_auth_service.go
package services

import (
	"context"

	"github.com/poofware/go-agent-auth/models"
	"github.com/poofware/go-agent-auth/repositories"
	"github.com/poofware/go-agent-auth/utils"
)

// ---------------------------------------------------------------------
// AgentAuthService interface
// ---------------------------------------------------------------------

// AgentAuthService sequences the two halves of the protocol: handing out an
// encrypted challenge, and later consuming the signed assertion that answers
// it. Token issuance after a successful Authenticate belongs to the caller.
type AgentAuthService interface {
	// IssueChallenge creates, persists and encrypts a challenge for the named
	// agent, returning the base64 blob the agent must decrypt.
	IssueChallenge(ctx context.Context, agentName string) (string, error)

	// Authenticate runs the full verification pipeline for one assertion and
	// consumes the matching challenge exactly once. On success the returned
	// agent identity may be trusted.
	Authenticate(ctx context.Context, assertion string) (*models.Agent, *models.JwtAssertionPayload, error)
}

// ---------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------

type agentAuthService struct {
	agentRepo     repositories.AgentRepository
	challengeRepo repositories.AgentChallengeRepository

	// issuer is this authorization server's identifier. It goes out inside
	// the encrypted payload and must come back as the assertion's aud.
	issuer string
}

func NewAgentAuthService(
	agentRepo repositories.AgentRepository,
	challengeRepo repositories.AgentChallengeRepository,
	issuer string,
) AgentAuthService {
	return &agentAuthService{
		agentRepo:     agentRepo,
		challengeRepo: challengeRepo,
		issuer:        issuer,
	}
}

func (s *agentAuthService) IssueChallenge(ctx context.Context, agentName string) (string, error) {
	agent, err := s.agentRepo.GetByName(ctx, agentName)
	if err != nil {
		utils.Logger.WithError(err).Error("agent lookup failed in IssueChallenge")
		return "", err
	}
	if agent == nil {
		return "", utils.ErrKeyNotFoundForAssertion
	}

	challenge, err := NewAgentChallenge(agentName)
	if err != nil {
		return "", err
	}

	// Encrypt before persisting: a challenge we could not seal must never
	// become answerable.
	encrypted, err := EncryptServerChallengePayload(challenge, agent, s.issuer)
	if err != nil {
		utils.Logger.WithError(err).Error("challenge encryption failed in IssueChallenge")
		return "", err
	}

	if err := s.challengeRepo.Create(ctx, challenge); err != nil {
		utils.Logger.WithError(err).Error("challenge persist failed in IssueChallenge")
		return "", err
	}

	utils.Logger.WithField("agent_name", agentName).Debug("issued agent challenge")
	return encrypted, nil
}

func (s *agentAuthService) Authenticate(ctx context.Context, assertion string) (*models.Agent, *models.JwtAssertionPayload, error) {
	// Phase 1: unverified issuer read, ONLY to select the key.
	agentName, err := ExtractAgentNameFromAssertion(assertion)
	if err != nil {
		return nil, nil, err
	}

	agent, err := s.agentRepo.GetByName(ctx, agentName)
	if err != nil {
		utils.Logger.WithError(err).Error("agent lookup failed in Authenticate")
		return nil, nil, err
	}
	if agent == nil {
		return nil, nil, utils.ErrKeyNotFoundForAssertion
	}

	// Phase 2: signature, then claims. Nothing before this point is trusted.
	payload, err := ValidateJwtAssertion(assertion, agent, s.issuer)
	if err != nil {
		return nil, nil, err
	}

	// Phase 3: cross-validate against the truth record, fetched fresh.
	truth, err := s.challengeRepo.GetByNonce(ctx, payload.JwtID)
	if err != nil {
		utils.Logger.WithError(err).Error("challenge lookup failed in Authenticate")
		return nil, nil, err
	}
	if truth == nil {
		utils.SecurityLogger(agentName, utils.ErrNonceMismatch).Warn("assertion jti matches no issued challenge")
		return nil, nil, utils.ErrNonceMismatch
	}
	if truth.AgentName != agent.AgentName {
		utils.SecurityLogger(agentName, utils.ErrInvalidAgentOwnership).Warn("assertion answers another agent's challenge")
		return nil, nil, utils.ErrInvalidAgentOwnership
	}

	if err := ValidateAssertionAgainstChallenge(payload, truth); err != nil {
		if utils.Classify(err) == utils.ClassReplay {
			utils.SecurityLogger(agentName, err).Warn("assertion rejected by cross-validation")
		}
		return nil, nil, err
	}

	// Phase 4: consume the challenge. The logical transition happens on the
	// snapshot; the store's CAS decides the race. A lost CAS surfaces as
	// challenge_concurrent_update, unchanged, so callers can re-read once
	// and then reject with challenge_already_used.
	used, err := MarkChallengeUsed(truth, WithVersionToken())
	if err != nil {
		return nil, nil, err
	}
	if err := s.challengeRepo.UpdateIfVersion(ctx, used, truth.GetRowVersion()); err != nil {
		utils.SecurityLogger(agentName, err).Warn("challenge consumption lost CAS race")
		return nil, nil, err
	}

	utils.Logger.WithField("agent_name", agentName).Info("agent authenticated")
	return agent, payload, nil
}
