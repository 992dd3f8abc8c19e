// repositories/memory.go
//
// In-memory implementations with the same CAS semantics as the pg repos.
// Intended for tests and local bring-up; nothing here survives a restart.
package repositories

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/poofware/go-agent-auth/models"
	"github.com/poofware/go-agent-auth/utils"
)

// ---------------------------------------------------------------------
// Agents
// ---------------------------------------------------------------------

type memoryAgentRepo struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*models.Agent
	byName map[string]*models.Agent
}

func NewMemoryAgentRepository() AgentRepository {
	return &memoryAgentRepo{
		byID:   make(map[uuid.UUID]*models.Agent),
		byName: make(map[string]*models.Agent),
	}
}

func copyAgent(a *models.Agent) *models.Agent {
	cp := *a
	return &cp
}

func (r *memoryAgentRepo) Create(ctx context.Context, agent *models.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[agent.AgentName]; exists {
		return fmt.Errorf("agent %q already registered", agent.AgentName)
	}
	agent.SetRowVersion(1)
	stored := copyAgent(agent)
	r.byID[agent.ID] = stored
	r.byName[agent.AgentName] = stored
	return nil
}

func (r *memoryAgentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return copyAgent(stored), nil
}

func (r *memoryAgentRepo) GetByName(ctx context.Context, name string) (*models.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byName[name]
	if !ok {
		return nil, nil
	}
	return copyAgent(stored), nil
}

func (r *memoryAgentRepo) RotatePublicKey(ctx context.Context, id uuid.UUID, publicKeyPEM string) error {
	if _, err := utils.ParseRSAPublicKey(publicKeyPEM); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("agent %s not found", id)
	}
	stored.PublicKey = publicKeyPEM
	stored.SetRowVersion(stored.GetRowVersion() + 1)
	return nil
}

// ---------------------------------------------------------------------
// Challenges
// ---------------------------------------------------------------------

type memoryChallengeRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*models.AgentChallenge
	byNonce map[string]uuid.UUID
}

func NewMemoryAgentChallengeRepository() AgentChallengeRepository {
	return &memoryChallengeRepo{
		byID:    make(map[uuid.UUID]*models.AgentChallenge),
		byNonce: make(map[string]uuid.UUID),
	}
}

func copyChallenge(c *models.AgentChallenge) *models.AgentChallenge {
	cp := *c
	if c.UsedAt != nil {
		usedAt := *c.UsedAt
		cp.UsedAt = &usedAt
	}
	return &cp
}

func (r *memoryChallengeRepo) Create(ctx context.Context, c *models.AgentChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[c.ID]; exists {
		return fmt.Errorf("challenge %s already stored", c.ID)
	}
	c.SetRowVersion(1)
	r.byID[c.ID] = copyChallenge(c)
	r.byNonce[c.Nonce] = c.ID
	return nil
}

func (r *memoryChallengeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.AgentChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return copyChallenge(stored), nil
}

func (r *memoryChallengeRepo) GetByNonce(ctx context.Context, nonce string) (*models.AgentChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byNonce[nonce]
	if !ok {
		return nil, nil
	}
	return copyChallenge(r.byID[id]), nil
}

func (r *memoryChallengeRepo) UpdateIfVersion(ctx context.Context, c *models.AgentChallenge, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[c.ID]
	if !ok || stored.GetRowVersion() != expectedVersion {
		return utils.ErrChallengeConcurrentUpdate
	}
	updated := copyChallenge(c)
	updated.SetRowVersion(expectedVersion + 1)
	r.byID[c.ID] = updated
	c.SetRowVersion(expectedVersion + 1)
	return nil
}

func (r *memoryChallengeRepo) CleanupExpired(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, c := range r.byID {
		if c.IsExpired() && !c.IsUsed() {
			delete(r.byNonce, c.Nonce)
			delete(r.byID, id)
		}
	}
	return nil
}
