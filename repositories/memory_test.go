package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/poofware/go-agent-auth/models"
	"github.com/poofware/go-agent-auth/testhelpers"
	"github.com/poofware/go-agent-auth/utils"
)

func storedChallenge(t *testing.T, repo AgentChallengeRepository, agentName string) *models.AgentChallenge {
	t.Helper()
	now := time.Now().UTC()
	c := &models.AgentChallenge{
		ID:        uuid.New(),
		AgentName: agentName,
		Nonce:     mustRandomNonce(t),
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
	}
	require.NoError(t, repo.Create(context.Background(), c))
	return c
}

func mustRandomNonce(t *testing.T) string {
	t.Helper()
	nonce, err := utils.RandomHex(32)
	require.NoError(t, err)
	return nonce
}

func TestMemoryChallengeRepoCreateAndFetch(t *testing.T) {
	repo := NewMemoryAgentChallengeRepository()
	ctx := context.Background()

	c := storedChallenge(t, repo, "svc-billing")
	require.Equal(t, int64(1), c.GetRowVersion(), "Create stamps the first version")

	byID, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, c.ID, byID.ID)

	byNonce, err := repo.GetByNonce(ctx, c.Nonce)
	require.NoError(t, err)
	require.Equal(t, c.ID, byNonce.ID)

	missing, err := repo.GetByNonce(ctx, mustRandomNonce(t))
	require.NoError(t, err)
	require.Nil(t, missing)

	// Returned values are copies; mutating them must not leak into the store.
	usedAt := time.Now()
	byID.UsedAt = &usedAt
	fresh, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.Nil(t, fresh.UsedAt)
}

func TestMemoryChallengeRepoCAS(t *testing.T) {
	repo := NewMemoryAgentChallengeRepository()
	ctx := context.Background()
	c := storedChallenge(t, repo, "svc-billing")

	now := time.Now().UTC()
	updated := *c
	updated.UsedAt = &now

	// Stale version loses.
	require.ErrorIs(t, repo.UpdateIfVersion(ctx, &updated, 7), utils.ErrChallengeConcurrentUpdate)

	// Current version wins and bumps.
	require.NoError(t, repo.UpdateIfVersion(ctx, &updated, 1))
	require.Equal(t, int64(2), updated.GetRowVersion())

	stored, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.UsedAt)
	require.Equal(t, int64(2), stored.GetRowVersion())

	// Replaying the original version now conflicts.
	require.ErrorIs(t, repo.UpdateIfVersion(ctx, &updated, 1), utils.ErrChallengeConcurrentUpdate)
}

func TestMemoryChallengeRepoCASRace(t *testing.T) {
	repo := NewMemoryAgentChallengeRepository()
	ctx := context.Background()
	c := storedChallenge(t, repo, "svc-billing")

	const racers = 32
	errs := make([]error, racers)
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(slot int) {
			defer wg.Done()
			now := time.Now().UTC()
			attempt := *c
			attempt.UsedAt = &now
			errs[slot] = repo.UpdateIfVersion(ctx, &attempt, 1)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, utils.ErrChallengeConcurrentUpdate)
		}
	}
	require.Equal(t, 1, wins, "CAS must admit exactly one writer")
}

func TestMemoryChallengeRepoCleanupExpired(t *testing.T) {
	repo := NewMemoryAgentChallengeRepository()
	ctx := context.Background()

	live := storedChallenge(t, repo, "svc-billing")

	now := time.Now().UTC()
	expired := &models.AgentChallenge{
		ID:        uuid.New(),
		AgentName: "svc-billing",
		Nonce:     mustRandomNonce(t),
		CreatedAt: now.Add(-20 * time.Minute),
		ExpiresAt: now.Add(-10 * time.Minute),
	}
	require.NoError(t, repo.Create(ctx, expired))

	usedAt := now.Add(-15 * time.Minute)
	expiredButUsed := &models.AgentChallenge{
		ID:        uuid.New(),
		AgentName: "svc-billing",
		Nonce:     mustRandomNonce(t),
		CreatedAt: now.Add(-20 * time.Minute),
		ExpiresAt: now.Add(-10 * time.Minute),
		UsedAt:    &usedAt,
	}
	require.NoError(t, repo.Create(ctx, expiredButUsed))

	require.NoError(t, repo.CleanupExpired(ctx))

	gone, err := repo.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	require.Nil(t, gone)

	kept, err := repo.GetByID(ctx, live.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)

	// Consumed rows stay for audit; retention of those is a separate policy.
	keptUsed, err := repo.GetByID(ctx, expiredButUsed.ID)
	require.NoError(t, err)
	require.NotNil(t, keptUsed)
}

func TestMemoryAgentRepo(t *testing.T) {
	repo := NewMemoryAgentRepository()
	ctx := context.Background()

	agent, _ := testhelpers.NewTestAgent(t, "svc-billing")
	require.NoError(t, repo.Create(ctx, agent))
	require.Error(t, repo.Create(ctx, agent), "duplicate registration must fail")

	byName, err := repo.GetByName(ctx, "svc-billing")
	require.NoError(t, err)
	require.Equal(t, agent.ID, byName.ID)

	missing, err := repo.GetByName(ctx, "svc-unknown")
	require.NoError(t, err)
	require.Nil(t, missing)

	_, freshPEM := testhelpers.GenerateAgentKeyPair(t)
	require.NoError(t, repo.RotatePublicKey(ctx, agent.ID, freshPEM))

	rotated, err := repo.GetByID(ctx, agent.ID)
	require.NoError(t, err)
	require.Equal(t, freshPEM, rotated.PublicKey)
	require.Equal(t, int64(2), rotated.GetRowVersion())

	require.Error(t, repo.RotatePublicKey(ctx, agent.ID, "not a key"))
}
