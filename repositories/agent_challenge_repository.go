// repositories/agent_challenge_repository.go
package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/poofware/go-agent-auth/models"
	"github.com/poofware/go-agent-auth/utils"
)

// AgentChallengeRepository persists issued challenges. UpdateIfVersion is
// the atomic half of the single-use guarantee: the service layer decides the
// CREATED -> USED transition on a snapshot, and this compare-and-swap on
// row_version makes sure at most one of the racing callers lands it.
type AgentChallengeRepository interface {
	Create(ctx context.Context, challenge *models.AgentChallenge) error
	// GetByID / GetByNonce return (nil, nil) when nothing matches.
	GetByID(ctx context.Context, id uuid.UUID) (*models.AgentChallenge, error)
	GetByNonce(ctx context.Context, nonce string) (*models.AgentChallenge, error)
	// UpdateIfVersion persists the challenge iff the stored row still carries
	// expectedVersion, bumping row_version by one. A lost race returns
	// utils.ErrChallengeConcurrentUpdate.
	UpdateIfVersion(ctx context.Context, challenge *models.AgentChallenge, expectedVersion int64) error
	// CleanupExpired removes challenges past their expires_at. Retention is a
	// store concern; the auth core never deletes.
	CleanupExpired(ctx context.Context) error
}

type pgAgentChallengeRepo struct {
	db DB
}

func NewAgentChallengeRepository(db DB) AgentChallengeRepository {
	return &pgAgentChallengeRepo{db: db}
}

func baseSelectChallenge() string {
	return `
        SELECT id, agent_name, nonce, created_at, expires_at, used_at, row_version
        FROM agent_challenges
    `
}

func scanChallenge(row pgx.Row) (*models.AgentChallenge, error) {
	var c models.AgentChallenge
	err := row.Scan(
		&c.ID,
		&c.AgentName,
		&c.Nonce,
		&c.CreatedAt,
		&c.ExpiresAt,
		&c.UsedAt,
		&c.RowVersion,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *pgAgentChallengeRepo) Create(ctx context.Context, c *models.AgentChallenge) error {
	q := `
        INSERT INTO agent_challenges (id, agent_name, nonce, created_at, expires_at, used_at, row_version)
        VALUES ($1, $2, $3, $4, $5, $6, 1)
    `
	_, err := r.db.Exec(ctx, q, c.ID, c.AgentName, c.Nonce, c.CreatedAt, c.ExpiresAt, c.UsedAt)
	if err != nil {
		return err
	}
	c.SetRowVersion(1)
	return nil
}

func (r *pgAgentChallengeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.AgentChallenge, error) {
	row := r.db.QueryRow(ctx, baseSelectChallenge()+" WHERE id=$1", id)
	return scanChallenge(row)
}

func (r *pgAgentChallengeRepo) GetByNonce(ctx context.Context, nonce string) (*models.AgentChallenge, error) {
	row := r.db.QueryRow(ctx, baseSelectChallenge()+" WHERE nonce=$1", nonce)
	return scanChallenge(row)
}

func (r *pgAgentChallengeRepo) UpdateIfVersion(ctx context.Context, c *models.AgentChallenge, expectedVersion int64) error {
	q := `
        UPDATE agent_challenges
        SET used_at=$1, row_version=row_version+1
        WHERE id=$2 AND row_version=$3
    `
	tag, err := r.db.Exec(ctx, q, c.UsedAt, c.ID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return utils.ErrChallengeConcurrentUpdate
	}
	c.SetRowVersion(expectedVersion + 1)
	return nil
}

func (r *pgAgentChallengeRepo) CleanupExpired(ctx context.Context) error {
	q := `DELETE FROM agent_challenges WHERE expires_at < NOW() AND used_at IS NULL`
	_, err := r.db.Exec(ctx, q)
	return err
}
