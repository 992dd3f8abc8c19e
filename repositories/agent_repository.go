package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"github.com/poofware/go-agent-auth/models"
	"github.com/poofware/go-agent-auth/utils"
)

// AgentRepository provides read access to registered agents plus occ-guarded
// key rotation. The auth core itself never mutates agents.
type AgentRepository interface {
	Create(ctx context.Context, agent *models.Agent) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	// GetByName returns (nil, nil) when no agent is registered under name.
	GetByName(ctx context.Context, name string) (*models.Agent, error)
	// RotatePublicKey swaps the registered key under the optimistic-lock
	// retry loop.
	RotatePublicKey(ctx context.Context, id uuid.UUID, publicKeyPEM string) error
}

type pgAgentRepo struct {
	db DB
}

func NewAgentRepository(db DB) AgentRepository {
	return &pgAgentRepo{db}
}

func baseSelectAgent() string {
	return `
        SELECT id, agent_name, public_key, row_version, created_at, updated_at
        FROM agents
    `
}

func scanAgent(row pgx.Row) (*models.Agent, error) {
	var a models.Agent
	err := row.Scan(
		&a.ID,
		&a.AgentName,
		&a.PublicKey,
		&a.RowVersion,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *pgAgentRepo) Create(ctx context.Context, agent *models.Agent) error {
	q := `
        INSERT INTO agents (id, agent_name, public_key, row_version, created_at, updated_at)
        VALUES ($1, $2, $3, 1, NOW(), NOW())
    `
	_, err := r.db.Exec(ctx, q, agent.ID, agent.AgentName, agent.PublicKey)
	return err
}

func (r *pgAgentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	row := r.db.QueryRow(ctx, baseSelectAgent()+" WHERE id=$1", id)
	return scanAgent(row)
}

func (r *pgAgentRepo) GetByName(ctx context.Context, name string) (*models.Agent, error) {
	row := r.db.QueryRow(ctx, baseSelectAgent()+" WHERE agent_name=$1", name)
	return scanAgent(row)
}

func (r *pgAgentRepo) RotatePublicKey(ctx context.Context, id uuid.UUID, publicKeyPEM string) error {
	// Reject garbage before touching the row.
	if _, err := utils.ParseRSAPublicKey(publicKeyPEM); err != nil {
		return err
	}

	getByID := func(ctx context.Context, idStr string) (*models.Agent, error) {
		parsed, err := uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		return r.GetByID(ctx, parsed)
	}

	return WithRetry(ctx, 3, id.String(),
		getByID,
		r.updateIfVersion,
		func(a *models.Agent) error {
			a.PublicKey = publicKeyPEM
			return nil
		},
	)
}

func (r *pgAgentRepo) updateIfVersion(ctx context.Context, a *models.Agent, expectedVersion int64) (pgconn.CommandTag, error) {
	q := `
        UPDATE agents
        SET public_key=$1, row_version=row_version+1, updated_at=NOW()
        WHERE id=$2 AND row_version=$3
    `
	return r.db.Exec(ctx, q, a.PublicKey, a.ID, expectedVersion)
}
