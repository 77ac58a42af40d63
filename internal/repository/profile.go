package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

type ProfileRepository interface {
	// GetRole returns the stored role, or "" when the profile does not exist.
	GetRole(ctx context.Context, id uuid.UUID) (string, error)
	SetRole(ctx context.Context, id uuid.UUID, role constants.UserRole) error
	Ensure(ctx context.Context, id uuid.UUID) error
}

type profileRepository struct {
	pool   Pool
	logger *zap.Logger
}

func NewProfileRepository(pool Pool, logger *zap.Logger) ProfileRepository {
	return &profileRepository{pool: pool, logger: common.LoggerOrGlobal(logger)}
}

func (r *profileRepository) GetRole(ctx context.Context, id uuid.UUID) (string, error) {
	var role string
	err := r.pool.QueryRow(ctx, `SELECT user_role FROM profiles WHERE id = $1`, id).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", wrapDB(err, "repository: get role")
	}
	return role, nil
}

func (r *profileRepository) SetRole(ctx context.Context, id uuid.UUID, role constants.UserRole) error {
	switch role {
	case constants.RoleFree, constants.RolePremium, constants.RoleAdmin:
	default:
		return common.NewAppError("INVALID_ROLE", "unknown role "+string(role), common.ErrInvalidInput)
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO profiles (id, user_role) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET user_role = EXCLUDED.user_role`, id, string(role))
	if err != nil {
		r.logger.Error("profiles.set_role.failed", zap.String("user_id", id.String()), zap.Error(err))
		return wrapDB(err, "repository: set role")
	}
	r.logger.Info("profiles.set_role.ok", zap.String("user_id", id.String()), zap.String("role", string(role)))
	return nil
}

// Ensure creates a free profile row when none exists.
func (r *profileRepository) Ensure(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `INSERT INTO profiles (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id); err != nil {
		return wrapDB(err, "repository: ensure profile")
	}
	return nil
}
