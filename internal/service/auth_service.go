package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// AuthService coordinates operator login and seeding.
type AuthService struct {
	operators   repository.OperatorRepository
	tokenMgr    *auth.TokenManager
	bcryptCost  int
	moduleCount int
	logger      *zap.Logger
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	OperatorRepo repository.OperatorRepository
	Logger       *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		operators:   deps.OperatorRepo,
		tokenMgr:    auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost:  cfg.Auth.BcryptCost,
		moduleCount: cfg.Queue.ModuleCount,
		logger:      logger,
	}
}

// Login authenticates an operator and returns a role-bearing token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.Operator, string, time.Time, error) {
	op, err := s.operators.GetByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	if !op.Active {
		return nil, "", time.Time{}, apperrors.NewForbidden("operator inactive")
	}
	if err := auth.ComparePassword(op.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(op)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return op, token, exp, nil
}

// SeedOperators upserts the configured operators. Module operators must be
// bound to a module that exists.
func (s *AuthService) SeedOperators(ctx context.Context, seeds []config.OperatorSeed) error {
	for _, seed := range seeds {
		role := domain.Role(strings.ToLower(seed.Role))
		if !role.Valid() {
			return fmt.Errorf("seed %q: unknown role %q", seed.Username, seed.Role)
		}
		op := &domain.Operator{
			Username:    strings.ToLower(seed.Username),
			DisplayName: seed.Username,
			Role:        role,
			Active:      true,
		}
		if role == domain.RoleModule {
			if seed.ModuleID < 1 || seed.ModuleID > s.moduleCount {
				return fmt.Errorf("seed %q: module id %d outside 1..%d", seed.Username, seed.ModuleID, s.moduleCount)
			}
			id := seed.ModuleID
			op.ModuleID = &id
			op.DisplayName = fmt.Sprintf("Module %d", id)
		}
		hash, err := auth.HashPassword(seed.Password, s.bcryptCost)
		if err != nil {
			return fmt.Errorf("seed %q: %w", seed.Username, err)
		}
		op.PasswordHash = hash
		if err := s.operators.Upsert(ctx, op); err != nil {
			return fmt.Errorf("seed %q: %w", seed.Username, err)
		}
		s.logger.Info("operator seeded", zap.String("username", op.Username), zap.String("role", string(op.Role)))
	}
	return nil
}

// Operators lists every operator.
func (s *AuthService) Operators(ctx context.Context) ([]domain.Operator, error) {
	ops, err := s.operators.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return ops, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
