package service

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	cfg := config.Config{
		Queue: config.QueueConfig{ModuleCount: 4},
		Auth:  config.AuthConfig{JWTSecret: "secret", AccessTokenTTLMinutes: 10, BcryptCost: bcrypt.MinCost},
	}
	return NewAuthService(cfg, AuthDependencies{OperatorRepo: repository.NewMemoryOperatorRepository()})
}

func TestSeedAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t)
	err := svc.SeedOperators(ctx, []config.OperatorSeed{
		{Username: "Admin", Password: "pw", Role: "admin"},
		{Username: "m2", Password: "pw2", Role: "module", ModuleID: 2},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	op, token, _, err := svc.Login(ctx, "m2", "pw2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if op.Role != domain.RoleModule || op.ModuleID == nil || *op.ModuleID != 2 {
		t.Fatalf("unexpected operator %+v", op)
	}
	claims, err := svc.TokenManager().ParseToken(token)
	if err != nil || claims.Subject != op.ID {
		t.Fatalf("token does not identify operator: %v %+v", err, claims)
	}

	if _, _, _, err := svc.Login(ctx, "ADMIN", "pw"); err != nil {
		t.Fatalf("usernames are case-insensitive: %v", err)
	}
	_, _, _, err = svc.Login(ctx, "m2", "wrong")
	var de *apperrors.DomainError
	if !errors.As(err, &de) || de.Code != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestSeedRejectsBadEntries(t *testing.T) {
	svc := newAuthService(t)
	bad := [][]config.OperatorSeed{
		{{Username: "x", Password: "pw", Role: "janitor"}},
		{{Username: "m9", Password: "pw", Role: "module", ModuleID: 9}},
		{{Username: "m0", Password: "pw", Role: "module"}},
	}
	for _, seeds := range bad {
		if err := svc.SeedOperators(context.Background(), seeds); err == nil {
			t.Fatalf("expected error for %+v", seeds)
		}
	}
}
