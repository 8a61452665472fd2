//go:build integration

package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/spec-kit/folio/internal/domain"
	"github.com/spec-kit/folio/internal/persistence"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		pgC, err := postgres.Run(ctx,
			"postgres:16",
			postgres.WithDatabase("folio"),
			postgres.WithUsername("folio"),
			postgres.WithPassword("folio"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			t.Skipf("postgres container unavailable: %v", err)
		}
		t.Cleanup(func() { _ = testcontainers.TerminateContainer(pgC) })

		dsn, err = pgC.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("connection string: %v", err)
		}
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	t.Cleanup(pool.Close)

	_, file, _, _ := runtime.Caller(0)
	dir := filepath.Join(filepath.Dir(file), "..", "..", "migrations")
	if err := persistence.RunMigrations(ctx, pool, dir, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, "TRUNCATE users"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}

func TestUserRepository_Postgres(t *testing.T) {
	pool := startPostgres(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()

	user := &domain.User{Name: "Ada", Email: "Ada@Example.com", PasswordHash: "hash", Role: domain.RoleAdmin, IsActive: true}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, &domain.User{Email: "ada@example.com", PasswordHash: "hash", Role: domain.RoleAdmin}); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	got, err := repo.GetByEmail(ctx, "ADA@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got.ID != user.ID || got.Role != domain.RoleAdmin || !got.IsActive {
		t.Fatalf("unexpected user: %+v", got)
	}

	if err := repo.SetActive(ctx, user.ID, false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := repo.SetRole(ctx, user.ID, domain.RoleContentManager); err != nil {
		t.Fatalf("set role: %v", err)
	}
	got, err = repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.IsActive || got.Role != domain.RoleContentManager {
		t.Fatalf("expected inactive content_manager, got %+v", got)
	}

	if _, err := repo.GetByID(ctx, "not-a-uuid"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for malformed id, got %v", err)
	}

	role := domain.RoleContentManager
	users, err := repo.List(ctx, UserFilter{Role: &role})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
}
