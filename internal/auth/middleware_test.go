package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/folio/internal/domain"
	"github.com/spec-kit/folio/internal/repository"
	apperrors "github.com/spec-kit/folio/pkg/util"
)

type countingLookup struct {
	repository.UserRepository
	calls atomic.Int64
	err   error
}

func (c *countingLookup) GetByID(ctx context.Context, id string) (*domain.User, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.UserRepository.GetByID(ctx, id)
}

type fixture struct {
	tokens *TokenManager
	users  *countingLookup
	mw     *AuthMiddleware
	hits   atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tokens: newTestTokenManager(t),
		users:  &countingLookup{UserRepository: repository.NewMemoryUserRepository()},
	}
	f.mw = NewAuthMiddleware(f.tokens, f.users, nil, nil)
	return f
}

func (f *fixture) seed(t *testing.T, email string, role domain.Role, active bool) (*domain.User, string) {
	t.Helper()
	user := &domain.User{Email: email, Role: role, IsActive: active}
	if err := f.users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	token, _, err := f.tokens.GenerateToken(user)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return user, token
}

func (f *fixture) app(guard fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Get("/protected", guard, func(c *fiber.Ctx) error {
		f.hits.Add(1)
		claims, ok := ClaimsFromContext(c)
		if !ok {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.JSON(fiber.Map{"role": claims.Role, "email": claims.Email})
	})
	return app
}

func do(t *testing.T, app *fiber.App, header string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &decoded); err != nil {
			t.Fatalf("decode body %q: %v", body, err)
		}
	}
	return resp.StatusCode, decoded
}

func TestAuthenticate_Rejections(t *testing.T) {
	f := newFixture(t)
	_, activeToken := f.seed(t, "active@example.com", domain.RoleContentManager, true)
	_, inactiveToken := f.seed(t, "inactive@example.com", domain.RoleAdmin, false)
	ghostToken, _, err := f.tokens.GenerateToken(&domain.User{ID: "ghost", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("ghost token: %v", err)
	}

	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, apperrors.CodeMissingToken},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, apperrors.CodeMissingToken},
		{"wrong scheme", "Basic " + activeToken, http.StatusUnauthorized, apperrors.CodeInvalidToken},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized, apperrors.CodeInvalidToken},
		{"demo token", "Bearer demo-1700000000000-x", http.StatusUnauthorized, apperrors.CodeInvalidToken},
		{"unknown user", "Bearer " + ghostToken, http.StatusUnauthorized, apperrors.CodeUserNotFound},
		{"deactivated user", "Bearer " + inactiveToken, http.StatusUnauthorized, apperrors.CodeAccountDeactivated},
	}

	app := f.app(f.mw.Authenticate())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := do(t, app, tc.header)
			if status != tc.status {
				t.Fatalf("expected status %d got %d", tc.status, status)
			}
			if body["success"] != false {
				t.Fatalf("expected success=false, got %v", body["success"])
			}
			if body["code"] != tc.code {
				t.Fatalf("expected code %s got %v", tc.code, body["code"])
			}
			if msg, _ := body["message"].(string); msg == "" {
				t.Fatal("expected a message")
			}
		})
	}
	if f.hits.Load() != 0 {
		t.Fatalf("downstream handler invoked %d times on rejected requests", f.hits.Load())
	}
}

func TestAuthenticate_AdmitsAndExposesClaims(t *testing.T) {
	f := newFixture(t)
	_, token := f.seed(t, "editor@example.com", domain.RoleContentManager, true)

	status, body := do(t, f.app(f.mw.Authenticate()), "bearer "+token)
	if status != http.StatusOK {
		t.Fatalf("expected 200 got %d (%v)", status, body)
	}
	if body["role"] != string(domain.RoleContentManager) || body["email"] != "editor@example.com" {
		t.Fatalf("unexpected claims in context: %v", body)
	}
}

func TestAuthenticate_UsesClaimsNotCurrentRole(t *testing.T) {
	f := newFixture(t)
	user, token := f.seed(t, "editor@example.com", domain.RoleContentManager, true)

	if err := f.users.SetRole(context.Background(), user.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}

	status, body := do(t, f.app(f.mw.Authenticate()), "Bearer "+token)
	if status != http.StatusOK {
		t.Fatalf("expected 200 got %d", status)
	}
	if body["role"] != string(domain.RoleContentManager) {
		t.Fatalf("expected stale token role content_manager, got %v", body["role"])
	}

	status, _ = do(t, f.app(f.mw.AdminOnly()), "Bearer "+token)
	if status != http.StatusForbidden {
		t.Fatalf("expected promoted user with old token to stay forbidden until expiry, got %d", status)
	}
}

func TestAuthenticate_DeactivationWinsOverValidToken(t *testing.T) {
	f := newFixture(t)
	user, token := f.seed(t, "admin@example.com", domain.RoleAdmin, true)
	app := f.app(f.mw.AdminOnly())

	if status, _ := do(t, app, "Bearer "+token); status != http.StatusOK {
		t.Fatalf("expected 200 before deactivation, got %d", status)
	}
	if err := f.users.SetActive(context.Background(), user.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	status, body := do(t, app, "Bearer "+token)
	if status != http.StatusUnauthorized || body["code"] != apperrors.CodeAccountDeactivated {
		t.Fatalf("expected 401 ACCOUNT_DEACTIVATED, got %d %v", status, body)
	}
}

func TestAuthenticate_StoreFailure(t *testing.T) {
	f := newFixture(t)
	_, token := f.seed(t, "admin@example.com", domain.RoleAdmin, true)
	f.users.err = errors.New("connection reset")

	status, body := do(t, f.app(f.mw.Authenticate()), "Bearer "+token)
	if status != http.StatusInternalServerError || body["code"] != apperrors.CodeInternal {
		t.Fatalf("expected 500 INTERNAL_ERROR, got %d %v", status, body)
	}
	if f.hits.Load() != 0 {
		t.Fatal("downstream handler must not run when the store fails")
	}
}

func TestAdminOnly(t *testing.T) {
	f := newFixture(t)
	_, adminToken := f.seed(t, "admin@example.com", domain.RoleAdmin, true)
	_, cmToken := f.seed(t, "cm@example.com", "content_manager", true)
	app := f.app(f.mw.AdminOnly())

	if status, _ := do(t, app, "Bearer "+adminToken); status != http.StatusOK {
		t.Fatalf("expected admin admitted, got %d", status)
	}

	before := f.hits.Load()
	status, body := do(t, app, "Bearer "+cmToken)
	if status != http.StatusForbidden || body["code"] != apperrors.CodeInsufficientRole {
		t.Fatalf("expected 403 INSUFFICIENT_ROLE, got %d %v", status, body)
	}
	if f.hits.Load() != before {
		t.Fatal("handler invoked for content_manager on admin-only route")
	}

	if status, body := do(t, app, ""); status != http.StatusUnauthorized || body["code"] != apperrors.CodeMissingToken {
		t.Fatalf("expected authentication failure to win over role check, got %d %v", status, body)
	}
}

func TestRequireRole(t *testing.T) {
	f := newFixture(t)
	tokens := map[domain.Role]string{}
	for _, role := range []domain.Role{"x", "y", "z", domain.RoleAdmin} {
		_, tok := f.seed(t, fmt.Sprintf("%s@example.com", role), role, true)
		tokens[role] = tok
	}

	cases := []struct {
		name    string
		allowed []domain.Role
		role    domain.Role
		status  int
	}{
		{"empty set admits x", nil, "x", http.StatusOK},
		{"empty set admits admin", nil, domain.RoleAdmin, http.StatusOK},
		{"x in set", []domain.Role{"x", "y"}, "x", http.StatusOK},
		{"y in set", []domain.Role{"x", "y"}, "y", http.StatusOK},
		{"z not in set", []domain.Role{"x", "y"}, "z", http.StatusForbidden},
		{"admin not implied", []domain.Role{"x", "y"}, domain.RoleAdmin, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := f.app(f.mw.RequireRole(tc.allowed...))
			status, _ := do(t, app, "Bearer "+tokens[tc.role])
			if status != tc.status {
				t.Fatalf("expected %d got %d", tc.status, status)
			}
		})
	}
}

func TestRequireRoleEmptyMatchesAuthenticate(t *testing.T) {
	f := newFixture(t)
	_, active := f.seed(t, "a@example.com", "anything", true)
	_, inactive := f.seed(t, "b@example.com", "anything", false)

	headers := []string{"", "Bearer junk", "Bearer " + active, "Bearer " + inactive}
	plain := f.app(f.mw.Authenticate())
	empty := f.app(f.mw.RequireRole())
	for _, h := range headers {
		s1, b1 := do(t, plain, h)
		s2, b2 := do(t, empty, h)
		if s1 != s2 || b1["code"] != b2["code"] {
			t.Fatalf("header %q: authenticate=%d/%v requireRole()=%d/%v", h, s1, b1["code"], s2, b2["code"])
		}
	}
}

func TestAuthenticate_ConcurrentRequestsAreIndependent(t *testing.T) {
	f := newFixture(t)
	_, adminToken := f.seed(t, "admin@example.com", domain.RoleAdmin, true)
	_, cmToken := f.seed(t, "cm@example.com", domain.RoleContentManager, true)
	app := f.app(f.mw.AdminOnly())

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		header, want := "Bearer "+adminToken, http.StatusOK
		if i%2 == 1 {
			header, want = "Bearer "+cmToken, http.StatusForbidden
		}
		g.Go(func() error {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set("Authorization", header)
			resp, err := app.Test(req, -1)
			if err != nil {
				return err
			}
			resp.Body.Close()
			if resp.StatusCode != want {
				return fmt.Errorf("expected %d got %d", want, resp.StatusCode)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := f.hits.Load(); got != 16 {
		t.Fatalf("expected 16 admitted requests, got %d", got)
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		token   string
		present bool
		ok      bool
	}{
		{"", "", false, false},
		{"Bearer abc", "abc", true, true},
		{"bearer   abc  ", "abc", true, true},
		{"Bearer", "", false, false},
		{"Token abc", "", true, false},
	}
	for _, tc := range cases {
		token, present, ok := bearerToken(tc.header)
		if token != tc.token || present != tc.present || ok != tc.ok {
			t.Fatalf("bearerToken(%q) = %q,%v,%v want %q,%v,%v", tc.header, token, present, ok, tc.token, tc.present, tc.ok)
		}
	}
}
