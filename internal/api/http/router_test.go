package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/service"
)

type testAPI struct {
	app *fiber.App
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	cfg := config.Config{
		Queue: config.QueueConfig{ModuleCount: 2},
		Auth:  config.AuthConfig{JWTSecret: "secret", AccessTokenTTLMinutes: 10, BcryptCost: bcrypt.MinCost},
	}
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := repository.NewMemoryStateStore(repository.NewMemoryHub(), repository.StateStoreOptions{ModuleCount: 2})
	operators := repository.NewMemoryOperatorRepository()

	authSvc := service.NewAuthService(cfg, service.AuthDependencies{OperatorRepo: operators})
	err := authSvc.SeedOperators(context.Background(), []config.OperatorSeed{
		{Username: "admin", Password: "admin", Role: "admin"},
		{Username: "desk", Password: "desk", Role: "reception"},
		{Username: "m1", Password: "m1", Role: "module", ModuleID: 1},
		{Username: "tv", Password: "tv", Role: "display"},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	queue := service.NewQueueService(service.QueueDependencies{Store: store, Metrics: metrics, Logger: logger})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("queue-service", "test", store, nil, nil),
		Auth:           handlers.NewAuthHandler(authSvc),
		Queue:          handlers.NewQueueHandler(queue),
		Modules:        handlers.NewModulesHandler(queue),
		Admin:          handlers.NewAdminHandler(queue, authSvc),
		AuthMiddleware: auth.NewAuthMiddleware(authSvc.TokenManager(), operators),
		Metrics:        metrics,
	})
	return &testAPI{app: app}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func (a *testAPI) login(t *testing.T, username, password string) string {
	t.Helper()
	status, body := a.do(t, nethttp.MethodPost, "/auth/login", "", map[string]string{"username": username, "password": password})
	if status != nethttp.StatusOK {
		t.Fatalf("login %s: status %d %v", username, status, body)
	}
	data := body["data"].(map[string]any)
	return data["auth"].(map[string]any)["token"].(string)
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestReceptionToModuleFlow(t *testing.T) {
	api := newTestAPI(t)
	desk := api.login(t, "desk", "desk")
	m1 := api.login(t, "m1", "m1")

	status, body := api.do(t, nethttp.MethodPost, "/reception/tickets", desk, map[string]string{"subject_id": "12345678", "priority": "normal"})
	if status != nethttp.StatusCreated {
		t.Fatalf("issue: %d %v", status, body)
	}
	ticket := body["data"].(map[string]any)
	if ticket["code"] != "A01" || ticket["module_id"].(float64) != 1 {
		t.Fatalf("unexpected ticket %v", ticket)
	}

	for _, action := range []string{"call", "attend", "complete"} {
		if status, body := api.do(t, nethttp.MethodPost, "/modules/1/"+action, m1, nil); status != nethttp.StatusOK {
			t.Fatalf("%s: %d %v", action, status, body)
		}
	}

	status, body = api.do(t, nethttp.MethodGet, "/modules/1/calls?q=a0", m1, nil)
	if status != nethttp.StatusOK {
		t.Fatalf("calls: %d %v", status, body)
	}
	groups := body["data"].([]any)
	if len(groups) != 1 || groups[0].(map[string]any)["ticket"] != "A01" {
		t.Fatalf("unexpected call groups %v", groups)
	}

	status, body = api.do(t, nethttp.MethodGet, "/queue", desk, nil)
	if status != nethttp.StatusOK {
		t.Fatalf("overview: %d %v", status, body)
	}
	if next := body["data"].(map[string]any)["next_code"]; next != "A02" {
		t.Fatalf("expected next code A02, got %v", next)
	}
}

func TestIssueTicketValidation(t *testing.T) {
	api := newTestAPI(t)
	desk := api.login(t, "desk", "desk")
	cases := []map[string]string{
		{"subject_id": "123"},
		{"subject_id": "   12  "},
		{"subject_id": "12345", "priority": "urgent"},
	}
	for _, payload := range cases {
		status, body := api.do(t, nethttp.MethodPost, "/reception/tickets", desk, payload)
		if status != nethttp.StatusBadRequest || errorCode(body) != "VALIDATION_FAILED" {
			t.Fatalf("payload %v: expected validation error, got %d %v", payload, status, body)
		}
	}
}

func TestRoleGates(t *testing.T) {
	api := newTestAPI(t)
	m1 := api.login(t, "m1", "m1")
	tv := api.login(t, "tv", "tv")
	admin := api.login(t, "admin", "admin")

	if status, _ := api.do(t, nethttp.MethodPost, "/modules/2/call", m1, nil); status != nethttp.StatusForbidden {
		t.Fatalf("module operator reached another module: %d", status)
	}
	if status, _ := api.do(t, nethttp.MethodPost, "/reception/tickets", tv, map[string]string{"subject_id": "12345"}); status != nethttp.StatusForbidden {
		t.Fatalf("display issued a ticket: %d", status)
	}
	if status, _ := api.do(t, nethttp.MethodPost, "/admin/reset", m1, nil); status != nethttp.StatusForbidden {
		t.Fatalf("module operator reset the queue: %d", status)
	}
	if status, _ := api.do(t, nethttp.MethodGet, "/queue", "", nil); status != nethttp.StatusUnauthorized {
		t.Fatalf("anonymous overview: %d", status)
	}
	if status, _ := api.do(t, nethttp.MethodGet, "/state", tv, nil); status != nethttp.StatusOK {
		t.Fatalf("display cannot read state: %d", status)
	}
	if status, _ := api.do(t, nethttp.MethodPost, "/modules/1/pause", admin, nil); status != nethttp.StatusOK {
		t.Fatalf("admin cannot drive module: %d", status)
	}
}

func TestAdminControls(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login(t, "admin", "admin")

	status, body := api.do(t, nethttp.MethodPost, "/admin/modules/9/deactivate", admin, nil)
	if status != nethttp.StatusNotFound || errorCode(body) != "NOT_FOUND" {
		t.Fatalf("unknown module: %d %v", status, body)
	}

	status, body = api.do(t, nethttp.MethodPost, "/admin/modules/deactivate-all", admin, nil)
	if status != nethttp.StatusOK || body["data"].(map[string]any)["active_modules"].(float64) != 0 {
		t.Fatalf("deactivate-all: %d %v", status, body)
	}
	status, body = api.do(t, nethttp.MethodPost, "/admin/modules/2/activate", admin, nil)
	if status != nethttp.StatusOK || body["data"].(map[string]any)["active_modules"].(float64) != 1 {
		t.Fatalf("activate: %d %v", status, body)
	}
	status, body = api.do(t, nethttp.MethodPost, "/admin/reset", admin, nil)
	if status != nethttp.StatusOK {
		t.Fatalf("reset: %d %v", status, body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)
	if status, body := api.do(t, nethttp.MethodGet, "/health/ready", "", nil); status != nethttp.StatusOK || body["status"] != "ready" {
		t.Fatalf("ready: %d %v", status, body)
	}
	api.do(t, nethttp.MethodGet, "/health/live", "", nil)

	req := httptest.NewRequest(nethttp.MethodGet, "/metrics", nil)
	resp, err := api.app.Test(req, -1)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "/health/live") {
		t.Fatalf("request metrics missing route label:\n%s", raw)
	}
}
