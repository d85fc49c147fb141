package auth

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"DealPilot/internal/config"
)

func TestParseGrant(t *testing.T) {
	g, err := ParseGrant(" ops : s3cret ", "token-1", PermTasksRead)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.Name != "ops" || g.Token != "s3cret" || len(g.Permissions) != 1 {
		t.Fatalf("unexpected grant: %+v", g)
	}

	g, err = ParseGrant("bare-token", "token-2")
	if err != nil || g.Name != "token-2" || g.Token != "bare-token" {
		t.Fatalf("unexpected bare grant: %+v %v", g, err)
	}

	if _, err := ParseGrant("ops:", "token-3"); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestFromConfig(t *testing.T) {
	svc, err := FromConfig(config.AuthConfig{
		Tokens:         []string{"ops:rw"},
		ReadOnlyTokens: []string{"ro"},
	})
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if !svc.Enabled() {
		t.Fatal("expected service to be enabled")
	}

	writer, err := svc.Authenticate("rw")
	if err != nil {
		t.Fatalf("authenticate writer: %v", err)
	}
	if writer.Name != "ops" || writer.Authorize(PermTasksRead, PermTasksWrite) != nil {
		t.Fatalf("unexpected writer subject: %+v", writer)
	}

	reader, err := svc.Authenticate("ro")
	if err != nil {
		t.Fatalf("authenticate reader: %v", err)
	}
	if reader.Name != "readonly-1" || !errors.Is(reader.Authorize(PermTasksWrite), ErrPermissionDenied) {
		t.Fatalf("unexpected reader subject: %+v", reader)
	}

	empty, err := FromConfig(config.AuthConfig{})
	if err != nil || empty.Enabled() {
		t.Fatalf("empty config should disable auth, got %v %v", empty.Enabled(), err)
	}
}

func TestNewServiceRejectsDuplicates(t *testing.T) {
	_, err := NewService(Grant{Name: "a", Token: "same"}, Grant{Name: "b", Token: "same"})
	if err == nil {
		t.Fatal("expected duplicate token error")
	}
}

func TestAuthenticateRequest(t *testing.T) {
	svc, _ := NewService(Grant{Name: "ops", Token: "abc", Permissions: []string{PermTasksRead}})

	if _, err := svc.AuthenticateRequest(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
	if _, err := svc.AuthenticateRequest("Basic abc"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid scheme, got %v", err)
	}
	if _, err := svc.AuthenticateRequest("Bearer wrong"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	subject, err := svc.AuthenticateRequest("bearer abc")
	if err != nil || subject.Name != "ops" {
		t.Fatalf("unexpected result: %+v %v", subject, err)
	}
}

func TestMiddlewareAuditsAndInjectsSubject(t *testing.T) {
	var audit bytes.Buffer
	svc, _ := NewService(Grant{Name: "ops", Token: "abc", Permissions: []string{PermTasksRead}})
	svc.WithAuditLogger(slog.New(slog.NewJSONHandler(&audit, nil)))

	var caller string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller = SubjectFromContext(r.Context()).Name
		w.WriteHeader(http.StatusNoContent)
	})
	handler := svc.Middleware(MiddlewareConfig{RequiredPermissions: TaskPermissions(), AuditEvent: "tasks"})(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || caller != "ops" {
		t.Fatalf("unexpected result: status=%d caller=%q", rec.Code, caller)
	}
	if !strings.Contains(audit.String(), `"msg":"api_request"`) || !strings.Contains(audit.String(), `"caller":"ops"`) {
		t.Fatalf("missing audit record: %s", audit.String())
	}

	audit.Reset()
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(audit.String(), "permission_denied") {
		t.Fatalf("missing denial record: %s", audit.String())
	}
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	var svc *Service
	called := false
	handler := svc.Middleware(MiddlewareConfig{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	if !called {
		t.Fatal("disabled middleware should call next")
	}
}
