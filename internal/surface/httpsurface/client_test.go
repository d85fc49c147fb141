package httpsurface

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/surface"
)

func TestRunGoalSubmitsJob(t *testing.T) {
	var got jobRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/jobs" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"COMPLETED","output":"{\"price\": \"₹199\"}"}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{
		BaseURL: server.URL,
		APIKey:  "secret",
		Device:  "pixel_8_pro",
		AppIDs:  map[string]string{"Zomato": "com.application.zomato"},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	out, err := client.RunGoal(context.Background(), surface.Goal{App: "zomato", Text: "find pizza"})
	if err != nil {
		t.Fatalf("run goal: %v", err)
	}
	if out != `{"price": "₹199"}` {
		t.Fatalf("unexpected output %q", out)
	}
	if got.AppID != "com.application.zomato" || got.Instruction != "find pizza" || got.Device != "pixel_8_pro" {
		t.Fatalf("unexpected job request %+v", got)
	}
}

func TestRunGoalStructuredOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","output":{"status":"success"}}`))
	}))
	defer server.Close()

	client, _ := NewClient(Config{BaseURL: server.URL})
	out, err := client.RunGoal(context.Background(), surface.Goal{Text: "go home"})
	if err != nil {
		t.Fatalf("run goal: %v", err)
	}
	if out != `{"status":"success"}` {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunGoalFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jobRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Instruction == "boom" {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"device offline"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"FAILED","error":"app crashed"}`))
	}))
	defer server.Close()

	client, _ := NewClient(Config{BaseURL: server.URL, AppIDs: map[string]string{"Uber": "com.ubercab"}})

	_, err := client.RunGoal(context.Background(), surface.Goal{App: "Uber", Text: "boom"})
	if !xerrors.HasCode(err, xerrors.CodePlatformSurface) {
		t.Fatalf("expected surface error for 502, got %v", err)
	}
	_, err = client.RunGoal(context.Background(), surface.Goal{App: "Uber", Text: "book"})
	if !xerrors.HasCode(err, xerrors.CodePlatformSurface) {
		t.Fatalf("expected surface error for failed job, got %v", err)
	}
	_, err = client.RunGoal(context.Background(), surface.Goal{App: "Ola", Text: "book"})
	if !errors.Is(err, ErrUnknownApp) {
		t.Fatalf("expected ErrUnknownApp, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error without base url")
	}
}
