package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"DealPilot/internal/api"
	"DealPilot/internal/task"
)

func TestParseParams(t *testing.T) {
	got, err := parseParams(
		[]string{"food_item=Margherita Pizza", "action=order", "qty=2", "pin=0560", "urgent=true", `medicine=["Dolo 650","Crocin"]`},
		`{"location":"Indiranagar","qty":1}`,
	)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := map[string]any{
		"food_item": "Margherita Pizza",
		"action":    "order",
		"qty":       2.0,
		"pin":       "0560",
		"urgent":    true,
		"medicine":  []any{"Dolo 650", "Crocin"},
		"location":  "Indiranagar",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestParseParamsRejectsMalformed(t *testing.T) {
	if _, err := parseParams([]string{"no-equals"}, ""); err == nil {
		t.Fatal("expected error for missing '='")
	}
	if _, err := parseParams(nil, "{not json"); err == nil {
		t.Fatal("expected error for bad json")
	}
}

func TestGetCommandPrintsTask(t *testing.T) {
	store := task.NewMemoryStore()
	svc := task.NewService(store, task.NewMemoryQueue(4), 1)
	defer svc.Close()
	if err := store.Create(context.Background(), &task.Task{
		ID: "job-7", Persona: "rider", Status: task.StatusSuccess,
		Result: map[string]any{"platform": "Ola"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	srv := httptest.NewServer(api.NewServer(":0", svc).Handler())
	defer srv.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"get", "job-7", "--addr", srv.URL, "--env-file", ""})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v (%s)", err, out.String())
	}

	var got map[string]any
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if got["id"] != "job-7" || !strings.Contains(out.String(), `"platform": "Ola"`) {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}
