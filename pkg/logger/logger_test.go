package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesToRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	if err := Init(Config{Level: "debug", Format: "json", OutputPaths: []string{path}}); err != nil {
		t.Fatalf("init: %v", err)
	}
	Named("deal").Info("selected", "platform", "Zomato")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"component":"deal"`) || !strings.Contains(out, `"platform":"Zomato"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestInitTwiceFails(t *testing.T) {
	t.Cleanup(func() { _ = Sync() })
	if err := Init(Config{}); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := Init(Config{}); err == nil {
		t.Fatalf("expected second init to fail")
	}
}

func TestAuditRequiresPath(t *testing.T) {
	t.Cleanup(func() { _ = Sync() })
	if err := Init(Config{Audit: AuditConfig{Enabled: true}}); err == nil {
		t.Fatalf("expected audit without path to fail")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{"debug": "DEBUG", "WARNING": "WARN", "error": "ERROR", "": "INFO"}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
