package command

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"testing"

	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/surface"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunGoalPassesJSONOnStdin(t *testing.T) {
	requireShell(t)
	client, err := NewClient(Config{Executable: "sh", Args: []string{"-c", "cat"}})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	out, err := client.RunGoal(context.Background(), surface.Goal{App: "Swiggy", Text: "search biryani"})
	if err != nil {
		t.Fatalf("run goal: %v", err)
	}
	if !strings.Contains(out, `"app":"Swiggy"`) || !strings.Contains(out, `"goal":"search biryani"`) {
		t.Fatalf("unexpected stdin echo %s", out)
	}
}

func TestRunGoalFailure(t *testing.T) {
	requireShell(t)
	client, _ := NewClient(Config{Executable: "sh", Args: []string{"-c", "echo broken >&2; exit 3"}})
	_, err := client.RunGoal(context.Background(), surface.Goal{App: "Ola"})
	if !xerrors.HasCode(err, xerrors.CodePlatformSurface) {
		t.Fatalf("expected surface error, got %v", err)
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("stderr missing from error: %v", err)
	}
}

func TestNewClientRequiresExecutable(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/opt/dp", "bin/agent"); got != "/opt/dp/bin/agent" {
		t.Fatalf("unexpected path %s", got)
	}
	if got := ResolvePath("/opt/dp", "droidrun"); got != "droidrun" {
		t.Fatalf("bare executables must stay on PATH, got %s", got)
	}
}
