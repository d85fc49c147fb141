package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/task"
)

func TestObserveSurfaceCallLabelsErrorCode(t *testing.T) {
	reg := New("")
	reg.ObserveSurfaceCall("Swiggy", "search", 200*time.Millisecond, nil)
	reg.ObserveSurfaceCall("Swiggy", "search", time.Second, xerrors.New(xerrors.CodePlatformSurface, "timeout"))

	if got := testutil.ToFloat64(reg.surfaceCalls.WithLabelValues("Swiggy", "search", "ok")); got != 1 {
		t.Fatalf("expected 1 ok call, got %v", got)
	}
	failed := reg.surfaceCalls.WithLabelValues("Swiggy", "search", string(xerrors.CodePlatformSurface))
	if got := testutil.ToFloat64(failed); got != 1 {
		t.Fatalf("expected 1 failed call, got %v", got)
	}
}

func TestObserveJob(t *testing.T) {
	reg := New("test")
	reg.ObserveJob("foodie", task.StatusSuccess, 3*time.Second)
	reg.ObserveJob("foodie", task.StatusFailed, time.Second)
	reg.ObserveJob("foodie", task.StatusSuccess, 2*time.Second)

	if got := testutil.ToFloat64(reg.jobs.WithLabelValues("foodie", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if n := testutil.CollectAndCount(reg.jobDuration); n != 1 {
		t.Fatalf("expected one duration series, got %d", n)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	reg := New("dealpilot")
	h := reg.Middleware("tasks", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/tasks", nil))

	if got := testutil.ToFloat64(reg.httpErrors.WithLabelValues("tasks", http.MethodPost)); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	want := `dealpilot_http_requests_total{code="500",handler="tasks",method="POST"} 1`
	if !strings.Contains(string(body), want) {
		t.Fatalf("metrics output missing %q:\n%s", want, body)
	}
}

func TestNilRegistryIsNoop(t *testing.T) {
	var reg *Registry
	reg.ObserveJob("rider", task.StatusSuccess, time.Second)
	reg.ObserveSurfaceCall("Uber", "book", time.Second, nil)
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	if reg.Middleware("x", next) == nil {
		t.Fatal("middleware should pass through")
	}
}
