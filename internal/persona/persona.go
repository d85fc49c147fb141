// Package persona maps job personas (shopper, foodie, rider, patient,
// coordinator, traveller) onto the deal and coordination core.
package persona

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"DealPilot/internal/clock"
	"DealPilot/internal/coordinator"
	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/platform"
	"DealPilot/internal/surface"
	"DealPilot/internal/task"
	"DealPilot/pkg/logger"
)

// Platform list keys.
const (
	Shopper  = "shopper"
	Foodie   = "foodie"
	Rider    = "rider"
	Pharmacy = "pharmacy"
	Flight   = "flight"
	Stay     = "stay"
)

// Config holds the platform lists (order = tie-break priority) and pacing.
type Config struct {
	Platforms        map[string][]string
	ProbeCooldown    time.Duration
	ItemCooldown     time.Duration
	VendorCooldown   time.Duration
	ResetBeforeProbe bool
	Retry            platform.RetryPolicy
	Coordinator      coordinator.Config
	ChatApp          string
}

// DefaultConfig returns the stock platform lists.
func DefaultConfig() Config {
	return Config{
		Platforms: map[string][]string{
			Shopper:  {"Amazon", "Flipkart"},
			Foodie:   {"Zomato", "Swiggy"},
			Rider:    {"Uber", "Ola"},
			Pharmacy: {"Apollo 24|7", "PharmEasy", "Tata 1mg"},
			Flight:   {"MakeMyTrip", "Goibibo"},
			Stay:     {"Booking.com", "Agoda"},
		},
		ProbeCooldown:    2 * time.Second,
		ItemCooldown:     2 * time.Second,
		VendorCooldown:   3 * time.Second,
		ResetBeforeProbe: true,
		Retry:            platform.RetryPolicy{MaxRetries: 1, BaseDelay: time.Second},
		Coordinator:      coordinator.DefaultConfig(),
	}
}

// Runner executes one persona.
type Runner interface {
	Persona() string
	Run(ctx context.Context, env *Env, params Params) (map[string]any, error)
}

type runnerFunc struct {
	name string
	fn   func(ctx context.Context, env *Env, params Params) (map[string]any, error)
}

func (r runnerFunc) Persona() string { return r.name }

func (r runnerFunc) Run(ctx context.Context, env *Env, params Params) (map[string]any, error) {
	return r.fn(ctx, env, params)
}

// NewRunner adapts a function to Runner.
func NewRunner(name string, fn func(ctx context.Context, env *Env, params Params) (map[string]any, error)) Runner {
	return runnerFunc{name: strings.ToLower(name), fn: fn}
}

// Builtin returns the stock runners.
func Builtin() []Runner {
	return []Runner{
		NewRunner("shopper", runShopper),
		NewRunner("foodie", runFoodie),
		NewRunner("rider", runRider),
		NewRunner("patient", runPatient),
		NewRunner("coordinator", runCoordinator),
		NewRunner("traveller", runTraveller),
	}
}

// Dispatcher routes a claimed job to its persona runner. It implements
// task.Executor.
type Dispatcher struct {
	pool      *surface.Pool
	cfg       Config
	cache     platform.QuoteCache
	recorder  platform.Recorder
	sleep     clock.SleepFunc
	logger    *slog.Logger
	runners   map[string]Runner
	mu        sync.Mutex
	templates map[platform.Variant]*platform.Templates
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithCache shares a quote cache across jobs.
func WithCache(c platform.QuoteCache) Option {
	return func(d *Dispatcher) { d.cache = c }
}

// WithRecorder attaches a surface call recorder.
func WithRecorder(r platform.Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithSleep replaces every pacing wait.
func WithSleep(fn clock.SleepFunc) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.sleep = fn
		}
	}
}

// WithTemplates overrides the goal templates for one variant.
func WithTemplates(v platform.Variant, t *platform.Templates) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.templates[v] = t
		}
	}
}

// WithRunner registers or replaces a runner.
func WithRunner(r Runner) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.runners[r.Persona()] = r
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher builds a dispatcher over pool with the builtin runners.
func NewDispatcher(pool *surface.Pool, cfg Config, opts ...Option) (*Dispatcher, error) {
	if pool == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "automation surface pool is required")
	}
	def := DefaultConfig()
	if cfg.Platforms == nil {
		cfg.Platforms = map[string][]string{}
	}
	for key, list := range def.Platforms {
		if len(cfg.Platforms[key]) == 0 {
			cfg.Platforms[key] = list
		}
	}
	d := &Dispatcher{
		pool:      pool,
		cfg:       cfg,
		sleep:     clock.Sleep,
		logger:    logger.Named("persona"),
		runners:   make(map[string]Runner),
		templates: make(map[platform.Variant]*platform.Templates),
	}
	for _, r := range Builtin() {
		d.runners[r.Persona()] = r
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Personas lists the registered persona names.
func (d *Dispatcher) Personas() []string {
	out := make([]string, 0, len(d.runners))
	for name := range d.runners {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether persona has a runner.
func (d *Dispatcher) Supports(persona string) bool {
	_, ok := d.runners[strings.ToLower(strings.TrimSpace(persona))]
	return ok
}

// Execute implements task.Executor. The job holds one device lease for its
// whole run.
func (d *Dispatcher) Execute(ctx context.Context, t *task.Task, sink task.LogSink) (map[string]any, error) {
	name := strings.ToLower(strings.TrimSpace(t.Persona))
	runner, ok := d.runners[name]
	if !ok {
		return nil, xerrors.New(xerrors.CodeUnsupportedPersona, fmt.Sprintf("unsupported persona %q", t.Persona),
			xerrors.WithMetadata("persona", t.Persona))
	}
	if sink == nil {
		sink = task.NopSink{}
	}

	lease, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	env := &Env{d: d, surface: lease, sink: sink, TaskID: t.ID}
	env.Logf(ctx, "Starting executor for persona: %s", name)
	started := time.Now()
	result, err := runner.Run(ctx, env, Params(t.Params))
	if err != nil {
		d.logger.Warn("persona run failed", "task_id", t.ID, "persona", name, "error", err)
		env.Logf(ctx, "Error: %v", err)
		return result, err
	}
	env.Logf(ctx, "Task complete.")
	d.logger.Info("persona run finished", "task_id", t.ID, "persona", name, "took", time.Since(started))
	return result, nil
}

func (d *Dispatcher) templatesFor(v platform.Variant) (*platform.Templates, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.templates[v]; ok {
		return t, nil
	}
	t, err := platform.BuiltinTemplates(v)
	if err != nil {
		return nil, err
	}
	d.templates[v] = t
	return t, nil
}

var _ task.Executor = (*Dispatcher)(nil)

// Env is what a runner gets for one job: a leased device, the job's log
// sink and factories for adapters and probers bound to that device.
type Env struct {
	d       *Dispatcher
	surface surface.Surface
	sink    task.LogSink
	TaskID  string
}

// Logf writes a progress line to the job log.
func (e *Env) Logf(ctx context.Context, format string, args ...any) {
	task.Logf(ctx, e.sink, format, args...)
}

// Sink returns the job log sink.
func (e *Env) Sink() task.LogSink { return e.sink }

// Surface returns the leased device.
func (e *Env) Surface() surface.Surface { return e.surface }

// Config returns the dispatcher config.
func (e *Env) Config() Config { return e.d.cfg }

// Platforms returns the configured platform list for key.
func (e *Env) Platforms(key string) []string {
	return append([]string(nil), e.d.cfg.Platforms[key]...)
}

// Sleep waits for d, honouring cancellation.
func (e *Env) Sleep(ctx context.Context, d time.Duration) error {
	return e.d.sleep(ctx, d)
}

// Adapter returns a platform adapter for v on the leased device.
func (e *Env) Adapter(v platform.Variant) (*platform.SurfaceAdapter, error) {
	t, err := e.d.templatesFor(v)
	if err != nil {
		return nil, err
	}
	return platform.NewSurfaceAdapter(e.surface, v,
		platform.WithTemplates(t),
		platform.WithRetry(e.d.cfg.Retry),
		platform.WithRecorder(e.d.recorder),
		platform.WithLogger(e.d.logger),
	)
}

// Prober returns the shared probe path for v with base merged into basket probes.
func (e *Env) Prober(v platform.Variant, base platform.Query) (*platform.Prober, *platform.SurfaceAdapter, error) {
	adapter, err := e.Adapter(v)
	if err != nil {
		return nil, nil, err
	}
	p := &platform.Prober{
		Adapter: adapter,
		Cache:   e.d.cache,
		Sink:    e.sink,
		Logger:  e.d.logger,
		Base:    base,
		Cooldown: func(ctx context.Context) error {
			return e.Sleep(ctx, e.d.cfg.ProbeCooldown)
		},
	}
	if e.d.cfg.ResetBeforeProbe {
		p.Before = func(ctx context.Context) error {
			return surface.GoHome(ctx, e.surface)
		}
	}
	return p, adapter, nil
}
