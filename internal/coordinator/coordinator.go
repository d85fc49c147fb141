// Package coordinator runs the invite → poll → research → execute protocol
// for a group of participants sharing one automation surface.
package coordinator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"DealPilot/internal/clock"
	"DealPilot/internal/deal"
	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/messaging"
	"DealPilot/internal/task"
	"DealPilot/pkg/logger"
)

// ErrOrchestrationAborted is returned when nobody reached researched.
var ErrOrchestrationAborted = xerrors.New(xerrors.CodeOrchestrationAborted, "no invitee replied with a researchable item")

// Config tunes pacing and termination.
type Config struct {
	Policy        PollPolicy
	EchoPrefix    int
	InviteDelay   time.Duration
	PollDelay     time.Duration
	Dormancy      time.Duration
	OrderCooldown time.Duration
	// ResetBetweenCycles returns the device home before each dormancy wait.
	ResetBetweenCycles bool
}

// DefaultConfig matches the pacing the automation surface tolerates.
func DefaultConfig() Config {
	return Config{
		Policy:        PollPolicy{Mode: PollBounded, MaxCycles: DefaultMaxCycles},
		EchoPrefix:    DefaultEchoPrefix,
		InviteDelay:   2 * time.Second,
		PollDelay:     2 * time.Second,
		Dormancy:      10 * time.Second,
		OrderCooldown: 5 * time.Second,
	}
}

// Plan is one coordination request.
type Plan struct {
	Invitees   []string
	Invitation string
}

// Coordinator drives the protocol. It is safe to reuse across sequential runs.
type Coordinator struct {
	channel    messaging.Channel
	researcher Researcher
	orderer    Orderer
	extractor  ItemExtractor
	sink       task.LogSink
	sleep      clock.SleepFunc
	reset      func(ctx context.Context) error
	cfg        Config
	logger     *slog.Logger
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithConfig replaces the default pacing and policy.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) { c.cfg = cfg }
}

// WithSink routes progress messages to a task log.
func WithSink(sink task.LogSink) Option {
	return func(c *Coordinator) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithSleep replaces the wait used between calls.
func WithSleep(fn clock.SleepFunc) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithReset sets the device reset run before dormancy.
func WithReset(fn func(ctx context.Context) error) Option {
	return func(c *Coordinator) { c.reset = fn }
}

// WithExtractor replaces DefaultExtractor.
func WithExtractor(e ItemExtractor) Option {
	return func(c *Coordinator) {
		if e != nil {
			c.extractor = e
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a Coordinator.
func New(channel messaging.Channel, researcher Researcher, orderer Orderer, opts ...Option) *Coordinator {
	c := &Coordinator{
		channel:    channel,
		researcher: researcher,
		orderer:    orderer,
		extractor:  DefaultExtractor,
		sink:       task.NopSink{},
		sleep:      clock.Sleep,
		cfg:        DefaultConfig(),
		logger:     logger.Named("coordinator"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Run executes all three phases. The outcome is returned even on error so
// callers can report partial progress.
func (c *Coordinator) Run(ctx context.Context, plan Plan) (*Outcome, error) {
	names := cleanNames(plan.Invitees)
	if len(names) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "at least one invitee is required")
	}
	if strings.TrimSpace(plan.Invitation) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "invitation text is required")
	}
	if err := c.cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if c.channel == nil || c.researcher == nil || c.orderer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "coordinator is missing a collaborator")
	}

	out := newOutcome(names)
	if err := c.broadcast(ctx, out, plan.Invitation); err != nil {
		return out, err
	}
	if err := c.pollLoop(ctx, out, plan.Invitation); err != nil {
		return out, err
	}
	if out.Researched() == 0 {
		c.logf(ctx, "Nobody replied with an item; aborting.")
		return out, ErrOrchestrationAborted
	}
	if err := c.execute(ctx, out); err != nil {
		return out, err
	}
	c.logf(ctx, "Coordination complete: %d order(s) attempted.", len(out.Orders))
	return out, nil
}

func (c *Coordinator) broadcast(ctx context.Context, out *Outcome, invitation string) error {
	c.logf(ctx, "Phase 1: sending invites to %s", strings.Join(names(out.Invitees), ", "))
	for i, inv := range out.Invitees {
		if i > 0 {
			if err := c.sleep(ctx, c.cfg.InviteDelay); err != nil {
				return err
			}
		}
		err := c.channel.SendMessage(ctx, inv.Name, invitation)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			inv.LastError = err.Error()
			out.InviteFailures = append(out.InviteFailures, inv.Name)
			c.logf(ctx, "Invite to %s failed: %v", inv.Name, err)
			c.logger.Warn("invite failed", "invitee", inv.Name, "error", err)
			continue
		}
		c.logf(ctx, "Invite sent to %s", inv.Name)
	}
	return nil
}

func (c *Coordinator) pollLoop(ctx context.Context, out *Outcome, invitation string) error {
	limit := c.cfg.Policy.Limit()
	for cycle := 1; cycle <= limit; cycle++ {
		pending := out.pending()
		if len(pending) == 0 {
			break
		}
		out.Cycles = cycle
		c.logf(ctx, "Phase 2: cycle %d/%d, waiting on %d invitee(s)", cycle, limit, len(pending))
		for i, inv := range pending {
			if i > 0 {
				if err := c.sleep(ctx, c.cfg.PollDelay); err != nil {
					return err
				}
			}
			if err := c.poll(ctx, inv, invitation); err != nil {
				return err
			}
		}
		if len(out.pending()) == 0 || cycle == limit {
			break
		}
		if c.cfg.ResetBetweenCycles && c.reset != nil {
			if err := c.reset(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Warn("device reset failed", "error", err)
			}
		}
		c.logf(ctx, "Dormant for %s before the next cycle", c.cfg.Dormancy)
		if err := c.sleep(ctx, c.cfg.Dormancy); err != nil {
			return err
		}
	}
	for _, inv := range out.pending() {
		out.Unresolved = append(out.Unresolved, inv.Name)
	}
	if len(out.Unresolved) > 0 {
		if c.cfg.Policy.Mode == PollUntilComplete {
			c.logf(ctx, "Hard ceiling of %d cycles reached", limit)
		}
		c.logf(ctx, "No reply from: %s", strings.Join(out.Unresolved, ", "))
	}
	return nil
}

// poll reads one invitee's chat and researches their items. Only context
// errors are returned; everything else is recorded on the invitee.
func (c *Coordinator) poll(ctx context.Context, inv *Invitee, invitation string) error {
	msg, err := c.channel.ReadLastMessage(ctx, inv.Name)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		inv.LastError = err.Error()
		c.logf(ctx, "Could not read %s's chat: %v", inv.Name, err)
		return nil
	}
	if strings.TrimSpace(msg) == "" || isEcho(msg, invitation, c.cfg.EchoPrefix) {
		c.logf(ctx, "%s hasn't replied yet", inv.Name)
		return nil
	}
	items := c.extractor.Extract(msg)
	if len(items) == 0 {
		c.logf(ctx, "%s replied but no item was found", inv.Name)
		return nil
	}

	inv.Reply = msg
	if err := inv.advance(StatusReplied); err != nil {
		return err
	}
	c.logf(ctx, "%s replied: %s", inv.Name, strings.Join(items, ", "))
	for _, item := range items {
		c.logf(ctx, "Researching best deal for %s", item)
		res, err := c.researcher.Research(ctx, item)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			inv.LastError = err.Error()
			c.logf(ctx, "No deal found for %s: %v", item, err)
			continue
		}
		inv.Results = append(inv.Results, res)
		c.logf(ctx, "Winner for %s: %s (%s) @ %s", item, res.Platform, res.Vendor, res.Price)
	}
	if err := inv.advance(StatusResearched); err != nil {
		return err
	}
	return nil
}

type queuedOrder struct {
	order  Order
	result ResearchResult
}

func (c *Coordinator) execute(ctx context.Context, out *Outcome) error {
	var queue []queuedOrder
	for _, inv := range out.Invitees {
		if inv.Status != StatusResearched {
			continue
		}
		for _, r := range inv.Results {
			queue = append(queue, queuedOrder{
				order:  Order{Invitee: inv.Name, Item: r.Item, Platform: r.Platform, Title: r.Title, Price: r.Price},
				result: r,
			})
		}
	}
	if len(queue) == 0 {
		c.logf(ctx, "Phase 3: no orders to place")
		return nil
	}
	c.logf(ctx, "Phase 3: placing %d order(s)", len(queue))

	for i, q := range queue {
		if i > 0 {
			if err := c.sleep(ctx, c.cfg.OrderCooldown); err != nil {
				return err
			}
		}
		ord := q.order
		c.logf(ctx, "Ordering %s for %s on %s", ord.Title, ord.Invitee, ord.Platform)
		raw, err := c.orderer.PlaceOrder(ctx, ord.Invitee, q.result)
		if ctxErr := ctx.Err(); ctxErr != nil {
			out.Orders = append(out.Orders, failedOrder(ord, raw, ctxErr))
			return ctxErr
		}
		if err != nil {
			out.Orders = append(out.Orders, failedOrder(ord, raw, err))
			c.logf(ctx, "Order for %s failed: %v", ord.Invitee, err)
			continue
		}
		if _, err := deal.ConfirmOrder(ord.Platform, ord.Item, raw); err != nil {
			out.Orders = append(out.Orders, failedOrder(ord, raw, err))
			c.logf(ctx, "Order for %s failed: %v", ord.Invitee, err)
			continue
		}
		ord.Status = OrderPlaced
		ord.Raw = raw
		out.Orders = append(out.Orders, ord)
		c.logf(ctx, "Order placed for %s", ord.Invitee)
	}
	return nil
}

func failedOrder(ord Order, raw string, err error) Order {
	ord.Status = OrderFailed
	ord.Raw = raw
	ord.Err = err.Error()
	return ord
}

func (c *Coordinator) logf(ctx context.Context, format string, args ...any) {
	task.Logf(ctx, c.sink, format, args...)
}

func cleanNames(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, name := range in {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func names(invitees []*Invitee) []string {
	out := make([]string, len(invitees))
	for i, inv := range invitees {
		out[i] = inv.Name
	}
	return out
}
