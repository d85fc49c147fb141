package persona

import (
	"context"
	"fmt"
	"strings"

	"DealPilot/internal/coordinator"
	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/messaging"
	"DealPilot/internal/platform"
	"DealPilot/internal/surface"
)

func runCoordinator(ctx context.Context, env *Env, params Params) (map[string]any, error) {
	guests := params.List("guest_list")
	if len(guests) == 0 {
		guests = params.List("contacts")
	}
	if len(guests) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "coordinator needs a guest_list")
	}
	event := params.String("event_name", "event")
	if event == "" {
		event = "our event"
	}
	invitation := params.String("message", "invitation")
	if invitation == "" {
		invitation = Invitation(event, params.String("date"), params.String("location"))
	}
	env.Logf(ctx, "Orchestrating event: %s", event)

	cfg := env.Config()
	base := platform.Query{Category: "food item"}
	prober, adapter, err := env.Prober(platform.VariantFood, base)
	if err != nil {
		return nil, err
	}
	c := coordinator.New(
		messaging.NewSurfaceChannel(env.Surface(), cfg.ChatApp),
		&coordinator.ProberResearcher{Prober: prober, Platforms: env.Platforms(Foodie), Base: base},
		&coordinator.AdapterOrderer{Adapter: adapter, Base: base},
		coordinator.WithConfig(cfg.Coordinator),
		coordinator.WithSink(env.Sink()),
		coordinator.WithSleep(env.Sleep),
		coordinator.WithReset(func(ctx context.Context) error { return surface.GoHome(ctx, env.Surface()) }),
	)
	out, err := c.Run(ctx, coordinator.Plan{Invitees: guests, Invitation: invitation})
	if out == nil {
		return nil, err
	}
	result := out.Result()
	result["event"] = event
	result["invitation"] = invitation
	if err != nil {
		return result, err
	}
	result["status"] = "success"
	result["message"] = fmt.Sprintf("Event orchestration complete: %d of %d guests researched", out.Researched(), len(out.Invitees))
	return result, nil
}

// Invitation renders the default invite text.
func Invitation(event, date, location string) string {
	if strings.TrimSpace(date) == "" {
		date = "TBD"
	}
	if strings.TrimSpace(location) == "" {
		location = "TBD"
	}
	return fmt.Sprintf("Hi! Invited to %s on %s. Loc: %s. Please Reply with FOOD PREFERENCE (e.g. Pizza).", event, date, location)
}
