package persona

import (
	"context"
	"fmt"

	"DealPilot/internal/deal"
	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/platform"
)

func runRider(ctx context.Context, env *Env, params Params) (map[string]any, error) {
	pickup := params.String("pickup")
	drop := params.String("drop")
	if pickup == "" || drop == "" {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "rider needs pickup and drop")
	}
	pref := params.String("preference")
	if pref == "" {
		pref = "cab"
	}
	action := params.String("action")
	if action == "" || action == "search" {
		action = "compare"
	}
	if action != "compare" && action != "book" {
		return nil, xerrors.New(xerrors.CodeInvalidParams, fmt.Sprintf("unknown rider action %q", action))
	}
	apps := env.Platforms(Rider)
	env.Logf(ctx, "Vehicle preference: %s", pref)
	env.Logf(ctx, "Comparing rides from %s to %s on %v", pickup, drop, apps)

	prober, adapter, err := env.Prober(platform.VariantRide, platform.Query{})
	if err != nil {
		return nil, err
	}
	// Each app names its products differently, so the query differs per app.
	quotes := make(map[string]deal.Quote, len(apps))
	queries := make(map[string]platform.Query, len(apps))
	for i, app := range apps {
		if i > 0 && prober.Cooldown != nil {
			if err := prober.Cooldown(ctx); err != nil {
				return nil, err
			}
		}
		q := platform.Query{Pickup: pickup, Drop: drop, Preference: pref, Keywords: platform.RideKeyword(app, pref)}
		queries[app] = q
		quotes[app] = prober.Probe(ctx, app, q)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	best, err := deal.Select(quotes, apps)
	if err != nil {
		env.Logf(ctx, "No rides found.")
		return noDeal(quotes, err)
	}
	msg := fmt.Sprintf("Best option: %s %s @ %s", best.Platform, best.Title, best.Price)
	env.Logf(ctx, "%s", msg)
	result := map[string]any{
		"status":  "success",
		"message": msg,
		"best":    quoteView(best),
		"quotes":  quotesView(quotes),
	}
	if action == "compare" {
		return result, nil
	}

	env.Logf(ctx, "Booking %s on %s to %s", best.Title, best.Platform, drop)
	booking := placeOrder(ctx, adapter, best.Platform, queries[best.Platform], best.Title)
	result["booking"] = booking
	if booking["status"] != "success" {
		result["status"] = "failed"
		result["message"] = "Booking failed; could not confirm a ride"
		env.Logf(ctx, "%s", result["message"])
		return result, xerrors.New(xerrors.CodePlatformSurface, "ride booking was not confirmed",
			xerrors.WithRetryable(false), xerrors.WithMetadata("platform", best.Platform))
	}
	result["message"] = fmt.Sprintf("Ride booked: %v (%v) arriving in %v. Fare: %v",
		orDefault(booking["cab_details"], "vehicle"), orDefault(booking["driver_details"], "driver"),
		orDefault(booking["eta"], "N/A"), orDefault(booking["price"], best.Price.String()))
	env.Logf(ctx, "%s", result["message"])
	return result, nil
}

func orDefault(v any, def string) any {
	if v == nil || v == "" {
		return def
	}
	return v
}
