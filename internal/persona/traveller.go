package persona

import (
	"context"
	"fmt"

	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/platform"
)

func runTraveller(ctx context.Context, env *Env, params Params) (map[string]any, error) {
	source := params.String("source", "origin")
	dest := params.String("destination")
	date := params.String("date", "start_date")
	if source == "" || dest == "" || date == "" {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "traveller needs source, destination and date")
	}
	returnDate := params.String("end_date", "return_date")
	env.Logf(ctx, "Starting trip planning to %s", dest)

	flights, _, err := env.Prober(platform.VariantFlight, platform.Query{})
	if err != nil {
		return nil, err
	}
	flightApps := env.Platforms(Flight)

	env.Logf(ctx, "Searching outbound flight from %s to %s on %s", source, dest, date)
	outbound, outQuotes, err := flights.Best(ctx, flightApps, platform.Query{Origin: source, Item: dest, Date: date})
	if err != nil {
		return noDeal(outQuotes, err)
	}
	env.Logf(ctx, "Outbound found: %s on %s (%s)", titleOr(outbound, "flight"), outbound.Platform, outbound.Price)
	result := map[string]any{
		"status":   "success",
		"outbound": quoteView(outbound),
	}
	total := outbound.Price

	if returnDate != "" {
		env.Logf(ctx, "Searching return flight from %s to %s on %s", dest, source, returnDate)
		back, _, err := flights.Best(ctx, flightApps, platform.Query{Origin: dest, Item: source, Date: returnDate})
		switch {
		case ctx.Err() != nil:
			return result, ctx.Err()
		case err != nil:
			env.Logf(ctx, "Return flight search failed: %v", err)
			result["return_error"] = err.Error()
		default:
			env.Logf(ctx, "Return found: %s on %s (%s)", titleOr(back, "flight"), back.Platform, back.Price)
			result["return"] = quoteView(back)
			total = total.Add(back.Price)
		}
	}

	stays, _, err := env.Prober(platform.VariantStay, platform.Query{})
	if err != nil {
		return result, err
	}
	checkOut := returnDate
	if checkOut == "" {
		checkOut = date
	}
	env.Logf(ctx, "Finding stays in %s", dest)
	stay, _, err := stays.Best(ctx, env.Platforms(Stay), platform.Query{Item: dest, CheckIn: date, CheckOut: checkOut})
	switch {
	case ctx.Err() != nil:
		return result, ctx.Err()
	case err != nil:
		env.Logf(ctx, "Stay search failed: %v", err)
		result["stay_error"] = err.Error()
	default:
		env.Logf(ctx, "Stay found: %s on %s (%s per night)", titleOr(stay, dest), stay.Platform, stay.Price)
		result["stay"] = quoteView(stay)
	}

	result["travel_total"] = total.Number()
	result["message"] = fmt.Sprintf("Trip to %s is ready", dest)
	env.Logf(ctx, "%s", result["message"])
	return result, nil
}
