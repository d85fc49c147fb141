package persona

import (
	"context"
	"errors"
	"fmt"

	"DealPilot/internal/deal"
	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/platform"
)

func runShopper(ctx context.Context, env *Env, params Params) (map[string]any, error) {
	product := params.String("product", "item", "instruction")
	url := params.String("url")
	if product == "" && url == "" {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "shopper needs a product or url")
	}
	platforms := env.Platforms(Shopper)
	target := product
	if target == "" {
		target = url
	}
	env.Logf(ctx, "Searching for %s on %v", target, platforms)

	prober, _, err := env.Prober(platform.VariantCommerce, platform.Query{})
	if err != nil {
		return nil, err
	}
	best, quotes, err := prober.Best(ctx, platforms, platform.Query{Item: product, URL: url, Category: "product"})
	if err != nil {
		return noDeal(quotes, err)
	}
	msg := fmt.Sprintf("Best deal: %s on %s @ %s", titleOr(best, target), best.Platform, best.Price)
	env.Logf(ctx, "%s", msg)
	return map[string]any{
		"status":  "success",
		"message": msg,
		"best":    quoteView(best),
		"quotes":  quotesView(quotes),
	}, nil
}

func runFoodie(ctx context.Context, env *Env, params Params) (map[string]any, error) {
	item := params.String("food_item", "item", "product")
	if item == "" {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "foodie needs a food_item")
	}
	action := params.String("action")
	if action == "" {
		action = "search"
	}
	platforms := env.Platforms(Foodie)
	env.Logf(ctx, "Foodie mode: %s '%s' on %v", action, item, platforms)

	prober, adapter, err := env.Prober(platform.VariantFood, platform.Query{})
	if err != nil {
		return nil, err
	}
	q := platform.Query{Item: item, Category: "food item"}
	best, quotes, err := prober.Best(ctx, platforms, q)
	if err != nil {
		return noDeal(quotes, err)
	}
	title := titleOr(best, item)
	msg := fmt.Sprintf("Best deal: %s from %s on %s @ %s", title, best.Vendor, best.Platform, best.Price)
	env.Logf(ctx, "%s", msg)
	result := map[string]any{
		"status":  "success",
		"message": msg,
		"best":    quoteView(best),
		"quotes":  quotesView(quotes),
	}
	switch action {
	case "search", "compare":
		return result, nil
	case "order":
	default:
		return nil, xerrors.New(xerrors.CodeInvalidParams, fmt.Sprintf("unknown foodie action %q", action))
	}

	env.Logf(ctx, "Ordering '%s' on %s", title, best.Platform)
	order := placeOrder(ctx, adapter, best.Platform, q, title)
	result["order"] = order
	if order["status"] == "success" {
		result["message"] = "Order placed successfully"
	} else {
		result["message"] = "Order attempted; check the device"
	}
	env.Logf(ctx, "%s", result["message"])
	return result, nil
}

// placeOrder runs one order and reports it as data. Orders are never retried.
func placeOrder(ctx context.Context, adapter platform.Adapter, app string, q platform.Query, target string) map[string]any {
	raw, err := adapter.Order(ctx, app, q, target)
	if err != nil {
		return map[string]any{"status": "failed", "platform": app, "error": err.Error()}
	}
	order, err := deal.ConfirmOrder(app, q.Item, raw)
	view := map[string]any{"platform": app, "raw": raw}
	for k, v := range order.Fields {
		view[k] = v
	}
	status := "success"
	if err != nil {
		status = "failed"
		if _, ok := view["error"]; !ok {
			view["error"] = err.Error()
		}
	}
	view["status"] = status
	return view
}

func titleOr(q deal.Quote, fallback string) string {
	if q.Title != "" {
		return q.Title
	}
	return fallback
}

// noDeal keeps the per-platform quotes on a PRICE_UNAVAILABLE failure so the
// recovery handler can report them.
func noDeal(quotes map[string]deal.Quote, err error) (map[string]any, error) {
	if errors.Is(err, deal.ErrPriceUnavailable) {
		return map[string]any{"quotes": quotesView(quotes)}, err
	}
	return nil, err
}
