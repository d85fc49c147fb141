package persona

import (
	"context"
	"fmt"
	"strings"

	"DealPilot/internal/deal"
	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/platform"
)

func runPatient(ctx context.Context, env *Env, params Params) (map[string]any, error) {
	raw, _ := params.Raw("medicine")
	items := parseMedicines(raw)
	if len(items) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "patient needs at least one medicine")
	}
	role := strings.ToLower(params.String("role"))
	if role != "pharmacist" {
		role = "patient"
	}
	vendors := filterApps(env.Platforms(Pharmacy), params.List("apps"))
	if len(vendors) == 0 {
		vendors = env.Platforms(Pharmacy)
		env.Logf(ctx, "No requested pharmacy app is supported; using %v", vendors)
	}
	env.Logf(ctx, "Searching for %d medicine(s) on %v as %s", len(items), vendors, role)

	prober, _, err := env.Prober(platform.VariantPharmacy, platform.Query{Role: role, Category: "medicine"})
	if err != nil {
		return nil, err
	}
	cfg := env.Config()
	cmp, err := deal.CompareBaskets(ctx, items, vendors, prober, vendors,
		deal.WithCooldowns(cfg.ItemCooldown, cfg.VendorCooldown),
		deal.WithSleep(env.Sleep),
		deal.WithProbeObserver(func(vendor string, item deal.BasketItem, q deal.Quote, _ error) {
			if !q.Usable() {
				env.Logf(ctx, "[%s] %s unavailable, skipping the rest of this pharmacy", vendor, item.Name)
			}
		}),
	)
	baskets := make([]map[string]any, 0, len(cmp.Baskets))
	for _, b := range cmp.Baskets {
		baskets = append(baskets, basketView(b))
	}
	if err != nil {
		return map[string]any{"baskets": baskets}, err
	}
	w := cmp.Winner
	msg := fmt.Sprintf("Cheapest complete basket: %s, total %s", w.Vendor, w.Total)
	env.Logf(ctx, "%s", msg)
	return map[string]any{
		"status":      "success",
		"message":     msg,
		"best_option": basketView(*w),
		"baskets":     baskets,
	}, nil
}

// parseMedicines accepts a list of {name, qty} objects or strings, or a
// "Name:qty, Name" string.
func parseMedicines(raw any) []deal.BasketItem {
	var items []deal.BasketItem
	add := func(name string, qty int) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if qty <= 0 {
			qty = 1
		}
		items = append(items, deal.BasketItem{Name: name, Quantity: qty})
	}
	switch v := raw.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			name, qty, found := strings.Cut(part, ":")
			n := 1
			if found {
				if parsed, ok := toInt(qty); ok {
					n = parsed
				}
			}
			add(name, n)
		}
	case []any:
		for _, entry := range v {
			switch e := entry.(type) {
			case string:
				add(e, 1)
			case map[string]any:
				name, _ := e["name"].(string)
				qty := 1
				for _, key := range []string{"qty", "quantity"} {
					if n, ok := toInt(e[key]); ok {
						qty = n
						break
					}
				}
				add(name, qty)
			}
		}
	case []string:
		for _, e := range v {
			add(e, 1)
		}
	}
	return items
}

// filterApps keeps the configured apps matching any requested name by
// case-insensitive substring, in configured order.
func filterApps(all, requested []string) []string {
	if len(requested) == 0 {
		return all
	}
	var out []string
	for _, app := range all {
		for _, want := range requested {
			if want != "" && strings.Contains(strings.ToLower(app), strings.ToLower(want)) {
				out = append(out, app)
				break
			}
		}
	}
	return out
}
