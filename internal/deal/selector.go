package deal

import (
	"sort"

	"DealPilot/internal/pricing"
)

// Select returns the cheapest usable quote. Exact ties go to the platform
// listed earliest in priority; platforms missing from priority rank after
// listed ones and then by platform id.
func Select(quotes map[string]Quote, priority []string) (Quote, error) {
	ranked := Rank(quotes, priority)
	if len(ranked) == 0 {
		return Quote{}, ErrPriceUnavailable
	}
	return ranked[0], nil
}

// Rank returns every usable quote, best first.
func Rank(quotes map[string]Quote, priority []string) []Quote {
	order := priorityIndex(priority)
	out := make([]Quote, 0, len(quotes))
	for key, q := range quotes {
		if !q.Usable() {
			continue
		}
		if q.Platform == "" {
			q.Platform = key
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		return better(out[i].Platform, out[i].Price, out[j].Platform, out[j].Price, order)
	})
	return out
}

func priorityIndex(priority []string) map[string]int {
	order := make(map[string]int, len(priority))
	for i, p := range priority {
		if _, seen := order[p]; !seen {
			order[p] = i
		}
	}
	return order
}

// better is a strict total order over (platform, price) pairs.
func better(pa string, a pricing.Price, pb string, b pricing.Price, order map[string]int) bool {
	if a.Less(b) {
		return true
	}
	if b.Less(a) {
		return false
	}
	ia, oka := order[pa]
	ib, okb := order[pb]
	switch {
	case oka && okb && ia != ib:
		return ia < ib
	case oka != okb:
		return oka
	default:
		return pa < pb
	}
}
