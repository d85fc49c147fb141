package persona

import (
	"DealPilot/internal/deal"
)

func quoteView(q deal.Quote) map[string]any {
	v := map[string]any{
		"platform": q.Platform,
		"status":   string(q.Status),
		"price":    q.Price.Number(),
	}
	if q.Title != "" {
		v["title"] = q.Title
	}
	if q.RawPrice != "" {
		v["raw_price"] = q.RawPrice
	}
	if q.Vendor != "" {
		v["vendor"] = q.Vendor
	}
	if q.Rating != "" {
		v["rating"] = q.Rating
	}
	if q.Err != "" {
		v["error"] = q.Err
	}
	return v
}

func quotesView(quotes map[string]deal.Quote) map[string]any {
	out := make(map[string]any, len(quotes))
	for platform, q := range quotes {
		out[platform] = quoteView(q)
	}
	return out
}

func basketView(b deal.Basket) map[string]any {
	lines := make([]map[string]any, 0, len(b.Lines))
	for _, l := range b.Lines {
		lines = append(lines, map[string]any{
			"item":       l.Item,
			"quantity":   l.Quantity,
			"unit_price": l.UnitPrice.Number(),
			"line_total": l.LineTotal.Number(),
			"title":      l.Title,
		})
	}
	v := map[string]any{
		"vendor":   b.Vendor,
		"complete": b.Complete,
		"total":    b.Total.Number(),
		"lines":    lines,
	}
	if b.FailedItem != "" {
		v["failed_item"] = b.FailedItem
	}
	if b.Err != "" {
		v["error"] = b.Err
	}
	return v
}
