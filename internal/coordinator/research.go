package coordinator

import (
	"context"

	"DealPilot/internal/deal"
	"DealPilot/internal/platform"
)

// Researcher finds the best offer for one requested item.
type Researcher interface {
	Research(ctx context.Context, item string) (ResearchResult, error)
}

// ResearcherFunc adapts a function to Researcher.
type ResearcherFunc func(ctx context.Context, item string) (ResearchResult, error)

// Research implements Researcher.
func (f ResearcherFunc) Research(ctx context.Context, item string) (ResearchResult, error) {
	return f(ctx, item)
}

// Orderer places one order for a research result and returns the agent text.
type Orderer interface {
	PlaceOrder(ctx context.Context, invitee string, r ResearchResult) (string, error)
}

// OrdererFunc adapts a function to Orderer.
type OrdererFunc func(ctx context.Context, invitee string, r ResearchResult) (string, error)

// PlaceOrder implements Orderer.
func (f OrdererFunc) PlaceOrder(ctx context.Context, invitee string, r ResearchResult) (string, error) {
	return f(ctx, invitee, r)
}

// ProberResearcher compares an item across Platforms, whose order is the
// tie-break priority.
type ProberResearcher struct {
	Prober    *platform.Prober
	Platforms []string
	Base      platform.Query
}

// Research implements Researcher.
func (r *ProberResearcher) Research(ctx context.Context, item string) (ResearchResult, error) {
	q := r.Base
	q.Item = item
	best, quotes, err := r.Prober.Best(ctx, r.Platforms, q)
	if err != nil {
		return ResearchResult{Item: item, Quotes: quotes}, err
	}
	return resultFromQuote(item, best, quotes), nil
}

func resultFromQuote(item string, best deal.Quote, quotes map[string]deal.Quote) ResearchResult {
	title := best.Title
	if title == "" {
		title = item
	}
	vendor := best.Vendor
	if vendor == "" {
		vendor = deal.UnknownVendor
	}
	return ResearchResult{
		Item:     item,
		Platform: best.Platform,
		Price:    best.Price,
		Title:    title,
		Vendor:   vendor,
		Quotes:   quotes,
	}
}

// AdapterOrderer orders the exact winning title on the winning platform.
type AdapterOrderer struct {
	Adapter platform.Adapter
	Base    platform.Query
}

// PlaceOrder implements Orderer.
func (o *AdapterOrderer) PlaceOrder(ctx context.Context, _ string, r ResearchResult) (string, error) {
	q := o.Base
	q.Item = r.Item
	return o.Adapter.Order(ctx, r.Platform, q, r.Title)
}
