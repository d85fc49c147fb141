package platform

import (
	"context"
	"log/slog"

	"DealPilot/internal/deal"
	"DealPilot/internal/task"
	"DealPilot/pkg/logger"
)

// Prober is the one probe-and-normalise path shared by every persona.
type Prober struct {
	Adapter Adapter
	Cache   QuoteCache
	Sink    task.LogSink
	Logger  *slog.Logger
	// Base is merged into basket probes (role, category).
	Base Query
	// Before runs ahead of each platform probe, e.g. to return the device home.
	Before func(ctx context.Context) error
	// Sleep between platform probes.
	Cooldown func(ctx context.Context) error
}

// Probe searches one platform and returns its quote. Failures are data.
func (p *Prober) Probe(ctx context.Context, platform string, q Query) deal.Quote {
	key := CacheKey(platform, q)
	if p.Cache != nil {
		if cached, ok := p.Cache.Get(ctx, key); ok {
			p.log(ctx, "[%s] cached %s @ %s", platform, cached.Title, cached.Price)
			return cached
		}
	}
	if p.Before != nil {
		if err := p.Before(ctx); err != nil && ctx.Err() == nil {
			p.logger().Warn("pre-probe reset failed", "platform", platform, "error", err)
		}
	}
	raw, err := p.Adapter.Search(ctx, platform, q)
	if err != nil {
		p.log(ctx, "[%s] search failed: %v", platform, err)
		return deal.FailedQuote(platform, q.Item, err)
	}
	quote := deal.QuoteFromOutput(platform, q.Item, raw)
	if quote.Status == deal.QuoteSuccess {
		p.log(ctx, "[%s] %s @ %s", platform, quote.Title, quote.Price)
		if p.Cache != nil && quote.Price.Available() {
			if err := p.Cache.Set(ctx, key, quote); err != nil {
				p.logger().Warn("cache quote failed", "platform", platform, "error", err)
			}
		}
	} else {
		p.log(ctx, "[%s] no usable quote: %s", platform, quote.Err)
	}
	return quote
}

// ProbeAll probes platforms in order and stops early only on cancellation.
func (p *Prober) ProbeAll(ctx context.Context, platforms []string, q Query) (map[string]deal.Quote, error) {
	quotes := make(map[string]deal.Quote, len(platforms))
	for i, platform := range platforms {
		if i > 0 && p.Cooldown != nil {
			if err := p.Cooldown(ctx); err != nil {
				return quotes, err
			}
		}
		quotes[platform] = p.Probe(ctx, platform, q)
		if err := ctx.Err(); err != nil {
			return quotes, err
		}
	}
	return quotes, nil
}

// Best probes platforms and selects the winner, priority = platform order.
func (p *Prober) Best(ctx context.Context, platforms []string, q Query) (deal.Quote, map[string]deal.Quote, error) {
	quotes, err := p.ProbeAll(ctx, platforms, q)
	if err != nil {
		return deal.Quote{}, quotes, err
	}
	best, err := deal.Select(quotes, platforms)
	return best, quotes, err
}

// ProbeItem implements deal.BasketProber.
func (p *Prober) ProbeItem(ctx context.Context, vendor string, item deal.BasketItem) (deal.Quote, error) {
	q := p.Base
	q.Item = item.Name
	q.Quantity = item.Quantity
	return p.Probe(ctx, vendor, q), nil
}

func (p *Prober) log(ctx context.Context, format string, args ...any) {
	task.Logf(ctx, p.Sink, format, args...)
}

func (p *Prober) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return logger.Named("platform")
}
