package deal

import (
	"context"
	"sort"
	"time"

	"DealPilot/internal/clock"
	"DealPilot/internal/pricing"
)

// BasketItem is one required line of a multi-item request.
type BasketItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// BasketLine is one priced line of a vendor basket.
type BasketLine struct {
	Item      string        `json:"item"`
	Quantity  int           `json:"quantity"`
	UnitPrice pricing.Price `json:"unit_price"`
	LineTotal pricing.Price `json:"line_total"`
	Title     string        `json:"title,omitempty"`
	Details   string        `json:"details,omitempty"`
}

// Basket is a vendor's aggregate for the whole request. Incomplete baskets
// never take part in ranking.
type Basket struct {
	Vendor     string        `json:"vendor"`
	Lines      []BasketLine  `json:"lines"`
	Total      pricing.Price `json:"total"`
	Complete   bool          `json:"complete"`
	FailedItem string        `json:"failed_item,omitempty"`
	Err        string        `json:"error,omitempty"`
}

// BasketComparison is the outcome of CompareBaskets. Baskets keep vendor order.
type BasketComparison struct {
	Baskets []Basket `json:"baskets"`
	Winner  *Basket  `json:"winner,omitempty"`
}

// BasketProber prices a single item at a vendor.
type BasketProber interface {
	ProbeItem(ctx context.Context, vendor string, item BasketItem) (Quote, error)
}

// BasketProberFunc adapts a function to BasketProber.
type BasketProberFunc func(ctx context.Context, vendor string, item BasketItem) (Quote, error)

// ProbeItem implements BasketProber.
func (f BasketProberFunc) ProbeItem(ctx context.Context, vendor string, item BasketItem) (Quote, error) {
	return f(ctx, vendor, item)
}

type basketOptions struct {
	itemCooldown   time.Duration
	vendorCooldown time.Duration
	sleep          clock.SleepFunc
	observe        func(vendor string, item BasketItem, q Quote, err error)
}

// BasketOption configures CompareBaskets.
type BasketOption func(*basketOptions)

// WithCooldowns sets the waits between items of a vendor and between vendors.
func WithCooldowns(item, vendor time.Duration) BasketOption {
	return func(o *basketOptions) {
		o.itemCooldown = item
		o.vendorCooldown = vendor
	}
}

// WithSleep overrides the wait implementation.
func WithSleep(fn clock.SleepFunc) BasketOption {
	return func(o *basketOptions) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WithProbeObserver is called after every probe, for progress logging.
func WithProbeObserver(fn func(vendor string, item BasketItem, q Quote, err error)) BasketOption {
	return func(o *basketOptions) {
		o.observe = fn
	}
}

// CompareBaskets prices every item at every vendor and picks the cheapest
// complete basket. A vendor stops at its first unpriceable item. When no
// basket completes the comparison is returned alongside ErrPriceUnavailable.
func CompareBaskets(ctx context.Context, items []BasketItem, vendors []string, probe BasketProber, priority []string, opts ...BasketOption) (BasketComparison, error) {
	o := basketOptions{sleep: clock.Sleep}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	var cmp BasketComparison
	for vi, vendor := range vendors {
		if vi > 0 {
			if err := o.sleep(ctx, o.vendorCooldown); err != nil {
				return cmp, err
			}
		}
		basket, err := probeVendor(ctx, vendor, items, probe, &o)
		cmp.Baskets = append(cmp.Baskets, basket)
		if err != nil {
			return cmp, err
		}
	}

	if len(priority) == 0 {
		priority = vendors
	}
	order := priorityIndex(priority)
	complete := make([]int, 0, len(cmp.Baskets))
	for i, b := range cmp.Baskets {
		if b.Complete {
			complete = append(complete, i)
		}
	}
	if len(complete) == 0 {
		return cmp, ErrPriceUnavailable
	}
	sort.SliceStable(complete, func(i, j int) bool {
		a, b := cmp.Baskets[complete[i]], cmp.Baskets[complete[j]]
		return better(a.Vendor, a.Total, b.Vendor, b.Total, order)
	})
	winner := cmp.Baskets[complete[0]]
	cmp.Winner = &winner
	return cmp, nil
}

// probeVendor returns a non-nil error only when ctx ends.
func probeVendor(ctx context.Context, vendor string, items []BasketItem, probe BasketProber, o *basketOptions) (Basket, error) {
	basket := Basket{Vendor: vendor, Total: pricing.Zero}
	for i, item := range items {
		if i > 0 {
			if err := o.sleep(ctx, o.itemCooldown); err != nil {
				return incomplete(basket, item.Name, err.Error()), err
			}
		}
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		q, err := probe.ProbeItem(ctx, vendor, item)
		if o.observe != nil {
			o.observe(vendor, item, q, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return incomplete(basket, item.Name, ctxErr.Error()), ctxErr
		}
		if err != nil {
			return incomplete(basket, item.Name, err.Error()), nil
		}
		if !q.Usable() {
			reason := q.Err
			if reason == "" {
				reason = ErrPriceUnavailable.Error()
			}
			return incomplete(basket, item.Name, reason), nil
		}
		line := BasketLine{
			Item:      item.Name,
			Quantity:  qty,
			UnitPrice: q.Price,
			LineTotal: q.Price.Mul(qty),
			Title:     q.Title,
		}
		if d, ok := q.Fields["details"].(string); ok {
			line.Details = d
		}
		basket.Lines = append(basket.Lines, line)
		basket.Total = basket.Total.Add(line.LineTotal)
	}
	basket.Complete = true
	return basket, nil
}

func incomplete(b Basket, item, reason string) Basket {
	b.Complete = false
	b.FailedItem = item
	b.Err = reason
	b.Total = pricing.Unavailable
	return b
}
