package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"DealPilot/internal/deal"
	"DealPilot/internal/pricing"
	"DealPilot/internal/task"
)

type scriptedAdapter struct {
	replies  map[string]string
	failures map[string]error
	searches []string
	queries  []Query
}

func (s *scriptedAdapter) Search(_ context.Context, platform string, q Query) (string, error) {
	s.searches = append(s.searches, platform)
	s.queries = append(s.queries, q)
	if err := s.failures[platform]; err != nil {
		return "", err
	}
	return s.replies[platform], nil
}

func (s *scriptedAdapter) Order(context.Context, string, Query, string) (string, error) {
	return `{"status":"success"}`, nil
}

func TestProberBestPicksCheapestAndLogs(t *testing.T) {
	adapter := &scriptedAdapter{
		replies: map[string]string{
			"Zomato": "```json\n{\"title\": \"Farmhouse\", \"price\": \"₹249\", \"restaurant\": \"Domino's\"}\n```",
			"Swiggy": `{"title": "Margherita", "price": 199}`,
		},
	}
	sink := &task.RecordingSink{}
	befores := 0
	cooldowns := 0
	p := &Prober{
		Adapter:  adapter,
		Sink:     sink,
		Before:   func(context.Context) error { befores++; return nil },
		Cooldown: func(context.Context) error { cooldowns++; return nil },
	}

	best, quotes, err := p.Best(context.Background(), []string{"Zomato", "Swiggy"}, Query{Item: "Pizza"})
	if err != nil {
		t.Fatalf("best: %v", err)
	}
	if best.Platform != "Swiggy" || !best.Price.Equal(pricing.MustParse("199")) {
		t.Fatalf("unexpected winner: %+v", best)
	}
	if quotes["Zomato"].Vendor != "Domino's" || quotes["Swiggy"].Vendor != deal.UnknownVendor {
		t.Fatalf("unexpected vendors: %+v", quotes)
	}
	if befores != 2 || cooldowns != 1 {
		t.Fatalf("expected 2 pre-probe hooks and 1 cooldown, got %d/%d", befores, cooldowns)
	}
	if len(sink.Messages()) != 2 {
		t.Fatalf("expected a log line per platform, got %v", sink.Messages())
	}
}

func TestProberRecordsFailuresAsData(t *testing.T) {
	adapter := &scriptedAdapter{
		replies:  map[string]string{"Amazon": "I could not find the product."},
		failures: map[string]error{"Flipkart": errors.New("app crashed")},
	}
	p := &Prober{Adapter: adapter}

	_, quotes, err := p.Best(context.Background(), []string{"Amazon", "Flipkart"}, Query{Item: "kettle"})
	if !errors.Is(err, deal.ErrPriceUnavailable) {
		t.Fatalf("expected no deal, got %v", err)
	}
	if quotes["Amazon"].Status != deal.QuoteFailed || quotes["Flipkart"].Err == "" {
		t.Fatalf("unexpected quotes: %+v", quotes)
	}
}

func TestProberUsesCache(t *testing.T) {
	adapter := &scriptedAdapter{replies: map[string]string{"Zomato": `{"title":"Pizza","price":"199"}`}}
	p := &Prober{Adapter: adapter, Cache: NewMemoryCache(8, time.Minute)}

	first := p.Probe(context.Background(), "Zomato", Query{Item: "Pizza"})
	second := p.Probe(context.Background(), "Zomato", Query{Item: "pizza"})
	if len(adapter.searches) != 1 {
		t.Fatalf("expected a single device search, got %d", len(adapter.searches))
	}
	if !first.Price.Equal(second.Price) {
		t.Fatalf("cached quote differs: %v vs %v", first.Price, second.Price)
	}

	adapter.replies["Swiggy"] = `{"status":"failed"}`
	p.Probe(context.Background(), "Swiggy", Query{Item: "Pizza"})
	p.Probe(context.Background(), "Swiggy", Query{Item: "Pizza"})
	if len(adapter.searches) != 3 {
		t.Fatalf("failed quotes must not be cached, searches=%d", len(adapter.searches))
	}
}

func TestProberProbeItemMergesBase(t *testing.T) {
	adapter := &scriptedAdapter{replies: map[string]string{"PharmEasy": `{"title":"Dolo 650","price":"30"}`}}
	p := &Prober{Adapter: adapter, Base: Query{Role: "pharmacist", Category: "medicine"}}

	q, err := p.ProbeItem(context.Background(), "PharmEasy", deal.BasketItem{Name: "Dolo 650", Quantity: 2})
	if err != nil {
		t.Fatalf("probe item: %v", err)
	}
	if !q.Usable() {
		t.Fatalf("expected usable quote: %+v", q)
	}
	got := adapter.queries[0]
	if got.Role != "pharmacist" || got.Item != "Dolo 650" || got.Quantity != 2 {
		t.Fatalf("unexpected query: %+v", got)
	}
}

func TestProberStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	adapter := &scriptedAdapter{replies: map[string]string{"Uber": `{"ride_type":"Uber Go","price":"250"}`}}
	p := &Prober{
		Adapter: adapter,
		Before: func(context.Context) error {
			cancel()
			return nil
		},
	}
	quotes, err := p.ProbeAll(ctx, []string{"Uber", "Ola"}, Query{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(quotes) != 1 || len(adapter.searches) != 1 {
		t.Fatalf("expected to stop after first platform, got %+v", quotes)
	}
}
