package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"DealPilot/internal/deal"
	"DealPilot/internal/pricing"
)

func newTestCache(t *testing.T) (*QuoteCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQuoteCacheWithClient(client, "test:quote:", time.Minute), mr
}

func TestQuoteCacheRoundTrip(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "Zomato|pizza"); ok {
		t.Fatalf("expected miss on empty cache")
	}

	q := deal.Quote{
		Platform: "Zomato",
		Item:     "Pizza",
		Title:    "Farmhouse",
		Price:    pricing.MustParse("249"),
		Vendor:   "Domino's",
		Status:   deal.QuoteSuccess,
	}
	if err := cache.Set(ctx, "Zomato|pizza", q); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("test:quote:Zomato|pizza") {
		t.Fatalf("expected prefixed key in redis, keys=%v", mr.Keys())
	}

	got, ok := cache.Get(ctx, "Zomato|pizza")
	if !ok {
		t.Fatalf("expected hit")
	}
	if got.Title != "Farmhouse" || got.Vendor != "Domino's" || !got.Price.Equal(q.Price) {
		t.Fatalf("unexpected quote: %+v", got)
	}
}

func TestQuoteCacheExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "Swiggy|pizza", deal.Quote{Platform: "Swiggy", Price: pricing.MustParse("199"), Status: deal.QuoteSuccess}); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok := cache.Get(ctx, "Swiggy|pizza"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestQuoteCacheIgnoresCorruptEntries(t *testing.T) {
	cache, mr := newTestCache(t)
	if err := mr.Set("test:quote:bad", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok := cache.Get(context.Background(), "bad"); ok {
		t.Fatalf("corrupt entry should be a miss")
	}
}

func TestNewQuoteCacheRequiresAddress(t *testing.T) {
	if _, err := NewQuoteCache(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
