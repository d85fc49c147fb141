package deal

import (
	"testing"

	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/pricing"
)

func quote(platform, price string) Quote {
	return Quote{Platform: platform, Price: pricing.Evaluate(price), Status: QuoteSuccess}
}

func TestSelectTieBreakFollowsPriority(t *testing.T) {
	quotes := map[string]Quote{
		"Swiggy": quote("Swiggy", "₹199"),
		"Zomato": quote("Zomato", "199.00"),
	}
	for i := 0; i < 50; i++ {
		got, err := Select(quotes, []string{"Zomato", "Swiggy"})
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if got.Platform != "Zomato" {
			t.Fatalf("iteration %d: expected Zomato, got %s", i, got.Platform)
		}
	}
}

func TestSelectSkipsFailedAndUnavailable(t *testing.T) {
	quotes := map[string]Quote{
		"A": {Platform: "A", Price: pricing.MustParse("1"), Status: QuoteFailed},
		"B": {Platform: "B", Price: pricing.Unavailable, Status: QuoteSuccess},
		"C": quote("C", "50"),
		"D": quote("D", "40"),
	}
	got, err := Select(quotes, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got.Platform != "D" || got.Status != QuoteSuccess {
		t.Fatalf("unexpected winner %+v", got)
	}
}

func TestSelectUnlistedPlatformsRankLast(t *testing.T) {
	quotes := map[string]Quote{
		"Beta":   quote("Beta", "10"),
		"Alpha":  quote("Alpha", "10"),
		"Listed": quote("Listed", "10"),
	}
	ranked := Rank(quotes, []string{"Listed"})
	want := []string{"Listed", "Alpha", "Beta"}
	for i, q := range ranked {
		if q.Platform != want[i] {
			t.Fatalf("rank %d: want %s, got %s", i, want[i], q.Platform)
		}
	}
}

func TestSelectNoCandidates(t *testing.T) {
	_, err := Select(map[string]Quote{"A": FailedQuote("A", "pizza", nil)}, nil)
	if err == nil || !xerrors.HasCode(err, xerrors.CodePriceUnavailable) {
		t.Fatalf("expected PRICE_UNAVAILABLE, got %v", err)
	}
	if _, err := Select(nil, nil); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestQuoteFromOutput(t *testing.T) {
	q := QuoteFromOutput("Zomato", "Pizza", "```json\n{\"title\": \"Farmhouse\", \"price\": \"₹1,249\", \"rating\": 4.3}\n```")
	if q.Status != QuoteSuccess {
		t.Fatalf("expected success, got %+v", q)
	}
	if q.Vendor != UnknownVendor || q.Title != "Farmhouse" || q.RawPrice != "₹1,249" || q.Rating != "4.3" {
		t.Fatalf("unexpected quote %+v", q)
	}
	if !q.Price.Equal(pricing.MustParse("1249")) {
		t.Fatalf("unexpected price %s", q.Price)
	}

	q = QuoteFromOutput("Swiggy", "Pizza", `{"status": "success", "data": {"restaurant": "Dominos", "price": 300}}`)
	if q.Vendor != "Dominos" || q.Title != "Pizza" {
		t.Fatalf("nested data not used: %+v", q)
	}

	q = QuoteFromOutput("Swiggy", "Pizza", "could not find the item")
	if q.Status != QuoteFailed || q.Price.Available() {
		t.Fatalf("expected failed quote, got %+v", q)
	}

	q = QuoteFromOutput("Swiggy", "Pizza", `{"status": "failed", "error": "store closed"}`)
	if q.Status != QuoteFailed || q.Err != "store closed" {
		t.Fatalf("expected explicit failure, got %+v", q)
	}
}
