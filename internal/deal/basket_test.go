package deal

import (
	"context"
	"errors"
	"testing"
	"time"

	"DealPilot/internal/clock"
	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/pricing"
)

type priceTable map[string]map[string]string

func (p priceTable) prober(calls *[]string) BasketProber {
	return BasketProberFunc(func(_ context.Context, vendor string, item BasketItem) (Quote, error) {
		*calls = append(*calls, vendor+":"+item.Name)
		raw, ok := p[vendor][item.Name]
		if !ok {
			return Quote{}, errors.New("surface failed")
		}
		return Quote{Platform: vendor, Item: item.Name, Price: pricing.Evaluate(raw), Status: QuoteSuccess}, nil
	})
}

func TestCompareBasketsExcludesIncompleteVendor(t *testing.T) {
	items := []BasketItem{{Name: "A", Quantity: 1}, {Name: "B", Quantity: 2}}
	table := priceTable{
		"X": {"A": "10"},
		"Y": {"A": "30", "B": "25"},
	}
	var calls []string
	cmp, err := CompareBaskets(context.Background(), items, []string{"X", "Y"}, table.prober(&calls), nil)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if cmp.Winner == nil || cmp.Winner.Vendor != "Y" {
		t.Fatalf("expected Y to win, got %+v", cmp.Winner)
	}
	if !cmp.Winner.Total.Equal(pricing.MustParse("80")) {
		t.Fatalf("unexpected total %s", cmp.Winner.Total)
	}
	x := cmp.Baskets[0]
	if x.Complete || x.FailedItem != "B" || x.Total.Available() {
		t.Fatalf("X should be incomplete on B: %+v", x)
	}
}

func TestCompareBasketsFailFast(t *testing.T) {
	items := []BasketItem{{Name: "A", Quantity: 1}, {Name: "B", Quantity: 1}, {Name: "C", Quantity: 1}}
	table := priceTable{"X": {"A": "Not listed", "B": "1", "C": "1"}}
	var calls []string
	cmp, err := CompareBaskets(context.Background(), items, []string{"X"}, table.prober(&calls), nil)
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected probing to stop after first item, calls=%v", calls)
	}
	if cmp.Baskets[0].FailedItem != "A" {
		t.Fatalf("unexpected failed item %q", cmp.Baskets[0].FailedItem)
	}
}

func TestCompareBasketsTieUsesPriority(t *testing.T) {
	items := []BasketItem{{Name: "A", Quantity: 3}}
	table := priceTable{"X": {"A": "10"}, "Y": {"A": "10"}}
	var calls []string
	cmp, err := CompareBaskets(context.Background(), items, []string{"X", "Y"}, table.prober(&calls), []string{"Y", "X"})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if cmp.Winner.Vendor != "Y" {
		t.Fatalf("expected priority winner Y, got %s", cmp.Winner.Vendor)
	}
	if got := cmp.Winner.Lines[0].LineTotal.String(); got != "30.00" {
		t.Fatalf("unexpected line total %s", got)
	}
}

func TestCompareBasketsCooldowns(t *testing.T) {
	items := []BasketItem{{Name: "A", Quantity: 1}, {Name: "B", Quantity: 1}}
	table := priceTable{"X": {"A": "1", "B": "2"}, "Y": {"A": "1", "B": "1"}}
	var calls []string
	var rec clock.Recorder
	_, err := CompareBaskets(context.Background(), items, []string{"X", "Y"}, table.prober(&calls), nil,
		WithCooldowns(2*time.Second, 3*time.Second), WithSleep(rec.Sleep))
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	want := []time.Duration{2 * time.Second, 3 * time.Second, 2 * time.Second}
	if len(rec.Waits) != len(want) {
		t.Fatalf("unexpected waits %v", rec.Waits)
	}
	for i := range want {
		if rec.Waits[i] != want[i] {
			t.Fatalf("wait %d: want %v, got %v", i, want[i], rec.Waits[i])
		}
	}
}

func TestCompareBasketsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	items := []BasketItem{{Name: "A", Quantity: 1}, {Name: "B", Quantity: 1}}
	probe := BasketProberFunc(func(context.Context, string, BasketItem) (Quote, error) {
		cancel()
		return Quote{Status: QuoteSuccess, Price: pricing.MustParse("1")}, nil
	})
	cmp, err := CompareBaskets(ctx, items, []string{"X", "Y"}, probe, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(cmp.Baskets) != 1 || cmp.Baskets[0].Complete {
		t.Fatalf("unexpected baskets after cancel %+v", cmp.Baskets)
	}
	if xerrors.HasCode(err, xerrors.CodePriceUnavailable) {
		t.Fatalf("cancellation must not be reported as price unavailable")
	}
}
