package persona

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"DealPilot/internal/clock"
	"DealPilot/internal/deal"
	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/surface"
	"DealPilot/internal/task"
)

type device struct {
	mu    sync.Mutex
	goals []surface.Goal
	reply func(g surface.Goal) (string, error)
}

func (d *device) RunGoal(_ context.Context, g surface.Goal) (string, error) {
	d.mu.Lock()
	d.goals = append(d.goals, g)
	d.mu.Unlock()
	if g.App == "" {
		return `{"status": "success"}`, nil
	}
	return d.reply(g)
}

func (d *device) goalsFor(app string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, g := range d.goals {
		if g.App == app {
			out = append(out, g.Text)
		}
	}
	return out
}

func newDispatcher(t *testing.T, dev *device, mutate func(*Config)) *Dispatcher {
	t.Helper()
	pool, err := surface.NewPool(dev)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := NewDispatcher(pool, cfg, WithSleep((&clock.Recorder{}).Sleep))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	return d
}

func isOrder(g surface.Goal) bool {
	return strings.Contains(g.Text, "place the order") || strings.Contains(g.Text, "confirm the booking") ||
		strings.Contains(g.Text, "check out")
}

func TestFoodieSearchPicksCheapest(t *testing.T) {
	dev := &device{reply: func(g surface.Goal) (string, error) {
		switch g.App {
		case "Zomato":
			return `{"title": "Farmhouse", "price": "₹249", "restaurant": "Domino's"}`, nil
		case "Swiggy":
			return "Done. ```json\n{\"title\": \"Margherita\", \"price\": \"Rs. 199\"}\n```", nil
		}
		return "", errors.New("unexpected app")
	}}
	d := newDispatcher(t, dev, nil)
	sink := &task.RecordingSink{}

	result, err := d.Execute(context.Background(), &task.Task{ID: "t1", Persona: "Foodie", Params: map[string]any{"food_item": "Pizza"}}, sink)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	best := result["best"].(map[string]any)
	if best["platform"] != "Swiggy" || best["price"] != 199.0 || best["vendor"] != deal.UnknownVendor {
		t.Fatalf("unexpected best: %v", best)
	}
	if _, ok := result["order"]; ok {
		t.Fatalf("search must not order")
	}
	msgs := sink.Messages()
	if len(msgs) == 0 || !strings.Contains(msgs[0], "foodie") || msgs[len(msgs)-1] != "Task complete." {
		t.Fatalf("unexpected logs: %v", msgs)
	}
}

func TestFoodieOrderTieGoesToPriority(t *testing.T) {
	dev := &device{reply: func(g surface.Goal) (string, error) {
		if isOrder(g) {
			return `{"status": "success", "order_id": "Z-1", "final_price": "199"}`, nil
		}
		return `{"title": "Farmhouse", "price": 199}`, nil
	}}
	d := newDispatcher(t, dev, nil)

	result, err := d.Execute(context.Background(), &task.Task{ID: "t2", Persona: "foodie",
		Params: map[string]any{"food_item": "Pizza", "action": "order"}}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	order := result["order"].(map[string]any)
	if order["status"] != "success" || order["platform"] != "Zomato" || order["order_id"] != "Z-1" {
		t.Fatalf("unexpected order: %v", order)
	}
	var orderGoals int
	for _, text := range dev.goalsFor("Zomato") {
		if strings.Contains(text, "Find the item 'Farmhouse'") {
			orderGoals++
		}
	}
	if orderGoals != 1 || len(dev.goalsFor("Swiggy")) != 1 {
		t.Fatalf("expected one order on Zomato only, zomato=%v", dev.goalsFor("Zomato"))
	}
}

func TestRiderUsesKeywordsAndFailsUnconfirmedBooking(t *testing.T) {
	dev := &device{reply: func(g surface.Goal) (string, error) {
		if isOrder(g) {
			return `{"status": "failed"}`, nil
		}
		if g.App == "Uber" {
			return `{"ride_type": "Uber Auto", "price": "₹180", "eta": "4 min"}`, nil
		}
		return `{"ride_type": "Ola Auto", "price": "₹150"}`, nil
	}}
	d := newDispatcher(t, dev, nil)

	result, err := d.Execute(context.Background(), &task.Task{ID: "t3", Persona: "rider",
		Params: map[string]any{"pickup": "Koramangala", "drop": "Airport", "preference": "auto", "action": "book"}}, nil)
	if !xerrors.HasCode(err, xerrors.CodePlatformSurface) || xerrors.RetryableError(err) {
		t.Fatalf("expected non-retryable surface error, got %v", err)
	}
	if result["status"] != "failed" || result["best"].(map[string]any)["platform"] != "Ola" {
		t.Fatalf("unexpected result: %v", result)
	}
	if !strings.Contains(dev.goalsFor("Uber")[0], "focus on Uber Auto") {
		t.Fatalf("expected ride keyword in goal: %s", dev.goalsFor("Uber")[0])
	}
}

func TestPatientBasketExcludesIncompleteVendor(t *testing.T) {
	prices := map[string]map[string]string{
		"PharmEasy": {"Dolo 650": "30", "Crocin": "25"},
		"Tata 1mg":  {"Dolo 650": "10"},
	}
	dev := &device{reply: func(g surface.Goal) (string, error) {
		for name, price := range prices[g.App] {
			if strings.Contains(g.Text, "'"+name+"'") {
				return `{"title": "` + name + `", "price": "` + price + `"}`, nil
			}
		}
		return `{"status": "failed"}`, nil
	}}
	d := newDispatcher(t, dev, nil)

	result, err := d.Execute(context.Background(), &task.Task{ID: "t4", Persona: "patient",
		Params: map[string]any{"medicine": "Dolo 650:2, Crocin", "apps": []any{"easy", "1MG"}}}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	best := result["best_option"].(map[string]any)
	if best["vendor"] != "PharmEasy" || best["total"] != 85.0 {
		t.Fatalf("unexpected best: %v", best)
	}
	baskets := result["baskets"].([]map[string]any)
	if len(baskets) != 2 || baskets[1]["complete"] != false || baskets[1]["failed_item"] != "Crocin" {
		t.Fatalf("unexpected baskets: %v", baskets)
	}
	if len(dev.goalsFor("Apollo 24|7")) != 0 {
		t.Fatalf("filtered app must not be probed")
	}
}

func TestParseMedicines(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want []deal.BasketItem
	}{
		{"string", "Dolo 650:2, Crocin", []deal.BasketItem{{Name: "Dolo 650", Quantity: 2}, {Name: "Crocin", Quantity: 1}}},
		{"strings", []any{"Dolo 650", " "}, []deal.BasketItem{{Name: "Dolo 650", Quantity: 1}}},
		{"objects", []any{map[string]any{"name": "Crocin", "qty": 3.0}, map[string]any{"name": "ORS", "quantity": "2"}},
			[]deal.BasketItem{{Name: "Crocin", Quantity: 3}, {Name: "ORS", Quantity: 2}}},
		{"empty", nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, parseMedicines(tc.in)); diff != "" {
				t.Fatalf("parseMedicines mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilterApps(t *testing.T) {
	all := []string{"Apollo 24|7", "PharmEasy", "Tata 1mg"}
	if diff := cmp.Diff([]string{"Apollo 24|7", "Tata 1mg"}, filterApps(all, []string{"1mg", "APOLLO"})); diff != "" {
		t.Fatalf("filter mismatch:\n%s", diff)
	}
	if got := filterApps(all, []string{"netmeds"}); len(got) != 0 {
		t.Fatalf("expected no match, got %v", got)
	}
}

func TestTravellerKeepsPartialResults(t *testing.T) {
	dev := &device{reply: func(g surface.Goal) (string, error) {
		switch {
		case strings.Contains(g.Text, "from 'BLR' to 'GOI'"):
			return `{"airline": "IndiGo 6E-123", "price": "₹4,500"}`, nil
		case strings.Contains(g.Text, "from 'GOI' to 'BLR'"):
			return `{"status": "failed"}`, nil
		case strings.Contains(g.Text, "stays in 'GOI'"):
			return `{"name": "Sea View", "price_per_night": "3200"}`, nil
		}
		return "", errors.New("unexpected goal")
	}}
	d := newDispatcher(t, dev, nil)

	result, err := d.Execute(context.Background(), &task.Task{ID: "t5", Persona: "traveller",
		Params: map[string]any{"source": "BLR", "destination": "GOI", "date": "2024-12-20", "end_date": "2024-12-23"}}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result["outbound"].(map[string]any)["price"] != 4500.0 {
		t.Fatalf("unexpected outbound: %v", result["outbound"])
	}
	if _, ok := result["return_error"]; !ok {
		t.Fatalf("expected return flight failure to be recorded: %v", result)
	}
	if result["stay"].(map[string]any)["title"] != "Sea View" {
		t.Fatalf("unexpected stay: %v", result["stay"])
	}
}

func TestCoordinatorPersonaOrdersForRepliers(t *testing.T) {
	dev := &device{reply: func(g surface.Goal) (string, error) {
		switch {
		case g.App == "WhatsApp" && strings.Contains(g.Text, "Type the message"):
			return `{"status": "success"}`, nil
		case g.App == "WhatsApp" && strings.Contains(g.Text, "'Alice'"):
			return `{"sender": "Alice", "text": "Pizza"}`, nil
		case g.App == "WhatsApp":
			return `{"sender": "You", "from_me": true, "text": "Hi! Invited to Lunch"}`, nil
		case isOrder(g):
			return `{"status": "success", "order_id": "O-1"}`, nil
		case g.App == "Zomato":
			return `{"title": "Veg Pizza", "price": "220"}`, nil
		case g.App == "Swiggy":
			return `{"title": "Veg Pizza", "price": "210"}`, nil
		}
		return "", errors.New("unexpected goal")
	}}
	d := newDispatcher(t, dev, func(c *Config) {
		c.Coordinator.Policy.MaxCycles = 2
		c.ChatApp = "WhatsApp"
	})

	result, err := d.Execute(context.Background(), &task.Task{ID: "t6", Persona: "coordinator",
		Params: map[string]any{"event_name": "Lunch", "guest_list": []any{"Alice", "Bob"}}}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result["orders_placed"] != 1 || result["cycles"] != 2 {
		t.Fatalf("unexpected result: %v", result)
	}
	if diff := cmp.Diff([]string{"Bob"}, result["unresolved"]); diff != "" {
		t.Fatalf("unresolved mismatch:\n%s", diff)
	}
}

func TestUnsupportedPersona(t *testing.T) {
	d := newDispatcher(t, &device{}, nil)
	_, err := d.Execute(context.Background(), &task.Task{ID: "t7", Persona: "astronaut"}, nil)
	if !xerrors.HasCode(err, xerrors.CodeUnsupportedPersona) {
		t.Fatalf("expected unsupported persona, got %v", err)
	}
	if !d.Supports("RIDER") || len(d.Personas()) != 6 {
		t.Fatalf("unexpected personas %v", d.Personas())
	}
}

func TestNoDealRecovery(t *testing.T) {
	h := NoDealRecovery()
	got, err := h.Recover(context.Background(), &task.Task{Persona: "shopper"}, deal.ErrPriceUnavailable)
	if err != nil || got["status"] != "no_deal" || got["message"] != "No deal found" {
		t.Fatalf("unexpected fallback %v %v", got, err)
	}
	got, err = h.Recover(context.Background(), &task.Task{}, errors.New("boom"))
	if got != nil || err != nil {
		t.Fatalf("other failures must not be recovered: %v %v", got, err)
	}
}

func TestShopperNoDealKeepsQuotes(t *testing.T) {
	dev := &device{reply: func(surface.Goal) (string, error) { return "Product not found.", nil }}
	d := newDispatcher(t, dev, nil)
	result, err := d.Execute(context.Background(), &task.Task{ID: "t8", Persona: "shopper", Params: map[string]any{"product": "kettle"}}, nil)
	if !errors.Is(err, deal.ErrPriceUnavailable) {
		t.Fatalf("expected no deal, got %v", err)
	}
	if len(result["quotes"].(map[string]any)) != 2 {
		t.Fatalf("expected quotes for both platforms: %v", result)
	}
}
