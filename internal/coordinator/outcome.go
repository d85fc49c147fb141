package coordinator

import (
	"DealPilot/internal/pricing"
)

// OrderStatus is the result of one Phase 3 order.
type OrderStatus string

const (
	OrderPlaced OrderStatus = "placed"
	OrderFailed OrderStatus = "failed"
)

// Order records one Phase 3 action.
type Order struct {
	Invitee  string        `json:"invitee"`
	Item     string        `json:"item"`
	Platform string        `json:"platform"`
	Title    string        `json:"title"`
	Price    pricing.Price `json:"price"`
	Status   OrderStatus   `json:"status"`
	Raw      string        `json:"raw,omitempty"`
	Err      string        `json:"error,omitempty"`
}

// Outcome is the full record of one coordination run.
type Outcome struct {
	Invitees       []*Invitee `json:"invitees"`
	InviteFailures []string   `json:"invite_failures,omitempty"`
	Cycles         int        `json:"cycles"`
	Unresolved     []string   `json:"unresolved,omitempty"`
	Orders         []Order    `json:"orders,omitempty"`
}

func newOutcome(names []string) *Outcome {
	out := &Outcome{Invitees: make([]*Invitee, 0, len(names))}
	for _, name := range names {
		out.Invitees = append(out.Invitees, newInvitee(name))
	}
	return out
}

// Invitee returns the named invitee, or nil.
func (o *Outcome) Invitee(name string) *Invitee {
	for _, inv := range o.Invitees {
		if inv.Name == name {
			return inv
		}
	}
	return nil
}

func (o *Outcome) pending() []*Invitee {
	var out []*Invitee
	for _, inv := range o.Invitees {
		if inv.Status == StatusInvited {
			out = append(out, inv)
		}
	}
	return out
}

// Researched counts invitees that reached the terminal state.
func (o *Outcome) Researched() int {
	n := 0
	for _, inv := range o.Invitees {
		if inv.Status == StatusResearched {
			n++
		}
	}
	return n
}

// Result renders the outcome as a loosely typed job result.
func (o *Outcome) Result() map[string]any {
	invitees := make([]map[string]any, 0, len(o.Invitees))
	for _, inv := range o.Invitees {
		results := make([]map[string]any, 0, len(inv.Results))
		for _, r := range inv.Results {
			results = append(results, map[string]any{
				"item":     r.Item,
				"platform": r.Platform,
				"price":    r.Price.Number(),
				"title":    r.Title,
				"vendor":   r.Vendor,
			})
		}
		entry := map[string]any{
			"name":    inv.Name,
			"status":  string(inv.Status),
			"results": results,
		}
		if inv.LastError != "" {
			entry["last_error"] = inv.LastError
		}
		invitees = append(invitees, entry)
	}
	orders := make([]map[string]any, 0, len(o.Orders))
	placed := 0
	for _, ord := range o.Orders {
		if ord.Status == OrderPlaced {
			placed++
		}
		entry := map[string]any{
			"invitee":  ord.Invitee,
			"item":     ord.Item,
			"platform": ord.Platform,
			"title":    ord.Title,
			"price":    ord.Price.Number(),
			"status":   string(ord.Status),
		}
		if ord.Err != "" {
			entry["error"] = ord.Err
		}
		orders = append(orders, entry)
	}
	return map[string]any{
		"invitees":        invitees,
		"invite_failures": append([]string{}, o.InviteFailures...),
		"cycles":          o.Cycles,
		"unresolved":      append([]string{}, o.Unresolved...),
		"orders":          orders,
		"orders_placed":   placed,
	}
}
