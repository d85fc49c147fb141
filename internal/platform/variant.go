package platform

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Variant selects the goal templates and reply schema for a family of apps.
type Variant string

const (
	VariantFood     Variant = "food"
	VariantCommerce Variant = "commerce"
	VariantPharmacy Variant = "pharmacy"
	VariantRide     Variant = "ride"
	VariantFlight   Variant = "flight"
	VariantStay     Variant = "stay"
)

// Query carries everything a goal template may refer to.
type Query struct {
	Item       string            `json:"item,omitempty"`
	Category   string            `json:"category,omitempty"`
	Quantity   int               `json:"quantity,omitempty"`
	URL        string            `json:"url,omitempty"`
	Pickup     string            `json:"pickup,omitempty"`
	Drop       string            `json:"drop,omitempty"`
	Preference string            `json:"preference,omitempty"`
	Keywords   string            `json:"keywords,omitempty"`
	Origin     string            `json:"origin,omitempty"`
	Date       string            `json:"date,omitempty"`
	CheckIn    string            `json:"check_in,omitempty"`
	CheckOut   string            `json:"check_out,omitempty"`
	Role       string            `json:"role,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Key is a stable cache key for a search.
func (q Query) Key() string {
	parts := []string{q.Item, q.Category, q.URL, q.Pickup, q.Drop, q.Preference, q.Origin, q.Date, q.CheckIn, q.CheckOut, q.Role}
	if q.Quantity > 0 {
		parts = append(parts, fmt.Sprint(q.Quantity))
	}
	return strings.ToLower(strings.Join(parts, "|"))
}

type goalData struct {
	App    string
	Query  Query
	Target string
}

// Templates holds the search and order goal templates for one variant.
type Templates struct {
	search *template.Template
	order  *template.Template
}

// ParseTemplates compiles a search/order template pair with sprig helpers.
func ParseTemplates(name, search, order string) (*Templates, error) {
	s, err := template.New(name + ".search").Option("missingkey=error").Funcs(sprig.TxtFuncMap()).Parse(search)
	if err != nil {
		return nil, fmt.Errorf("parse %s search template: %w", name, err)
	}
	o, err := template.New(name + ".order").Option("missingkey=error").Funcs(sprig.TxtFuncMap()).Parse(order)
	if err != nil {
		return nil, fmt.Errorf("parse %s order template: %w", name, err)
	}
	return &Templates{search: s, order: o}, nil
}

// SearchGoal renders the search goal.
func (t *Templates) SearchGoal(app string, q Query) (string, error) {
	return render(t.search, goalData{App: app, Query: q})
}

// OrderGoal renders the order goal for target.
func (t *Templates) OrderGoal(app string, q Query, target string) (string, error) {
	return render(t.order, goalData{App: app, Query: q, Target: target})
}

func render(tpl *template.Template, data goalData) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", tpl.Name(), err)
	}
	return strings.Join(strings.Fields(buf.String()), " "), nil
}

const replyRule = `Return a strict JSON object only.`

var builtin = map[Variant][2]string{
	VariantFood: {
		`Open the app '{{ .App }}'.
{{- if .Query.URL }} Navigate directly to '{{ .Query.URL }}' and read the product details page.
{{- else }} Search for '{{ .Query.Item }}'{{ with .Query.Category }} ({{ . }}){{ end }}. Scan the results and pick the CHEAPEST matching item.{{ end }}
Extract title, price, rating and restaurant.
` + replyRule + ` Keys: 'title', 'price', 'rating', 'restaurant'. If nothing matches, return {'status': 'failed'}.`,
		`Open the app '{{ .App }}'. Search for '{{ .Query.Item }}'.
{{ if .Target }}Find the item '{{ .Target }}'{{ else }}Select the first relevant item{{ end }} and add it to the cart.
Go to the cart, proceed to checkout, choose Cash on Delivery and place the order.
` + replyRule + ` Keys: 'status' (success/failed), 'order_id', 'final_price'.`,
	},
	VariantCommerce: {
		`Open the app '{{ .App }}'.
{{- if .Query.URL }} Navigate directly to '{{ .Query.URL }}'.
{{- else }} Search for '{{ .Query.Item }}' and pick the CHEAPEST relevant product.{{ end }}
Extract title, price, rating and seller.
` + replyRule + ` Keys: 'title', 'price', 'rating', 'seller'. If nothing matches, return {'status': 'failed'}.`,
		`Open the app '{{ .App }}'. Search for '{{ .Query.Item }}'.
Open '{{ default .Query.Item .Target }}', add {{ default 1 .Query.Quantity }} to the cart and place the order with Cash on Delivery.
` + replyRule + ` Keys: 'status' (success/failed), 'order_id', 'final_price'.`,
	},
	VariantPharmacy: {
		`Open the app '{{ .App }}'. Search for the medicine '{{ .Query.Item }}'.
{{- if eq (lower .Query.Role) "pharmacist" }} Prefer pack sizes suitable for restocking.{{ end }}
Pick the CHEAPEST in-stock listing for quantity {{ default 1 .Query.Quantity }}.
` + replyRule + ` Keys: 'title', 'price' (unit price), 'details' (pack size). If unavailable, return {'status': 'failed'}.`,
		`Open the app '{{ .App }}'. Search for '{{ .Query.Item }}', open '{{ default .Query.Item .Target }}',
set quantity {{ default 1 .Query.Quantity }}, add to cart and check out.
` + replyRule + ` Keys: 'status' (success/failed), 'order_id', 'final_price'.`,
	},
	VariantRide: {
		`Open the app '{{ .App }}'. Set pickup to '{{ .Query.Pickup }}' and destination to '{{ .Query.Drop }}'.
Look at the ride options{{ with .Query.Keywords }} and focus on {{ . }}{{ end }}. Do NOT book anything.
` + replyRule + ` Keys: 'ride_type', 'price', 'eta'. If no ride is offered, return {'status': 'failed'}.`,
		`Open the app '{{ .App }}'. Set pickup to '{{ .Query.Pickup }}' and destination to '{{ .Query.Drop }}'.
Select '{{ default .Query.Keywords .Target }}' and confirm the booking.
` + replyRule + ` Keys: 'status' (success/failed), 'driver_details', 'cab_details', 'price', 'eta'.`,
	},
	VariantFlight: {
		`Open the app '{{ .App }}'. Search one-way flights from '{{ .Query.Origin }}' to '{{ .Query.Item }}' on {{ .Query.Date }}.
Sort by price and read the cheapest flight.
` + replyRule + ` Keys: 'airline', 'flight_number', 'price', 'arrival_time'.`,
		`Open the app '{{ .App }}'. Book flight '{{ .Target }}' from '{{ .Query.Origin }}' to '{{ .Query.Item }}' on {{ .Query.Date }}.
` + replyRule + ` Keys: 'status' (success/failed), 'booking_id', 'price'.`,
	},
	VariantStay: {
		`Open the app '{{ .App }}'. Search stays in '{{ .Query.Item }}' from {{ .Query.CheckIn }} to {{ .Query.CheckOut }}.
Sort by price and read the cheapest well-rated option.
` + replyRule + ` Keys: 'name', 'address', 'price_per_night', 'rating'.`,
		`Open the app '{{ .App }}'. Book '{{ .Target }}' in '{{ .Query.Item }}' from {{ .Query.CheckIn }} to {{ .Query.CheckOut }}.
` + replyRule + ` Keys: 'status' (success/failed), 'booking_id', 'price'.`,
	},
}

// BuiltinTemplates returns the stock templates for v.
func BuiltinTemplates(v Variant) (*Templates, error) {
	pair, ok := builtin[v]
	if !ok {
		return nil, fmt.Errorf("unknown variant %q", v)
	}
	return ParseTemplates(string(v), pair[0], pair[1])
}

// RideKeywords maps a ride preference to the product names each app uses.
var RideKeywords = map[string]map[string]string{
	"uber": {"auto": "Uber Auto", "sedan": "Uber Premier", "cab": "Uber Go, Uber Moto"},
	"ola":  {"auto": "Ola Auto", "sedan": "Ola Prime Sedan", "cab": "Ola Mini, Ola Bike"},
}

// RideKeyword returns the ride product hint for app and preference.
func RideKeyword(app, preference string) string {
	pref := strings.ToLower(strings.TrimSpace(preference))
	if pref == "" {
		pref = "cab"
	}
	if byPref, ok := RideKeywords[strings.ToLower(app)]; ok {
		if kw, ok := byPref[pref]; ok {
			return kw
		}
	}
	return preference
}
