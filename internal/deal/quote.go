package deal

import (
	"errors"
	"fmt"
	"strings"

	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/normalize"
	"DealPilot/internal/pricing"
)

// QuoteStatus reports whether a platform probe produced a usable record.
type QuoteStatus string

const (
	QuoteSuccess QuoteStatus = "success"
	QuoteFailed  QuoteStatus = "failed"
)

// UnknownVendor is used when the agent did not name a seller.
const UnknownVendor = "Unknown"

// ErrPriceUnavailable means no candidate carried a valid price.
var ErrPriceUnavailable = xerrors.New(xerrors.CodePriceUnavailable, "no valid price found")

// Quote is one platform's offer for a requested item. It is a value type;
// Fields is cloned on construction and must not be mutated afterwards.
type Quote struct {
	Platform string         `json:"platform"`
	Item     string         `json:"item,omitempty"`
	Raw      string         `json:"raw,omitempty"`
	Title    string         `json:"title,omitempty"`
	RawPrice string         `json:"raw_price,omitempty"`
	Price    pricing.Price  `json:"price"`
	Rating   string         `json:"rating,omitempty"`
	Vendor   string         `json:"vendor,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
	Status   QuoteStatus    `json:"status"`
	Err      string         `json:"error,omitempty"`
}

var (
	titleKeys  = []string{"title", "name", "item_name", "product_name", "ride_type", "airline"}
	vendorKeys = []string{"restaurant", "vendor", "store", "seller", "pharmacy", "provider", "hotel"}
	priceKeys  = []string{"price", "total_price", "estimated_price", "price_per_night", "fare"}
)

// QuoteFromOutput normalises raw agent output for item on platform.
// Unparseable output or an explicit failure status yields a failed quote.
func QuoteFromOutput(platform, item, raw string) Quote {
	res := normalize.Normalize(raw)
	if !res.OK() {
		return Quote{
			Platform: platform,
			Item:     item,
			Raw:      raw,
			Price:    pricing.Unavailable,
			Status:   QuoteFailed,
			Err:      res.Failure.Err().Error(),
		}
	}
	return QuoteFromRecord(platform, item, raw, res.Record)
}

// QuoteFromRecord builds a quote from an already parsed record.
func QuoteFromRecord(platform, item, raw string, rec normalize.Record) Quote {
	data := rec
	if nested := rec.Map("data"); nested != nil {
		data = nested
	}
	q := Quote{
		Platform: platform,
		Item:     item,
		Raw:      raw,
		Title:    firstString(data, titleKeys),
		Rating:   data.String("rating"),
		Vendor:   firstString(data, vendorKeys),
		Fields:   cloneFields(data),
		Status:   QuoteSuccess,
	}
	for _, key := range priceKeys {
		if v, ok := data.Value(key); ok {
			q.RawPrice = data.String(key)
			q.Price = pricing.Evaluate(v)
			break
		}
	}
	if q.Title == "" {
		q.Title = item
	}
	if q.Vendor == "" {
		q.Vendor = UnknownVendor
	}
	switch rec.Status() {
	case "failed", "failure", "error", "not_found", "unavailable":
		q.Status = QuoteFailed
		q.Err = firstString(rec, []string{"error", "reason", "message"})
	}
	return q
}

// ConfirmOrder judges the output of an order or booking action. The order
// counts as placed only when the output parses, carries no failure status
// and its status is "success" or absent. The quote is returned either way.
func ConfirmOrder(platform, item, raw string) (Quote, error) {
	res := normalize.Normalize(raw)
	if !res.OK() {
		q := FailedQuote(platform, item, res.Failure.Err())
		q.Raw = raw
		return q, fmt.Errorf("unreadable order confirmation: %w", res.Failure.Err())
	}
	q := QuoteFromRecord(platform, item, raw, res.Record)
	status := res.Record.Status()
	if q.Status == QuoteSuccess && (status == "" || status == "success") {
		return q, nil
	}
	q.Status = QuoteFailed
	reason := q.Err
	if reason == "" {
		reason = fmt.Sprintf("order status %q", status)
		q.Err = reason
	}
	return q, errors.New(reason)
}

// FailedQuote records a probe that never produced output.
func FailedQuote(platform, item string, err error) Quote {
	q := Quote{Platform: platform, Item: item, Price: pricing.Unavailable, Status: QuoteFailed}
	if err != nil {
		q.Err = err.Error()
	}
	return q
}

// Usable reports whether the quote can take part in selection.
func (q Quote) Usable() bool {
	return q.Status == QuoteSuccess && q.Price.Available()
}

func firstString(rec normalize.Record, keys []string) string {
	for _, key := range keys {
		if s := strings.TrimSpace(rec.String(key)); s != "" {
			return s
		}
	}
	return ""
}

func cloneFields(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
