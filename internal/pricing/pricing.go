// Package pricing evaluates heterogeneous price representations into a
// comparable decimal, or Unavailable when no valid price exists.
package pricing

import (
	"encoding/json"
	"math"
	"math/big"
	"reflect"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// Price is either a finite non-negative amount or Unavailable.
type Price struct {
	amount decimal.Decimal
	ok     bool
}

var (
	// Unavailable marks a quote without a usable price.
	Unavailable = Price{}
	// Zero is the available price 0, the identity for Add.
	Zero = Price{amount: decimal.Zero, ok: true}
)

var numberPattern = regexp.MustCompile(`\d+(\.\d+)?`)

// Of wraps a decimal. Negative amounts are Unavailable.
func Of(d decimal.Decimal) Price {
	if d.IsNegative() {
		return Unavailable
	}
	return Price{amount: d, ok: true}
}

// MustParse is for tests and literals.
func MustParse(s string) Price {
	return Of(decimal.RequireFromString(s))
}

// Evaluate converts v into a Price. It never panics.
func Evaluate(v any) Price {
	switch typed := v.(type) {
	case nil:
		return Unavailable
	case Price:
		return typed
	case string:
		return evaluateString(typed)
	case json.Number:
		return evaluateString(typed.String())
	case decimal.Decimal:
		return Of(typed)
	case *decimal.Decimal:
		if typed == nil {
			return Unavailable
		}
		return Of(*typed)
	case float32:
		return evaluateFloat(float64(typed))
	case float64:
		return evaluateFloat(typed)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Of(decimal.NewFromInt(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Of(decimal.NewFromBigInt(new(big.Int).SetUint64(u), 0))
		}
		return Of(decimal.NewFromInt(int64(u)))
	case reflect.String:
		return evaluateString(rv.String())
	}
	return Unavailable
}

func evaluateFloat(f float64) Price {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Unavailable
	}
	return Of(decimal.NewFromFloat(f))
}

// evaluateString takes the first unsigned number in s after NFKC folding
// and separator removal, so "₹1,234.50", "Rs. 99" and full-width digits all
// parse. A leading minus sign is ignored, matching how agents echo labels
// like "Price - 120".
func evaluateString(s string) Price {
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, ",", "")
	match := numberPattern.FindString(s)
	if match == "" {
		return Unavailable
	}
	d, err := decimal.NewFromString(match)
	if err != nil {
		return Unavailable
	}
	return Of(d)
}

// Available reports whether the price holds an amount.
func (p Price) Available() bool { return p.ok }

// Decimal returns the amount and whether it is available.
func (p Price) Decimal() (decimal.Decimal, bool) {
	return p.amount, p.ok
}

// Float returns the amount as float64 and whether it is available.
func (p Price) Float() (float64, bool) {
	if !p.ok {
		return 0, false
	}
	f, _ := p.amount.Float64()
	return f, true
}

// Number returns the amount as float64 for loosely typed payloads, or nil
// when unavailable.
func (p Price) Number() any {
	if f, ok := p.Float(); ok {
		return f
	}
	return nil
}

// Less orders available prices by amount, all before Unavailable.
func (p Price) Less(o Price) bool {
	switch {
	case !p.ok:
		return false
	case !o.ok:
		return true
	default:
		return p.amount.LessThan(o.amount)
	}
}

// Equal reports numeric equality; two Unavailable prices are equal.
func (p Price) Equal(o Price) bool {
	if p.ok != o.ok {
		return false
	}
	return !p.ok || p.amount.Equal(o.amount)
}

// Mul returns p × qty. Unavailable stays Unavailable.
func (p Price) Mul(qty int) Price {
	if !p.ok || qty < 0 {
		return Unavailable
	}
	return Price{amount: p.amount.Mul(decimal.NewFromInt(int64(qty))), ok: true}
}

// Add sums two prices; either side Unavailable yields Unavailable.
func (p Price) Add(o Price) Price {
	if !p.ok || !o.ok {
		return Unavailable
	}
	return Price{amount: p.amount.Add(o.amount), ok: true}
}

func (p Price) String() string {
	if !p.ok {
		return "unavailable"
	}
	return p.amount.StringFixed(2)
}

// MarshalJSON renders available prices as numbers and Unavailable as null.
func (p Price) MarshalJSON() ([]byte, error) {
	if !p.ok {
		return []byte("null"), nil
	}
	return []byte(p.amount.String()), nil
}

// UnmarshalJSON accepts anything Evaluate accepts.
func (p *Price) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*p = Evaluate(raw)
	return nil
}
