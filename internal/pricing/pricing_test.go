package pricing

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"rupee with separators", "₹1,234.50", "1234.50"},
		{"rs prefix", "Rs. 99", "99.00"},
		{"rs suffix", "450 Rs", "450.00"},
		{"first number wins", "Total 120 (was 150)", "120.00"},
		{"full width digits", "１２３", "123.00"},
		{"int", 42, "42.00"},
		{"uint8", uint8(7), "7.00"},
		{"float", 12.5, "12.50"},
		{"json number", json.Number("88.8"), "88.80"},
		{"decimal", decimal.RequireFromString("10.10"), "10.10"},
		{"empty", "", "unavailable"},
		{"nil", nil, "unavailable"},
		{"no digits", "Not available", "unavailable"},
		{"negative int", -3, "unavailable"},
		{"nan", math.NaN(), "unavailable"},
		{"inf", math.Inf(1), "unavailable"},
		{"bool", true, "unavailable"},
		{"slice", []string{"1"}, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.in).String(); got != tt.want {
				t.Fatalf("Evaluate(%v) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestEvaluateNeverNegative(t *testing.T) {
	inputs := []any{"-5", "minus 3", -1.5, int64(-9), "₹-0.01", json.Number("-2")}
	for _, in := range inputs {
		p := Evaluate(in)
		if d, ok := p.Decimal(); ok && d.IsNegative() {
			t.Fatalf("Evaluate(%v) produced negative %s", in, d)
		}
	}
}

func TestLessOrdersUnavailableLast(t *testing.T) {
	cheap := MustParse("10")
	dear := MustParse("20")
	if !cheap.Less(dear) || dear.Less(cheap) {
		t.Fatalf("expected 10 < 20")
	}
	if !dear.Less(Unavailable) {
		t.Fatalf("available price must sort before unavailable")
	}
	if Unavailable.Less(cheap) || Unavailable.Less(Unavailable) {
		t.Fatalf("unavailable must never sort first")
	}
}

func TestArithmetic(t *testing.T) {
	line := MustParse("12.25").Mul(3)
	if line.String() != "36.75" {
		t.Fatalf("unexpected line total %s", line)
	}
	if line.Add(Unavailable).Available() {
		t.Fatalf("adding unavailable must stay unavailable")
	}
	if Unavailable.Mul(2).Available() {
		t.Fatalf("multiplying unavailable must stay unavailable")
	}
	if _, ok := Unavailable.Float(); ok {
		t.Fatalf("unavailable must not expose a number")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(map[string]Price{"a": MustParse("1.5"), "b": Unavailable})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"a":1.5,"b":null}` {
		t.Fatalf("unexpected json %s", data)
	}
	var back map[string]Price
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back["a"].Equal(MustParse("1.5")) || back["b"].Available() {
		t.Fatalf("unexpected round trip %+v", back)
	}
}
