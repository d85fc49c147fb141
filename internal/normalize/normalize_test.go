package normalize

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	xerrors "DealPilot/internal/errors"
)

func TestNormalizeExtractionOrder(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Record
	}{
		{
			name: "json fence",
			raw:  "Here you go:\n```json\n{\"title\": \"Margherita\",\n \"price\": \"₹249\"}\n```\nthanks",
			want: Record{"title": "Margherita", "price": "₹249"},
		},
		{
			name: "fence wins over earlier object",
			raw:  "{\"draft\": true}\n```JSON\n{\"final\": true}\n```",
			want: Record{"final": true},
		},
		{
			name: "object inside prose",
			raw:  "I searched Zomato. Result: {\"status\": \"success\", \"note\": \"has } brace\"} done",
			want: Record{"status": "success", "note": "has } brace"},
		},
		{
			name: "nested object",
			raw:  `{"status":"success","data":{"price":120}}`,
			want: Record{"status": "success", "data": map[string]any{"price": json.Number("120")}},
		},
		{
			name: "python literal",
			raw:  "<request_accomplished success=\"true\">{'item': 'Pizza', 'available': True, 'rating': None, 'price': 99.5}</request_accomplished>",
			want: Record{"item": "Pizza", "available": true, "rating": nil, "price": json.Number("99.5")},
		},
		{
			name: "prose braces before the object",
			raw:  "Found {2} results. {\"title\":\"Pizza\",\"price\":\"₹99\"}",
			want: Record{"title": "Pizza", "price": "₹99"},
		},
		{
			name: "placeholder then python literal",
			raw:  "Searching {item} now... {'title': 'Dosa', 'price': 80}",
			want: Record{"title": "Dosa", "price": json.Number("80")},
		},
		{
			name: "single quoted brace",
			raw:  "{'note': 'use {curly}', 'ok': False}",
			want: Record{"note": "use {curly}", "ok": false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			if !got.OK() {
				t.Fatalf("unexpected failure: %+v", got.Failure)
			}
			if diff := cmp.Diff(tt.want, got.Record); diff != "" {
				t.Fatalf("record mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeFailureCarriesExtractedText(t *testing.T) {
	got := Normalize("prefix <result>order placed successfully</result> suffix")
	if got.OK() {
		t.Fatalf("expected failure, got %+v", got.Record)
	}
	if got.Failure.Text != "order placed successfully" {
		t.Fatalf("unexpected failure text %q", got.Failure.Text)
	}
	if !xerrors.HasCode(got.Failure.Err(), xerrors.CodeParseFailure) {
		t.Fatalf("expected PARSE_FAILURE code")
	}
}

func TestNormalizeRejectsNonLiteralMappings(t *testing.T) {
	for _, raw := range []string{"{2}", "{'Pizza'}", "{title: 'Pizza'}", "{'title': }"} {
		got := Normalize(raw)
		if got.OK() {
			t.Fatalf("Normalize(%q) should fail, got %v", raw, got.Record)
		}
		if got.Failure.Text != raw {
			t.Fatalf("unexpected failure text %q for %q", got.Failure.Text, raw)
		}
	}
}

func TestNormalizeTruncatedObject(t *testing.T) {
	got := Normalize(`  {"title": "Biryani", "price": `)
	if got.OK() {
		t.Fatalf("expected failure")
	}
	if !strings.HasPrefix(got.Failure.Text, `{"title"`) {
		t.Fatalf("unexpected failure text %q", got.Failure.Text)
	}
}

func TestNormalizeFailureTruncation(t *testing.T) {
	raw := strings.Repeat("₹", 500)
	got := Normalize(raw)
	if got.OK() {
		t.Fatalf("expected failure")
	}
	if n := len([]rune(got.Failure.Text)); n != MaxFailureText {
		t.Fatalf("expected %d runes, got %d", MaxFailureText, n)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n"} {
		if got := Normalize(raw); got.OK() {
			t.Fatalf("expected failure for %q", raw)
		}
	}
}

func TestRecordAccessors(t *testing.T) {
	rec := Normalize(`{"items": ["Pizza", " ", "Coke"], "item": "Burger", "price": 120, "empty": null}`).Record
	if diff := cmp.Diff([]string{"Pizza", "Coke"}, rec.Strings("items")); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Burger"}, rec.Strings("item")); diff != "" {
		t.Fatalf("item mismatch (-want +got):\n%s", diff)
	}
	if rec.String("price") != "120" {
		t.Fatalf("unexpected price %q", rec.String("price"))
	}
	if _, ok := rec.Value("empty"); ok {
		t.Fatalf("null value should read as absent")
	}
	if rec.String("missing") != "" || rec.Strings("missing") != nil {
		t.Fatalf("missing key should read as absent")
	}
	var nilRec Record
	if nilRec.String("x") != "" || nilRec.Map("x") != nil {
		t.Fatalf("nil record should be safe")
	}
}
