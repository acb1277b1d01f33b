package quantity

import (
	"math"
	"testing"
)

func TestParseKilograms(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   float64
		wantOK bool
	}{
		{name: "kilograms", input: "1kg", want: 1.0, wantOK: true},
		{name: "grams", input: "250g", want: 0.25, wantOK: true},
		{name: "millilitres", input: "500ml", want: 0.5, wantOK: true},
		{name: "litres", input: "2l", want: 2.0, wantOK: true},
		{name: "multipack grams", input: "12 x 100g", want: 1.2, wantOK: true},
		{name: "multipack kilograms", input: "2 x 1.5kg", want: 3.0, wantOK: true},
		{name: "multipack large unitless total", input: "4 x 250", want: 1000, wantOK: true},
		{name: "mixed case and padding", input: "  0.5KG ", want: 0.5, wantOK: true},
		{name: "decimal grams", input: "77.5g", want: 0.0775, wantOK: true},
		{name: "not a weight", input: "not a weight", wantOK: false},
		{name: "empty", input: "", wantOK: false},
		{name: "trailing junk", input: "77g .", wantOK: false},
		{name: "ounces", input: "16oz", wantOK: false},
		{name: "malformed multipack", input: "x 100g", wantOK: false},
		{name: "bare number", input: "42", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseKilograms(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseKilograms(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ParseKilograms(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestKilogramsCell(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   float64
		wantOK bool
	}{
		{name: "float passthrough", value: 1.25, want: 1.25, wantOK: true},
		{name: "int passthrough", value: int64(3), want: 3, wantOK: true},
		{name: "string", value: "250g", want: 0.25, wantOK: true},
		{name: "nil", value: nil, wantOK: false},
		{name: "bool", value: true, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Kilograms(tt.value)
			if ok != tt.wantOK {
				t.Fatalf("Kilograms(%v) ok = %v, want %v", tt.value, ok, tt.wantOK)
			}
			if ok && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Kilograms(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
