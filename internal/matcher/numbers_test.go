package matcher

import (
	"slices"
	"testing"
)

func TestNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  []float64
	}{
		{"10 million tires", []float64{1e7}},
		{"10 millions of tires", []float64{1e7}},
		{"2 millions", []float64{2e6}},
		{"10 billions", []float64{1e10}},
		{"5 thousands cows", []float64{5000}},
		{"10 mln", []float64{1e7}},
		{"3 bln", []float64{3e9}},
		{"in 10 minutes", []float64{10}},
		{"10 thousandths", []float64{10}},
		{"10M", []float64{1e7}},
		{"€10m", []float64{1e7}},
		{"10,000,000", []float64{1e7}},
		{"10.000.000", []float64{1e7}},
		{"30m units", []float64{3e7}},
		{"€2 per tire", []float64{2}},
		{"0,80 per litre", []float64{0.8}},
		{"80 cents", []float64{0.8}},
		{"2,500 cows", []float64{2500}},
		{"1.5 billion", []float64{1.5e9}},
		{"10% share", []float64{10}},
		{"in 10 months", []float64{10}},
		{"1,234.5", []float64{1234.5}},
		{"q3 results", nil},
		{"no numbers here", nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Numbers(tt.input)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Numbers(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNumberSetContains(t *testing.T) {
	volume := NumberSet{Values: []float64{1e7}}
	tests := []struct {
		input string
		want  bool
	}{
		{"break-even is 10 million tires", true},
		{"we need 10 millions tires", true},
		{"roughly 10,000,000", true},
		{"100 million", false},
		{"1 million", false},
		{"10", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := volume.Contains(tt.input); got != tt.want {
				t.Errorf("Contains(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	if (NumberSet{}).Contains("10 million") {
		t.Error("empty set should not contain anything")
	}
	loose := NumberSet{Values: []float64{0.8}, Tolerance: 0.1}
	if !loose.Contains("about 0.75") {
		t.Error("expected 0.75 within 10% of 0.8")
	}
}
