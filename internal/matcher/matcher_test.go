package matcher

import (
	"testing"
)

func TestKeywordMatch(t *testing.T) {
	tests := []struct {
		phrase string
		input  string
		want   bool
	}{
		{"break-even", "We should compute the break-even volume", true},
		{"break-even", "what is the breakeven point?", true},
		{"break-even", "Break even analysis", true},
		{"profit*", "What is the company's profitability target?", true},
		{"profit", "Profits are down", true},
		{"profit", "non-profitable", false},
		{"30", "about 130 units", false},
		{"30", "roughly 30 units", true},
		{"€2", "contribution is €2 per tire", true},
		{"market share", "What MARKET   share do they hold?", true},
		{"timeline", "", false},
		{"margin", "margins look thin", true},
		{"don't", "I don’t think so", true},
	}

	for _, tt := range tests {
		t.Run(tt.phrase+"/"+tt.input, func(t *testing.T) {
			k, err := Compile(tt.phrase)
			if err != nil {
				t.Fatalf("Compile(%q): %v", tt.phrase, err)
			}
			if got := k.Match(tt.input); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCompileEmpty(t *testing.T) {
	if _, err := Compile("   "); err == nil {
		t.Error("expected error for empty phrase")
	}
}

func TestMatcherPriority(t *testing.T) {
	m := New(
		Category{Name: "profitability", Keywords: MustCompile("profit*", "target")},
		Category{Name: "timeline", Keywords: MustCompile("timeline", "when", "how long")},
		Category{Name: "market", Keywords: MustCompile("market*", "competitor*")},
	)

	tests := []struct {
		name  string
		input string
		want  Result
	}{
		{"single", "When do they need an answer?", Result{Matched: true, Category: "timeline"}},
		{"first wins", "what market profit target do they have", Result{Matched: true, Category: "profitability"}},
		{"second over third", "how long until the market matures", Result{Matched: true, Category: "timeline"}},
		{"no match", "tell me about the weather", Result{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Match(tt.input); got != tt.want {
				t.Errorf("Match(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}

	var empty *Matcher
	if got := empty.Match("profit"); got.Matched {
		t.Error("nil matcher should never match")
	}
}

func TestIsLowEffort(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		matched bool
		want    bool
	}{
		{"short", "ok", false, true},
		{"short matched", "profit?", true, false},
		{"filler long", "Sounds good!", false, true},
		{"whitespace", "    hi     ", false, true},
		{"real question", "What does the cost structure look like?", false, false},
		{"exactly ten", "abcdefghij", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLowEffort(tt.input, tt.matched); got != tt.want {
				t.Errorf("IsLowEffort(%q, %v) = %v, want %v", tt.input, tt.matched, got, tt.want)
			}
		})
	}
}

func TestKeywordOverridesLowEffort(t *testing.T) {
	m := New(Category{Name: "profitability", Keywords: MustCompile("profit*", "€2")})
	for _, input := range []string{"profit", "€2", "Profit?", "ok profit"} {
		res := m.Match(input)
		if !res.Matched {
			t.Fatalf("expected %q to match", input)
		}
		if IsLowEffort(input, res.Matched) {
			t.Errorf("IsLowEffort(%q) = true for matched input", input)
		}
	}
}

func TestHelpAndProceed(t *testing.T) {
	helps := []string{"Can I get a hint?", "I'm stuck", "help", "I don't know where to start", "walk me through it"}
	for _, in := range helps {
		if !IsHelpRequest(in) {
			t.Errorf("IsHelpRequest(%q) = false", in)
		}
	}
	if IsHelpRequest("What are the fixed costs?") {
		t.Error("plain question flagged as help request")
	}

	proceeds := []string{"I'm ready to proceed", "Let's move on", "I have enough information now", "proceed"}
	for _, in := range proceeds {
		if !IsProceed(in) {
			t.Errorf("IsProceed(%q) = false", in)
		}
	}
	if IsProceed("What are the proceeds from sales?") {
		t.Error("'proceeds' should not count as proceed")
	}
}
