package interview

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/pavelanni/casecoach/internal/matcher"
)

// Phase names one step of a scripted interview.
type Phase string

// PhaseComplete is the terminal phase shared by every script.
const PhaseComplete Phase = "complete"

// PhaseFeedback is the optional reflection sub-phase; it may only lead to PhaseComplete.
const PhaseFeedback Phase = "feedback"

// Gate decides when a phase with reveals opens.
type Gate string

const (
	// GateAny opens as soon as one reveal of the phase is disclosed.
	GateAny Gate = "any"
	// GateAll opens once every reveal of the phase is disclosed.
	GateAll Gate = "all"
)

// AnswerKind is the granularity of a literal-answer check.
type AnswerKind string

const (
	AnswerFinal        AnswerKind = "final"
	AnswerIntermediate AnswerKind = "intermediate"
	AnswerClose        AnswerKind = "close"
)

var answerRank = map[AnswerKind]int{AnswerFinal: 0, AnswerIntermediate: 1, AnswerClose: 2}

// Scoring models.
const (
	ScoringFlat  = "flat"
	ScoringTable = "table"
)

// Exhibit is a table of case data shown verbatim to the student.
type Exhibit struct {
	Title   string     `yaml:"title" json:"title"`
	Columns []string   `yaml:"columns" json:"columns"`
	Rows    [][]string `yaml:"rows" json:"rows"`
	Note    string     `yaml:"note" json:"note,omitempty"`
}

// Reveal is one clarifying fact the interviewer discloses on request.
type Reveal struct {
	Category string   `yaml:"category"`
	Flag     string   `yaml:"flag"`
	Keywords []string `yaml:"keywords"`
	Message  string   `yaml:"message"`
}

// Answer is an expected literal answer (or a known near miss).
type Answer struct {
	Kind       AnswerKind `yaml:"kind"`
	Keywords   []string   `yaml:"keywords"`
	Numbers    []float64  `yaml:"numbers"`
	Tolerance  float64    `yaml:"tolerance"`
	Message    string     `yaml:"message"`
	Milestones []string   `yaml:"milestones"`

	keywords []matcher.Keyword
}

func (a *Answer) matches(input string) bool {
	if matcher.AnyMatch(input, a.keywords) {
		return true
	}
	return matcher.NumberSet{Values: a.Numbers, Tolerance: a.Tolerance}.Contains(input)
}

// Proceed lets the student skip ahead from a phase with an explicit phrase.
type Proceed struct {
	Message string `yaml:"message"`
}

// PhaseDef declares the rules of one phase.
type PhaseDef struct {
	Name        Phase    `yaml:"name"`
	Topic       string   `yaml:"topic"`
	Enter       string   `yaml:"enter"`
	Gate        Gate     `yaml:"gate"`
	Reveals     []Reveal `yaml:"reveals"`
	Answers     []Answer `yaml:"answers"`
	Proceed     *Proceed `yaml:"proceed"`
	AcceptAny   bool     `yaml:"accept_any"`
	Milestones  []string `yaml:"milestones"`
	Next        Phase    `yaml:"next"`
	Hints       []string `yaml:"hints"`
	Walkthrough string   `yaml:"walkthrough"`
	Nudges      []string `yaml:"nudges"`

	matcher *matcher.Matcher
	reveals map[string]*Reveal
}

// gateOpen reports whether the reveals of the phase satisfy its gate.
func (p *PhaseDef) gateOpen(revealed map[string]bool) bool {
	if len(p.Reveals) == 0 {
		return false
	}
	n := 0
	for _, r := range p.Reveals {
		if revealed[r.Flag] {
			n++
		}
	}
	if p.Gate == GateAll {
		return n == len(p.Reveals)
	}
	return n > 0
}

// Nudges holds the fallback interviewer lines.
type Nudges struct {
	LowEffort []string `yaml:"low_effort"`
	Generic   []string `yaml:"generic"`
}

// MilestoneScore is one row of a scoring table.
type MilestoneScore struct {
	Name      string `yaml:"name"`
	Points    int    `yaml:"points"`
	Topic     string `yaml:"topic"`
	Penalties []int  `yaml:"penalties"`
}

// Scoring configures how milestones turn into a 0 to 100 score.
type Scoring struct {
	Model      string           `yaml:"model"`
	Points     int              `yaml:"points"`
	Milestones []MilestoneScore `yaml:"milestones"`
}

// TypingDelay is the cosmetic pause before an interviewer reply is visible.
type TypingDelay struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// Script is the declarative definition of one case interview.
type Script struct {
	ID         string      `yaml:"id"`
	Title      string      `yaml:"title"`
	Category   string      `yaml:"category"`
	Difficulty string      `yaml:"difficulty"`
	Summary    string      `yaml:"summary"`
	Prompt     string      `yaml:"prompt"`
	Exhibits   []Exhibit   `yaml:"exhibits"`
	Intro      string      `yaml:"intro"`
	Closing    string      `yaml:"closing"`
	Phases     []PhaseDef  `yaml:"phases"`
	Nudges     Nudges      `yaml:"nudges"`
	Scoring    Scoring     `yaml:"scoring"`
	Typing     TypingDelay `yaml:"typing"`

	phases   map[Phase]*PhaseDef
	compiled bool
}

// ErrInvalidScript is returned by Compile for malformed scripts.
var ErrInvalidScript = errors.New("invalid script")

// Compile validates the script and prepares its matchers. It must be called
// before the script is handed to an Engine.
func (s *Script) Compile() error {
	if err := s.validate(); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidScript, s.ID, err)
	}
	for i := range s.Phases {
		p := &s.Phases[i]
		p.reveals = make(map[string]*Reveal, len(p.Reveals))
		cats := make([]matcher.Category, 0, len(p.Reveals))
		for j := range p.Reveals {
			r := &p.Reveals[j]
			kws, err := compileAll(r.Keywords)
			if err != nil {
				return fmt.Errorf("%w %q: phase %s: %w", ErrInvalidScript, s.ID, p.Name, err)
			}
			p.reveals[r.Category] = r
			cats = append(cats, matcher.Category{Name: r.Category, Keywords: kws})
		}
		p.matcher = matcher.New(cats...)

		for j := range p.Answers {
			a := &p.Answers[j]
			kws, err := compileAll(a.Keywords)
			if err != nil {
				return fmt.Errorf("%w %q: phase %s: %w", ErrInvalidScript, s.ID, p.Name, err)
			}
			a.keywords = kws
		}
		slices.SortStableFunc(p.Answers, func(a, b Answer) int {
			return answerRank[a.Kind] - answerRank[b.Kind]
		})
	}
	s.compiled = true
	return nil
}

// Compiled reports whether Compile succeeded on the script.
func (s *Script) Compiled() bool {
	return s.compiled
}

func compileAll(phrases []string) ([]matcher.Keyword, error) {
	out := make([]matcher.Keyword, 0, len(phrases))
	for _, p := range phrases {
		k, err := matcher.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func (s *Script) validate() error {
	if s.ID == "" {
		return errors.New("missing id")
	}
	if s.Title == "" {
		return errors.New("missing title")
	}
	if len(s.Phases) == 0 {
		return errors.New("no phases")
	}

	s.phases = make(map[Phase]*PhaseDef, len(s.Phases))
	order := make(map[Phase]int, len(s.Phases))
	for i := range s.Phases {
		p := &s.Phases[i]
		if p.Name == "" || p.Name == PhaseComplete {
			return fmt.Errorf("phase %d: invalid name %q", i, p.Name)
		}
		if _, dup := s.phases[p.Name]; dup {
			return fmt.Errorf("duplicate phase %q", p.Name)
		}
		s.phases[p.Name] = p
		order[p.Name] = i
	}

	produced := map[string]bool{}
	topics := map[string]bool{}
	for i := range s.Phases {
		p := &s.Phases[i]
		if p.Topic == "" {
			return fmt.Errorf("phase %s: missing topic", p.Name)
		}
		topics[p.Topic] = true
		if p.Next != PhaseComplete {
			j, ok := order[p.Next]
			if !ok {
				return fmt.Errorf("phase %s: unknown next phase %q", p.Name, p.Next)
			}
			if j <= i {
				return fmt.Errorf("phase %s: next phase %q is not forward", p.Name, p.Next)
			}
		}
		if p.Name == PhaseFeedback && p.Next != PhaseComplete {
			return fmt.Errorf("phase %s must lead to %s", PhaseFeedback, PhaseComplete)
		}
		switch p.Gate {
		case "":
			p.Gate = GateAll
		case GateAny, GateAll:
		default:
			return fmt.Errorf("phase %s: unknown gate %q", p.Name, p.Gate)
		}
		for j := range p.Reveals {
			r := &p.Reveals[j]
			if r.Category == "" || len(r.Keywords) == 0 {
				return fmt.Errorf("phase %s: reveal %d needs a category and keywords", p.Name, j)
			}
			if r.Flag == "" {
				r.Flag = r.Category
			}
		}
		for j, a := range p.Answers {
			if _, ok := answerRank[a.Kind]; !ok {
				return fmt.Errorf("phase %s: answer %d has unknown kind %q", p.Name, j, a.Kind)
			}
			if len(a.Keywords) == 0 && len(a.Numbers) == 0 {
				return fmt.Errorf("phase %s: answer %d has nothing to match", p.Name, j)
			}
			if a.Kind != AnswerClose {
				for _, m := range a.Milestones {
					produced[m] = true
				}
			}
		}
		for _, m := range p.Milestones {
			produced[m] = true
		}
		if !p.AcceptAny {
			if len(p.Reveals) == 0 && len(p.Answers) == 0 {
				return fmt.Errorf("phase %s: no reveals, answers or accept_any", p.Name)
			}
			if len(p.Hints) != WalkthroughLevel || p.Walkthrough == "" {
				return fmt.Errorf("phase %s: needs %d hints and a walkthrough", p.Name, WalkthroughLevel)
			}
		}
	}

	switch s.Scoring.Model {
	case "":
		s.Scoring.Model = ScoringFlat
	case ScoringFlat, ScoringTable:
	default:
		return fmt.Errorf("unknown scoring model %q", s.Scoring.Model)
	}
	if s.Scoring.Model == ScoringFlat && s.Scoring.Points == 0 {
		s.Scoring.Points = 25
	}
	for _, m := range s.Scoring.Milestones {
		if !produced[m.Name] {
			return fmt.Errorf("scoring milestone %q is never set by any phase", m.Name)
		}
		if m.Topic != "" && !topics[m.Topic] {
			return fmt.Errorf("scoring milestone %q: unknown topic %q", m.Name, m.Topic)
		}
	}
	if s.Typing.Max < s.Typing.Min {
		s.Typing.Max = s.Typing.Min
	}
	return nil
}

// FirstPhase returns the phase every session starts in.
func (s *Script) FirstPhase() Phase {
	return s.Phases[0].Name
}

// Phase returns the definition of a phase, or nil for PhaseComplete and unknown names.
func (s *Script) Phase(name Phase) *PhaseDef {
	return s.phases[name]
}

// Match runs the keyword and literal-answer checks of a phase against input.
// Reveal categories are reported by name; answers as "answer:<kind>".
func (s *Script) Match(phase Phase, input string) matcher.Result {
	p := s.Phase(phase)
	if p == nil {
		return matcher.Result{}
	}
	if res := p.matcher.Match(input); res.Matched {
		return res
	}
	for i := range p.Answers {
		if p.Answers[i].matches(input) {
			return matcher.Result{Matched: true, Category: "answer:" + string(p.Answers[i].Kind)}
		}
	}
	return matcher.Result{}
}

// IsLowEffort applies the low-effort heuristic with keyword precedence for a phase.
func (s *Script) IsLowEffort(phase Phase, input string) bool {
	return matcher.IsLowEffort(input, s.Match(phase, input).Matched)
}

// Topics returns the distinct hint topics in declaration order.
func (s *Script) Topics() []string {
	var out []string
	for _, p := range s.Phases {
		if !slices.Contains(out, p.Topic) {
			out = append(out, p.Topic)
		}
	}
	return out
}
