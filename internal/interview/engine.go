// Package interview runs scripted case interviews.
//
// A Script declares the phases of one case; the Engine interprets it against
// a State, one input event at a time. Each phase evaluates input in a fixed
// order: help request, keyword or answer match, proceed phrase, low-effort
// nudge, free-form acceptance (feedback phase), generic nudge. Phases only
// move forward and every flag only moves from unset to set.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/casecoach/internal/matcher"
	"github.com/pavelanni/casecoach/internal/model"
)

const (
	// WalkthroughLevel is the hint level at which the escalator reveals the full solution.
	WalkthroughLevel = 2
	// MaxHintLevel caps the per-topic hint counter.
	MaxHintLevel = 3
)

var (
	// ErrUnknownCase is returned when a case id has no script.
	ErrUnknownCase = errors.New("unknown case")
	// ErrReplyPending is returned when input arrives while the interviewer is still typing.
	ErrReplyPending = errors.New("interviewer reply pending")
)

const (
	defaultLowEffortNudge = "Could you say a bit more? Try asking a specific question about the client or the numbers."
	defaultGenericNudge   = "Interesting. How does that help you answer the client's question?"
)

// ScriptSource looks up compiled scripts by case id.
type ScriptSource interface {
	Get(id string) (*Script, bool)
}

// Reporter receives the result of every finished interview.
type Reporter interface {
	ReportCompletion(ctx context.Context, c Completion) error
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ctx context.Context, c Completion) error

// ReportCompletion calls f.
func (f ReporterFunc) ReportCompletion(ctx context.Context, c Completion) error {
	return f(ctx, c)
}

// Engine interprets scripts. It holds no per-session state and is safe for concurrent use
// as long as each State is used by one goroutine at a time.
type Engine struct {
	scripts  ScriptSource
	reporter Reporter
	now      func() time.Time
	newID    func() string
	typing   *TypingDelay
}

// Option configures an Engine.
type Option func(*Engine)

// WithReporter sets the completion callback.
func WithReporter(r Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the message id generator.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithTypingDelay overrides the typing delay declared by scripts.
func WithTypingDelay(d TypingDelay) Option {
	return func(e *Engine) { e.typing = &d }
}

// NewEngine creates an Engine reading scripts from src.
func NewEngine(src ScriptSource, opts ...Option) *Engine {
	e := &Engine{
		scripts: src,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Script returns the script of a state's case.
func (e *Engine) Script(caseID string) (*Script, error) {
	sc, ok := e.scripts.Get(caseID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCase, caseID)
	}
	if !sc.compiled {
		return nil, fmt.Errorf("%w: %s is not compiled", ErrInvalidScript, caseID)
	}
	return sc, nil
}

// Start opens a new interview for a case.
func (e *Engine) Start(caseID, sessionID string) (*State, error) {
	sc, err := e.Script(caseID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	st := &State{
		SessionID:    sessionID,
		CaseID:       caseID,
		Phase:        sc.FirstPhase(),
		Visited:      []Phase{sc.FirstPhase()},
		RevealedInfo: map[string]bool{},
		HintLevels:   map[string]int{},
		Milestones:   map[string]bool{},
		StartedAt:    now,
	}
	t := e.newTurn(st)
	if sc.Prompt != "" {
		t.say(model.RoleSystem, model.TagInfo, sc.Prompt)
	}
	if sc.Intro != "" {
		t.say(model.RoleInterviewer, model.TagNone, sc.Intro)
	}
	if first := sc.Phase(st.Phase); first != nil && first.Enter != "" {
		t.say(model.RoleInterviewer, model.TagNone, first.Enter)
	}
	slog.Debug("interview started", "session_id", sessionID, "case_id", caseID)
	return st, nil
}

// Submit processes one student message.
func (e *Engine) Submit(ctx context.Context, st *State, input string) (Turn, error) {
	sc, err := e.Script(st.CaseID)
	if err != nil {
		return Turn{}, err
	}
	if st.Complete() {
		return Turn{Phase: st.Phase, Ignored: true}, nil
	}
	if e.now().Before(st.PendingUntil) {
		return Turn{}, ErrReplyPending
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return Turn{Phase: st.Phase, Ignored: true}, nil
	}

	def := sc.Phase(st.Phase)
	if def == nil {
		return Turn{}, fmt.Errorf("%w: case %s has no phase %q", ErrInvalidScript, st.CaseID, st.Phase)
	}
	t := e.newTurn(st)
	t.say(model.RoleStudent, model.TagNone, input)

	res := sc.Match(st.Phase, input)
	switch {
	case matcher.IsHelpRequest(input):
		e.escalate(sc, def, t)
	case res.Matched:
		e.applyMatch(sc, def, res, input, t)
	case def.Proceed != nil && matcher.IsProceed(input):
		e.proceed(sc, def, t)
	case matcher.IsLowEffort(input, res.Matched):
		t.say(model.RoleInterviewer, model.TagWarning, e.pickNudge(st, sc.Nudges.LowEffort, nil, defaultLowEffortNudge))
	case def.AcceptAny:
		e.pass(sc, def, t)
	default:
		t.say(model.RoleInterviewer, model.TagNone, e.pickNudge(st, def.Nudges, sc.Nudges.Generic, defaultGenericNudge))
	}
	return e.finish(ctx, sc, t)
}

// Hint handles an explicit hint request. It is a no-op while a reply is
// pending or after the interview is complete.
func (e *Engine) Hint(ctx context.Context, st *State) (Turn, error) {
	sc, err := e.Script(st.CaseID)
	if err != nil {
		return Turn{}, err
	}
	if st.Complete() || e.now().Before(st.PendingUntil) {
		return Turn{Phase: st.Phase, Ignored: true}, nil
	}
	def := sc.Phase(st.Phase)
	if def == nil {
		return Turn{}, fmt.Errorf("%w: case %s has no phase %q", ErrInvalidScript, st.CaseID, st.Phase)
	}
	t := e.newTurn(st)
	e.escalate(sc, def, t)
	return e.finish(ctx, sc, t)
}

func (e *Engine) applyMatch(sc *Script, def *PhaseDef, res matcher.Result, input string, t *turn) {
	if r, ok := def.reveals[res.Category]; ok {
		t.st.RevealedInfo[r.Flag] = true
		t.say(model.RoleInterviewer, model.TagInfo, r.Message)
		if def.gateOpen(t.st.RevealedInfo) {
			e.pass(sc, def, t)
		}
		return
	}
	for i := range def.Answers {
		a := &def.Answers[i]
		if !a.matches(input) {
			continue
		}
		switch a.Kind {
		case AnswerFinal:
			t.say(model.RoleInterviewer, model.TagSuccess, a.Message)
			setMilestones(t.st, a.Milestones)
			e.pass(sc, def, t)
		case AnswerIntermediate:
			t.say(model.RoleInterviewer, model.TagInfo, a.Message)
			setMilestones(t.st, a.Milestones)
		default:
			t.say(model.RoleInterviewer, model.TagWarning, a.Message)
		}
		return
	}
}

func (e *Engine) proceed(sc *Script, def *PhaseDef, t *turn) {
	for _, r := range def.Reveals {
		t.st.RevealedInfo[r.Flag] = true
	}
	t.say(model.RoleInterviewer, model.TagInfo, def.Proceed.Message)
	e.pass(sc, def, t)
}

// escalate serves the next hint of the current phase's topic. From
// WalkthroughLevel on it reveals the worked solution and passes the phase.
func (e *Engine) escalate(sc *Script, def *PhaseDef, t *turn) {
	st := t.st
	level := st.HintLevels[def.Topic]
	if level < MaxHintLevel {
		st.HintLevels[def.Topic] = level + 1
	}
	st.HintsUsed++

	hr := &HintResult{Topic: def.Topic, Level: level}
	t.hint = hr
	if level < WalkthroughLevel && level < len(def.Hints) {
		hr.Text = def.Hints[level]
		t.say(model.RoleInterviewer, model.TagHint, hr.Text)
		return
	}
	if def.Walkthrough == "" {
		// Phases without a walkthrough (feedback) just restate their prompt.
		hr.Text = e.pickNudge(st, def.Nudges, sc.Nudges.Generic, defaultGenericNudge)
		t.say(model.RoleInterviewer, model.TagHint, hr.Text)
		return
	}
	hr.Walkthrough = true
	hr.Text = def.Walkthrough
	t.say(model.RoleInterviewer, model.TagHint, def.Walkthrough)
	for _, r := range def.Reveals {
		st.RevealedInfo[r.Flag] = true
	}
	for _, a := range def.Answers {
		if a.Kind != AnswerClose {
			setMilestones(st, a.Milestones)
		}
	}
	e.pass(sc, def, t)
}

// pass marks a phase as done and enters its successor.
func (e *Engine) pass(sc *Script, def *PhaseDef, t *turn) {
	setMilestones(t.st, def.Milestones)
	e.enter(sc, def.Next, t)
}

func (e *Engine) enter(sc *Script, next Phase, t *turn) {
	st := t.st
	st.Phase = next
	st.Visited = append(st.Visited, next)
	t.advanced = true
	slog.Debug("interview phase advanced", "session_id", st.SessionID, "phase", next)

	if next == PhaseComplete {
		e.complete(sc, t)
		return
	}
	def := sc.Phase(next)
	if def.Enter != "" {
		t.say(model.RoleInterviewer, model.TagNone, def.Enter)
	}
	// Reveals disclosed earlier (walkthrough, proceed) may already satisfy the gate.
	if def.gateOpen(st.RevealedInfo) {
		e.pass(sc, def, t)
	}
}

func (e *Engine) complete(sc *Script, t *turn) {
	st := t.st
	now := e.now()
	score := ComputeScore(sc.Scoring, st.Milestones, st.HintLevels)
	st.Score = &score
	st.CompletedAt = &now
	if sc.Closing != "" {
		t.say(model.RoleInterviewer, model.TagNone, sc.Closing)
	}
	t.say(model.RoleSystem, model.TagSuccess, fmt.Sprintf("Case complete. Score: %d/%d", score, MaxScore))
	t.completion = &Completion{
		SessionID:  st.SessionID,
		CaseID:     st.CaseID,
		Category:   sc.Category,
		Title:      sc.Title,
		Score:      score,
		Elapsed:    st.Elapsed(now),
		Answers:    st.Answers(),
		Milestones: st.AchievedMilestones(),
		HintsUsed:  st.HintsUsed,
		Messages:   st.Messages,
	}
}

func (e *Engine) finish(ctx context.Context, sc *Script, t *turn) (Turn, error) {
	st := t.st
	out := Turn{
		Phase:      st.Phase,
		Advanced:   t.advanced,
		Messages:   t.messages,
		Hint:       t.hint,
		Completion: t.completion,
	}
	now := e.now()
	out.ReadyAt = now
	if t.replied && !st.Complete() {
		st.PendingUntil = now.Add(e.typingDelay(sc))
		out.ReadyAt = st.PendingUntil
	}
	if t.completion != nil && e.reporter != nil {
		if err := e.reporter.ReportCompletion(ctx, *t.completion); err != nil {
			return out, fmt.Errorf("report completion: %w", err)
		}
	}
	return out, nil
}

func (e *Engine) typingDelay(sc *Script) time.Duration {
	d := sc.Typing
	if e.typing != nil {
		d = *e.typing
	}
	if d.Max > d.Min {
		return d.Min + rand.N(d.Max-d.Min)
	}
	return d.Min
}

// pickNudge rotates through the first non-empty list.
func (e *Engine) pickNudge(st *State, primary, fallback []string, def string) string {
	list := primary
	if len(list) == 0 {
		list = fallback
	}
	if len(list) == 0 {
		return def
	}
	msg := list[st.NudgeCount%len(list)]
	st.NudgeCount++
	return msg
}

func setMilestones(st *State, names []string) {
	for _, m := range names {
		st.Milestones[m] = true
	}
}

// turn accumulates the messages produced by one input event.
type turn struct {
	e          *Engine
	st         *State
	messages   []model.Message
	hint       *HintResult
	completion *Completion
	advanced   bool
	replied    bool
}

func (e *Engine) newTurn(st *State) *turn {
	return &turn{e: e, st: st}
}

func (t *turn) say(role model.Role, tag model.Tag, text string) {
	if text == "" {
		return
	}
	msg := model.Message{
		ID:        t.e.newID(),
		Role:      role,
		Text:      text,
		Tag:       tag,
		CreatedAt: t.e.now(),
	}
	t.st.Messages = append(t.st.Messages, msg)
	t.messages = append(t.messages, msg)
	if role == model.RoleInterviewer {
		t.replied = true
	}
}
