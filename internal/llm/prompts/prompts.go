package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/casecoach/internal/model"
)

// FS holds the built-in debrief templates.
//
//go:embed templates/*.txt
var FS embed.FS

const maxTranscriptRunes = 20000

var (
	transcriptTagRegex      = regexp.MustCompile(`(?i)</?\s*transcript\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// Variant represents a debrief prompt variant.
type Variant string

const (
	// VariantConcise asks for a short list of strengths and improvements.
	VariantConcise Variant = "concise"
	// VariantStandard is the default debrief variant.
	VariantStandard Variant = "standard"
	// VariantDetailed asks for a phase-by-phase review.
	VariantDetailed Variant = "detailed"
)

var validVariants = map[Variant]bool{
	VariantConcise:  true,
	VariantStandard: true,
	VariantDetailed: true,
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Variant]*template.Template
)

// IsValidVariant checks if a debrief variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[Variant(v)]
}

// DebriefData holds template data for debrief prompts.
type DebriefData struct {
	Title      string
	Category   string
	Summary    string
	Score      int
	HintsUsed  int
	Milestones []string
}

// Load parses the debrief templates from fsys.
// It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		templates = make(map[Variant]*template.Template)
		funcs := template.FuncMap{"join": strings.Join}

		for _, v := range []Variant{VariantConcise, VariantStandard, VariantDetailed} {
			file := "templates/debrief_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New(string(v)).Funcs(funcs).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			templates[v] = tmpl
		}
	})
	return loadErr
}

// BuildDebriefPrompt renders the system prompt for the given variant.
func BuildDebriefPrompt(variant Variant, data DebriefData) (string, error) {
	if templates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := templates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Transcript renders the conversation as tagged plain text for the model.
// System notices are left out.
func Transcript(messages []model.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		var who string
		switch m.Role {
		case model.RoleInterviewer:
			who = "Interviewer"
		case model.RoleStudent:
			who = "Candidate"
		default:
			continue
		}
		if m.Tag == model.TagHint {
			who += " (hint)"
		}
		sb.WriteString(who + ": " + sanitize(m.Text) + "\n\n")
	}
	body := strings.TrimSpace(sb.String())
	if body == "" {
		body = "[No conversation]"
	}
	if utf8.RuneCountInString(body) > maxTranscriptRunes {
		runes := []rune(body)
		body = string(runes[:maxTranscriptRunes]) + "\n\n[Transcript truncated due to length]"
	}
	return "<transcript>\n" + body + "\n</transcript>"
}

func sanitize(text string) string {
	text = transcriptTagRegex.ReplaceAllString(text, "")
	text = systemInstructionsRegex.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
