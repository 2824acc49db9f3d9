// Package views renders the HTML pages. Each page is a templ.Component backed
// by an embedded html/template file that defines a "content" block inside the
// shared layout.
package views

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/casecoach/internal/i18n"
	"github.com/pavelanni/casecoach/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"duration": formatDuration,
	"join":     strings.Join,
	"stars":    func() []int { return []int{1, 2, 3, 4, 5} },
	"date":     func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
	"pct":      func(f float64) string { return fmt.Sprintf("%.0f", f) },
	"deref":    func(p *int) int { return *p },
}

var pages = map[string]*template.Template{}

func init() {
	for _, name := range []string{
		"index", "interview", "result", "stats", "login",
		"admin_attempts", "admin_attempt", "admin_cases", "admin_users",
	} {
		pages[name] = template.Must(template.New(name).Funcs(funcs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
}

// Page is the value every template executes against.
type Page struct {
	ctx   context.Context
	Title string
	Data  any
}

// T translates a message ID for the request language.
func (p Page) T(id string) string { return appI18n.T(p.ctx, id) }

// Td translates a message ID with key/value template data.
func (p Page) Td(id string, kv ...any) string {
	data := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			data[k] = kv[i+1]
		}
	}
	return appI18n.Td(p.ctx, id, data)
}

// Tp translates a pluralized message ID.
func (p Page) Tp(id string, n int) string { return appI18n.Tp(p.ctx, id, n) }

// Path prefixes an absolute application path with the base path.
func (p Page) Path(s string) string { return model.BasePathFromContext(p.ctx) + s }

// CSRF returns the token for form posts.
func (p Page) CSRF() string { return model.CSRFTokenFromContext(p.ctx) }

// User returns the signed-in admin user, or nil.
func (p Page) User() *model.User { return model.UserFromContext(p.ctx) }

// Lang returns the request language code.
func (p Page) Lang() string { return appI18n.Lang(p.ctx) }

// Languages returns the available UI languages.
func (p Page) Languages() []string { return appI18n.Languages() }

func render(name, titleID string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t, ok := pages[name]
		if !ok {
			return fmt.Errorf("unknown page %q", name)
		}
		p := Page{ctx: ctx, Data: data}
		if titleID != "" {
			p.Title = appI18n.T(ctx, titleID)
		}
		return t.ExecuteTemplate(w, "layout", p)
	})
}

func formatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
