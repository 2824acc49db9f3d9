package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init(en): %v", err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AppTitle"); got != "Case Coach" {
		t.Errorf("T(AppTitle) = %q, want 'Case Coach'", got)
	}
	if got := T(ctx, "GetHint"); got != "Get a hint" {
		t.Errorf("T(GetHint) = %q, want 'Get a hint'", got)
	}
}

func TestTranslateGerman(t *testing.T) {
	ctx := initLang(t, "de")

	if got := T(ctx, "GetHint"); got != "Hinweis anfordern" {
		t.Errorf("T(GetHint) = %q, want 'Hinweis anfordern'", got)
	}
	if got := T(ctx, "Strengths"); got != "Stärken" {
		t.Errorf("T(Strengths) = %q, want 'Stärken'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	tests := []struct {
		count int
		want  string
	}{
		{0, "0 hints used"},
		{1, "1 hint used"},
		{3, "3 hints used"},
	}
	for _, tt := range tests {
		if got := Tp(ctx, "HintsUsedCount", tt.count); got != tt.want {
			t.Errorf("Tp(HintsUsedCount, %d) = %q, want %q", tt.count, got, tt.want)
		}
	}

	de := initLang(t, "de")
	if got := Tp(de, "HintsUsedCount", 1); got != "1 Hinweis genutzt" {
		t.Errorf("de Tp(HintsUsedCount, 1) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "RatedAs", map[string]any{"Rating": 4})
	if got != "You rated this case 4 of 5." {
		t.Errorf("Td(RatedAs, Rating=4) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestInitInvalidLanguage(t *testing.T) {
	if err := Init("not a language"); err == nil {
		t.Error("Init with a malformed tag should fail")
	}
}

func TestLanguages(t *testing.T) {
	initLang(t, "en")

	got := Languages()
	if len(got) == 0 || got[0] != "en" {
		t.Fatalf("Languages() = %v, want default en first", got)
	}
	if !slices.Contains(got, "de") {
		t.Errorf("Languages() = %v, want de loaded", got)
	}
}

func TestNegotiate(t *testing.T) {
	initLang(t, "en")

	tests := []struct {
		name  string
		prefs []string
		want  string
	}{
		{"none", nil, "en"},
		{"exact", []string{"de"}, "de"},
		{"regional", []string{"de-AT"}, "de"},
		{"accept header", []string{"", "", "de-DE,de;q=0.9,en;q=0.8"}, "de"},
		{"first wins", []string{"en", "de"}, "en"},
		{"unsupported falls through", []string{"fr", "de"}, "de"},
		{"unsupported only", []string{"fr"}, "en"},
		{"garbage", []string{";;;"}, "en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Negotiate(tt.prefs...); got != tt.want {
				t.Errorf("Negotiate(%q) = %q, want %q", tt.prefs, got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	initLang(t, "en")

	var gotLang, gotTitle string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang = Lang(r.Context())
		gotTitle = T(r.Context(), "Strengths")
	}))

	tests := []struct {
		name       string
		target     string
		cookie     string
		accept     string
		wantLang   string
		wantTitle  string
		wantCookie bool
	}{
		{"default", "/", "", "", "en", "Strengths", false},
		{"accept language", "/", "", "de-DE", "de", "Stärken", false},
		{"cookie beats header", "/", "en", "de", "en", "Strengths", false},
		{"query sets cookie", "/?lang=de", "", "", "de", "Stärken", true},
		{"query equal to cookie", "/?lang=de", "de", "", "de", "Stärken", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: LangCookie, Value: tt.cookie})
			}
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if gotLang != tt.wantLang {
				t.Errorf("lang = %q, want %q", gotLang, tt.wantLang)
			}
			if gotTitle != tt.wantTitle {
				t.Errorf("T(Strengths) = %q, want %q", gotTitle, tt.wantTitle)
			}
			setCookie := false
			for _, c := range rec.Result().Cookies() {
				if c.Name == LangCookie {
					setCookie = true
				}
			}
			if setCookie != tt.wantCookie {
				t.Errorf("lang cookie set = %v, want %v", setCookie, tt.wantCookie)
			}
		})
	}
}
