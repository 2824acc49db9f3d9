package i18n

import (
	"net/http"

	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// LangCookie remembers a language chosen with the ?lang= query parameter.
const LangCookie = "lang"

// Middleware negotiates the language of every request and injects its
// localizer. Preference order: ?lang= query, lang cookie, Accept-Language,
// then defaultLang. Init must have been called.
func Middleware(defaultLang string) func(http.Handler) http.Handler {
	locs := make(map[string]*i18n.Localizer)
	for _, l := range Languages() {
		locs[l] = NewLocalizer(l)
	}
	fallback := NewLocalizer(defaultLang)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cookieLang string
			if c, err := r.Cookie(LangCookie); err == nil {
				cookieLang = c.Value
			}
			query := r.URL.Query().Get("lang")
			lang := Negotiate(query, cookieLang, r.Header.Get("Accept-Language"))
			if query != "" && lang != cookieLang {
				http.SetCookie(w, &http.Cookie{
					Name:     LangCookie,
					Value:    lang,
					Path:     "/",
					MaxAge:   365 * 24 * 60 * 60,
					SameSite: http.SameSiteLaxMode,
				})
			}

			loc, ok := locs[lang]
			if !ok {
				loc = fallback
			}
			ctx := WithLang(WithLocalizer(r.Context(), loc), lang)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
