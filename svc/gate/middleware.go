package gate

import (
	"context"
	"io"
	"net/http"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/creatorkit/handler"
	"github.com/dmitrymomot/creatorkit/pkg/jwt"
	"github.com/dmitrymomot/creatorkit/pkg/logger"
)

// Placeholder is shown while access is undecided or denied.
var Placeholder templ.Component = templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
	_, err := io.WriteString(w, `<div id="gate" aria-busy="true" class="gate-placeholder"><p>Loading your workspace…</p></div>`)
	return err
})

// Middleware renders protected pages only for Unlocked sessions. Every other
// response is marked no-store so a later decision is never served stale.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _ := jwt.SessionFromContext(r.Context())

		var resp handler.Response
		switch g.Check(r.Context(), session, r.URL.Path) {
		case Unlocked:
			next.ServeHTTP(w, r)
			return
		case Redirecting:
			resp = handler.Redirect(g.cfg.UpsellPath)
		default:
			resp = handler.TemplWithStatus(http.StatusOK, Placeholder, handler.WithTarget("#gate"))
		}

		w.Header().Set("Cache-Control", "no-store")
		if err := resp.Render(w, r); err != nil {
			g.logger.ErrorContext(r.Context(), "gate response failed", logger.Error(err))
		}
	})
}
