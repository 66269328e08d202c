// Package httpapi is the HTTP surface of authd: social login, token reissue
// and logout, routed with chi.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	auth "github.com/realchillguyclub/backend-sub000"
	"github.com/realchillguyclub/backend-sub000/middleware"
	"github.com/realchillguyclub/backend-sub000/oauth"
	"github.com/realchillguyclub/backend-sub000/session"
)

// Engine is the part of *auth.Engine the handlers call.
type Engine interface {
	BeginAuthorization(ctx context.Context, providerID string) (*auth.Authorization, error)
	HandleCallback(ctx context.Context, providerID string, params oauth.CallbackParams) auth.CallbackResult
	PollPendingLogin(ctx context.Context, state string, mobileType session.MobileType, clientID string) (*auth.LoginResult, bool, error)
	Reissue(ctx context.Context, refreshToken, clientID string) (*auth.TokenPair, error)
	Logout(ctx context.Context, userID string, mobileType session.MobileType) (int64, error)
	LogoutAll(ctx context.Context, userID string) (int64, error)
	UserIDFromBearerHeader(header string) (string, error)
}

// Options tunes the router.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
}

// NewRouter mounts every auth endpoint under /auth.
func NewRouter(engine Engine, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	// Outer to inner.
	r.Use(
		chimw.RequestID,
		chimw.Recoverer,
		requestLogger(log),
		middleware.ClientInfo,
	)
	if opts.Timeout > 0 {
		r.Use(chimw.Timeout(opts.Timeout))
	}

	h := &handlers{engine: engine, log: log}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/oauth/login/poll", h.pollLogin)
		r.Get("/oauth/{provider}/authorize", h.authorize)
		r.Get("/oauth/{provider}/callback", h.callback)
		r.Post("/token/reissue", h.reissue)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(engine))
			r.Post("/logout", h.logout)
			r.Post("/logout/all", h.logoutAll)
		})
	})
	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			log.LogAttrs(r.Context(), slog.LevelInfo, "http",
				slog.String("request_id", chimw.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("dur", time.Since(start)),
				slog.Int("bytes", ww.BytesWritten()),
			)
		})
	}
}
