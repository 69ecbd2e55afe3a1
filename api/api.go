package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/rvalente/taskspace/secrets"
	"github.com/rvalente/taskspace/storage"
	"github.com/rvalente/taskspace/store"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	users    *store.UserStore
	spaces   *store.SpaceStore
	todos    *store.TodoStore
	sessions SessionStore
	codec    *secrets.Codec
	audit    *auditLogger

	// now is swapped in tests to drive pending-state expiry.
	now func() time.Time

	// decoyHash is verified against on unknown-email sign-ins so that
	// path costs the same as a wrong password.
	decoyHash string
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithSessionStore overrides the default in-memory session store.
func WithSessionStore(s SessionStore) Option {
	return func(a *API) {
		a.sessions = s
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *API) {
		a.now = now
	}
}

// New creates a new API instance.
func New(repo storage.Repository, codec *secrets.Codec, opts ...Option) *API {
	a := &API{
		users:  store.NewUserStore(repo),
		spaces: store.NewSpaceStore(repo),
		todos:  store.NewTodoStore(repo),
		codec:  codec,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.sessions == nil {
		a.sessions = NewMemorySessionStore()
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	if h, err := codec.HashPassword("taskspace-decoy-password"); err == nil {
		a.decoyHash = h
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(SecurityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	// The docs viewers load their assets from CDNs, which the API-wide
	// CSP would block.
	r.Group(func(r chi.Router) {
		r.Use(docsSecurityPolicy)

		r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
			SpecURL: "/api/v1/openapi.yaml",
			Path:    "api/v1/docs",
		}, nil))

		r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
			SpecURL: "/api/v1/openapi.yaml",
			Path:    "api/v1/redoc",
		}, nil))
	})

	r.Group(func(r chi.Router) {
		r.Use(a.SessionMiddleware)
		r.Use(a.CSRFMiddleware)

		r.Post("/auth/signup", a.Signup)
		r.Post("/auth/signin", a.Signin)
		r.Post("/auth/signin/totp", a.SigninTOTP)
		r.Post("/auth/signout", a.Signout)
		r.Get("/auth/state", a.AuthState)

		r.With(a.RequireAuth).Get("/auth/totp", a.TOTPStatus)
		r.With(a.RequireAuth).Post("/auth/totp/secret", a.GenerateTOTPSecret)
		r.With(a.RequireAuth).Post("/auth/totp/enable", a.EnableTOTP)
		r.With(a.RequireAuth).Post("/auth/totp/disable", a.DisableTOTP)

		r.Route("/spaces", func(r chi.Router) {
			r.Use(a.RequireAuth)
			r.Post("/", a.CreateSpace)
			r.Get("/", a.ListSpaces)

			r.Route("/{spaceID}", func(r chi.Router) {
				r.Get("/", a.GetSpace)
				r.Put("/", a.UpdateSpace)
				r.Delete("/", a.DeleteSpace)

				r.Post("/todos", a.CreateTodo)
				r.Get("/todos", a.ListTodos)
				r.Get("/todos/{todoID}", a.GetTodo)
				r.Put("/todos/{todoID}", a.UpdateTodo)
				r.Delete("/todos/{todoID}", a.DeleteTodo)
			})
		})
	})

	return r
}
