package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tryon/internal/http/handlers"
	"tryon/internal/middleware"
)

// Options carries what the middleware stack needs besides the handlers.
type Options struct {
	AllowedOrigins  []string
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(app.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Method(http.MethodGet, "/metrics", app.Metrics())

	if app.Store != nil {
		files := http.StripPrefix("/static/", http.FileServer(http.Dir(app.Store.BasePath())))
		r.Handle("/static/*", files)
	}

	// Separate buckets: spending the synthesis quota never blocks reset,
	// session creation or billing.
	createLimit := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)
	submitLimit := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)
	billingLimit := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Get("/catalog/garments", app.Garments)
		r.Get("/plans", app.Plans)

		r.With(createLimit).Post("/sessions", app.CreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(middleware.AuthSession(app.Config.JWTSecret, "id"))
			r.Get("/", app.GetSession)
			r.Delete("/", app.DeleteSession)
			r.Get("/events", app.SessionEvents)
			r.Get("/images/{kind}", app.SessionImage)
			r.Get("/archive", app.SessionArchive)

			r.Post("/try-another", app.TryAnother)
			r.Post("/reset", app.ResetSession)
			r.Group(func(r chi.Router) {
				r.Use(submitLimit)
				r.Post("/person", app.SubmitPerson)
				r.Post("/clothing", app.SubmitClothing)
			})
		})

		r.Route("/billing", func(r chi.Router) {
			r.Use(billingLimit)
			r.Post("/checkout", app.Checkout)
			r.Get("/payments/{provider}/{payment_id}", app.PaymentStatus)
		})
	})

	return r
}
