package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lti/internal/logging"
	"github.com/mind-engage/mindengage-lti/pkg/lti/launch"
)

// Pinger reports readiness of a backing store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Options struct {
	Log         *zap.Logger
	CORSOrigins []string

	Verifier launch.Verifier
	Login    LoginConfig
	Grade    GradeConfig
	JWKS     *JWKSHandler
	// Admin is mounted only when it has a store and a password hash.
	Admin AdminConfig
	DB    Pinger // optional
}

func NewRouter(o Options) http.Handler {
	log := o.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.RequestLogger(log), middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   o.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if o.DB != nil {
			if err := o.DB.PingContext(r.Context()); err != nil {
				log.Warn("readyz: db ping failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	if o.JWKS != nil {
		r.Method(http.MethodGet, "/.well-known/jwks.json", o.JWKS)
		r.Method(http.MethodHead, "/.well-known/jwks.json", o.JWKS)
	}

	r.Route("/lti", func(lr chi.Router) {
		lr.Get("/login", LoginHandler(o.Login, log))
		lr.Post("/login", LoginHandler(o.Login, log))
		lr.Post("/launch", LaunchFormHandler(o.Verifier, o.Login.Nonces, log))
	})

	r.Route("/api", func(ar chi.Router) {
		ar.Post("/lti/launch", LaunchHandler(o.Verifier, log))
		ar.Post("/lti/submit-grade", SubmitGradeHandler(o.Grade, log))
		ar.Post("/assessments/grade", GradeAssessmentHandler())
	})

	if o.Admin.Store != nil && o.Admin.PassHash != "" {
		r.Mount("/admin", AdminRoutes(o.Admin, log))
	}
	return r
}
