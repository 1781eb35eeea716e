package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-lti/internal/platform"
)

// KeySetInvalidator drops a cached platform key set.
type KeySetInvalidator interface {
	Invalidate(issuer string)
}

type AdminConfig struct {
	Store    platform.Store
	KeySets  KeySetInvalidator // optional
	User     string
	PassHash string // bcrypt
}

// AdminRoutes returns the platform registration API. Mount it under /admin.
func AdminRoutes(cfg AdminConfig, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(basicAuth(cfg.User, cfg.PassHash))
	r.Get("/platforms", listPlatforms(cfg))
	r.Post("/platforms", upsertPlatform(cfg, log))
	r.Delete("/platforms", deletePlatform(cfg, log))
	return r
}

func basicAuth(user, passHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || passHash == "" ||
				subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
				bcrypt.CompareHashAndPassword([]byte(passHash), []byte(p)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
				respondErr(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GET /admin/platforms
func listPlatforms(cfg AdminConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ps, err := cfg.Store.List(r.Context())
		if err != nil {
			respondErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, ps)
	}
}

// POST /admin/platforms  (create or replace by issuer)
func upsertPlatform(cfg AdminConfig, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p platform.Platform
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			respondErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		p.Issuer = strings.TrimSpace(p.Issuer)
		p.ClientID = strings.TrimSpace(p.ClientID)
		if err := p.Validate(); err != nil {
			respondErr(w, http.StatusBadRequest, err.Error())
			return
		}

		prev, prevErr := cfg.Store.Get(r.Context(), p.Issuer)
		saved, err := cfg.Store.Upsert(r.Context(), p)
		if err != nil {
			if errors.Is(err, platform.ErrReadOnly) {
				respondErr(w, http.StatusConflict, err.Error())
				return
			}
			respondErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		if cfg.KeySets != nil && (prevErr != nil || prev.JWKSURL != saved.JWKSURL) {
			cfg.KeySets.Invalidate(saved.Issuer)
		}
		log.Info("platform registered", zap.String("issuer", saved.Issuer), zap.String("client_id", saved.ClientID))
		respondJSON(w, http.StatusOK, saved)
	}
}

// DELETE /admin/platforms?issuer=...
func deletePlatform(cfg AdminConfig, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		iss := strings.TrimSpace(r.URL.Query().Get("issuer"))
		if iss == "" {
			respondErr(w, http.StatusBadRequest, "issuer is required")
			return
		}
		if err := cfg.Store.Delete(r.Context(), iss); err != nil {
			switch {
			case errors.Is(err, platform.ErrNotFound):
				respondErr(w, http.StatusNotFound, "platform not found")
			case errors.Is(err, platform.ErrReadOnly):
				respondErr(w, http.StatusConflict, err.Error())
			default:
				respondErr(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
		if cfg.KeySets != nil {
			cfg.KeySets.Invalidate(iss)
		}
		log.Info("platform removed", zap.String("issuer", iss))
		w.WriteHeader(http.StatusNoContent)
	}
}
