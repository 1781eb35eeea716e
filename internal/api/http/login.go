package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lti/internal/nonce"
	"github.com/mind-engage/mindengage-lti/internal/platform"
)

// PlatformLookup finds a registered platform by issuer.
type PlatformLookup interface {
	Lookup(ctx context.Context, issuer string) (platform.Platform, error)
}

type LoginConfig struct {
	Platforms   PlatformLookup
	Nonces      *nonce.Store
	RedirectURI string
	StateTTL    time.Duration
}

// GET|POST /lti/login  (OIDC third-party initiated login)
//
// Stores a fresh nonce under a fresh state and redirects the browser to the
// platform's authorization endpoint.
func LoginHandler(cfg LoginConfig, log *zap.Logger) http.HandlerFunc {
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		iss := strings.TrimSpace(r.Form.Get("iss"))
		loginHint := r.Form.Get("login_hint")
		if iss == "" || loginHint == "" {
			http.Error(w, "iss and login_hint are required", http.StatusBadRequest)
			return
		}
		p, err := cfg.Platforms.Lookup(r.Context(), iss)
		if errors.Is(err, platform.ErrNotFound) {
			http.Error(w, "unknown issuer", http.StatusBadRequest)
			return
		}
		if err != nil {
			log.Error("login: platform lookup", zap.String("issuer", iss), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if p.AuthURL == "" {
			http.Error(w, "platform has no authorization endpoint", http.StatusBadRequest)
			return
		}
		if cid := r.Form.Get("client_id"); cid != "" && cid != p.ClientID {
			http.Error(w, "client_id mismatch", http.StatusBadRequest)
			return
		}

		state, nonceVal := uuid.NewString(), uuid.NewString()
		if err := cfg.Nonces.Put(state, nonceVal, ttl); err != nil {
			log.Error("login: store state", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		q := url.Values{}
		q.Set("scope", "openid")
		q.Set("response_type", "id_token")
		q.Set("response_mode", "form_post")
		q.Set("prompt", "none")
		q.Set("client_id", p.ClientID)
		q.Set("redirect_uri", cfg.RedirectURI)
		q.Set("login_hint", loginHint)
		q.Set("state", state)
		q.Set("nonce", nonceVal)
		if h := r.Form.Get("lti_message_hint"); h != "" {
			q.Set("lti_message_hint", h)
		}
		sep := "?"
		if strings.Contains(p.AuthURL, "?") {
			sep = "&"
		}
		http.Redirect(w, r, p.AuthURL+sep+q.Encode(), http.StatusFound)
	}
}
