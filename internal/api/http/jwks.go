package http

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// JWKSHandler serves the tool's public keys at /.well-known/jwks.json so
// platforms can verify client assertions.
type JWKSHandler struct {
	Keys jose.JSONWebKeySet
	// CacheMaxAge defaults to 10 minutes.
	CacheMaxAge time.Duration
}

func (h *JWKSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	set := h.Keys
	if set.Keys == nil {
		set.Keys = []jose.JSONWebKey{}
	}
	pub := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(set.Keys))}
	for _, k := range set.Keys {
		// never publish private material
		pub.Keys = append(pub.Keys, k.Public())
	}
	payload, err := json.Marshal(pub)
	if err != nil {
		http.Error(w, "jwks: marshal error", http.StatusInternalServerError)
		return
	}

	etag := computeETag(payload)
	w.Header().Set("Content-Type", "application/jwk-set+json")
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(h.cacheAge().Seconds())))
	w.Header().Set("ETag", etag)
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *JWKSHandler) cacheAge() time.Duration {
	if h.CacheMaxAge > 0 {
		return h.CacheMaxAge
	}
	return 10 * time.Minute
}

func computeETag(b []byte) string {
	sum := sha256.Sum256(b)
	return `W/"` + base64.RawURLEncoding.EncodeToString(sum[:]) + `"`
}
