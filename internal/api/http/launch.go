package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lti/internal/nonce"
	"github.com/mind-engage/mindengage-lti/pkg/lti/launch"
)

type launchReq struct {
	IDToken      string `json:"id_token"`
	IDTokenCamel string `json:"idToken"`
	Nonce        string `json:"nonce"`
}

type launchResp struct {
	IsValid bool           `json:"isValid"`
	Payload map[string]any `json:"payload,omitempty"`
	Error   string         `json:"error,omitempty"`
	Details string         `json:"details,omitempty"`
}

// POST /api/lti/launch  {"id_token": "...", "nonce": "..."}
func LaunchHandler(v launch.Verifier, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req launchReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, launchResp{Error: "bad json"})
			return
		}
		raw := strings.TrimSpace(req.IDToken)
		if raw == "" {
			raw = strings.TrimSpace(req.IDTokenCamel)
		}
		if raw == "" {
			respondJSON(w, http.StatusBadRequest, launchResp{Error: "Missing required field: id_token"})
			return
		}
		writeLaunchResult(w, log, v.Validate(r.Context(), raw, strings.TrimSpace(req.Nonce)))
	}
}

// POST /lti/launch  (form_post from the platform: id_token, state)
func LaunchFormHandler(v launch.Verifier, nonces *nonce.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			respondJSON(w, http.StatusBadRequest, launchResp{Error: "bad form"})
			return
		}
		raw := strings.TrimSpace(r.PostFormValue("id_token"))
		state := strings.TrimSpace(r.PostFormValue("state"))
		if raw == "" || state == "" {
			respondJSON(w, http.StatusBadRequest, launchResp{Error: "id_token and state are required"})
			return
		}
		expected, ok := nonces.Take(state)
		if !ok {
			log.Info("launch rejected", zap.String("reason", "invalid_state"))
			respondJSON(w, http.StatusUnauthorized, launchResp{Error: "invalid_state"})
			return
		}
		writeLaunchResult(w, log, v.Validate(r.Context(), raw, expected))
	}
}

func writeLaunchResult(w http.ResponseWriter, log *zap.Logger, res launch.Result) {
	switch res := res.(type) {
	case launch.Valid:
		log.Info("launch accepted",
			zap.String("issuer", res.Claims.Issuer),
			zap.String("sub", res.Claims.Subject),
			zap.String("message_type", res.Claims.MessageType))
		respondJSON(w, http.StatusOK, launchResp{IsValid: true, Payload: res.Claims.Payload})
	case launch.Invalid:
		log.Info("launch rejected", zap.String("reason", string(res.Reason)), zap.String("detail", res.Detail))
		respondJSON(w, http.StatusUnauthorized, launchResp{Error: string(res.Reason), Details: res.Detail})
	default:
		log.Error("launch: unexpected result", zap.Any("result", res))
		respondErr(w, http.StatusInternalServerError, "internal error")
	}
}
