package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lti/internal/platform"
	"github.com/mind-engage/mindengage-lti/pkg/lti/ags"
	"github.com/mind-engage/mindengage-lti/pkg/lti/assertion"
	"github.com/mind-engage/mindengage-lti/pkg/lti/token"
)

// ScoreSubmitter posts a score on behalf of a registration.
type ScoreSubmitter interface {
	SubmitAs(ctx context.Context, reg token.Registration, sc ags.Score) (ags.Submitted, error)
}

type GradeConfig struct {
	Submitter ScoreSubmitter
	Default   token.Registration
	// DefaultDeploymentID is the deployment of Default; empty skips the
	// deploymentId check for the default platform.
	DefaultDeploymentID string
	Platforms           PlatformLookup // optional
}

type gradeReq struct {
	LineItemURL  string   `json:"lineItemUrl"`
	ScoreGiven   *float64 `json:"scoreGiven"`
	ScoreMaximum *float64 `json:"scoreMaximum"`
	UserID       string   `json:"userId"`
	Feedback     string   `json:"feedback"`
	Issuer       string   `json:"issuer"`
	ClientID     string   `json:"clientId"`
	DeploymentID string   `json:"deploymentId"`
}

type gradeResp struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	Response   any    `json:"response,omitempty"`
}

// POST /api/lti/submit-grade
func SubmitGradeHandler(cfg GradeConfig, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gradeReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondErr(w, http.StatusBadRequest, "bad json: "+err.Error())
			return
		}
		if f := missingGradeField(req); f != "" {
			respondErr(w, http.StatusBadRequest, "Missing required field: "+f)
			return
		}

		reg, deployment, err := resolveRegistration(r.Context(), cfg, req)
		if err != nil {
			log.Error("grade: resolve registration", zap.String("issuer", req.Issuer), zap.Error(err))
			respondErr(w, http.StatusInternalServerError, "internal error")
			return
		}
		if d := strings.TrimSpace(req.DeploymentID); d != "" && deployment != "" && d != deployment {
			respondErr(w, http.StatusBadRequest, "deploymentId does not match the platform registration")
			return
		}

		res, err := cfg.Submitter.SubmitAs(r.Context(), reg, ags.Score{
			LineItemURL:  strings.TrimSpace(req.LineItemURL),
			UserID:       strings.TrimSpace(req.UserID),
			ScoreGiven:   *req.ScoreGiven,
			ScoreMaximum: *req.ScoreMaximum,
			Comment:      req.Feedback,
		})
		if err != nil {
			writeOutboundError(w, log, err, reg)
			return
		}
		log.Info("grade submitted",
			zap.String("issuer", reg.Issuer),
			zap.String("deployment_id", deployment),
			zap.String("url", res.URL),
			zap.Int("status", res.StatusCode))
		respondJSON(w, http.StatusOK, gradeResp{
			Success:    true,
			Message:    "Grade submitted successfully",
			StatusCode: res.StatusCode,
			Response:   platformBody(res.Body),
		})
	}
}

func missingGradeField(req gradeReq) string {
	switch {
	case strings.TrimSpace(req.LineItemURL) == "":
		return "lineItemUrl"
	case req.ScoreGiven == nil:
		return "scoreGiven"
	case req.ScoreMaximum == nil:
		return "scoreMaximum"
	case strings.TrimSpace(req.UserID) == "":
		return "userId"
	}
	return ""
}

// resolveRegistration applies the request's issuer and client id overrides
// to the default registration and returns the deployment registered for the
// resulting issuer, if known. A registered issuer brings its own client id,
// token endpoint and deployment.
func resolveRegistration(ctx context.Context, cfg GradeConfig, req gradeReq) (token.Registration, string, error) {
	reg, deployment := cfg.Default, cfg.DefaultDeploymentID
	if iss := strings.TrimSpace(req.Issuer); iss != "" && iss != reg.Issuer {
		reg.Issuer, deployment = iss, ""
		if cfg.Platforms != nil {
			p, err := cfg.Platforms.Lookup(ctx, iss)
			switch {
			case err == nil:
				reg, deployment = p.Registration(), p.DeploymentID
			case !errors.Is(err, platform.ErrNotFound):
				return token.Registration{}, "", err
			}
		}
	}
	if cid := strings.TrimSpace(req.ClientID); cid != "" {
		reg.ClientID = cid
	}
	if deployment == "" {
		deployment = strings.TrimSpace(req.DeploymentID)
	}
	return reg, deployment, nil
}

// writeOutboundError reports a failed signing, token exchange or score POST
// with the platform's answer attached.
func writeOutboundError(w http.ResponseWriter, log *zap.Logger, err error, reg token.Registration) {
	var (
		signErr *assertion.SigningError
		reqErr  *token.RequestError
		respErr *token.ResponseError
		subErr  *ags.SubmissionError
		body    string
	)
	switch {
	case errors.As(err, &reqErr):
		body = reqErr.Body
	case errors.As(err, &respErr):
		body = respErr.Body
	case errors.As(err, &subErr):
		body = subErr.Body
	case errors.As(err, &signErr):
	default:
		log.Error("grade: unexpected failure", zap.Error(err))
		respondErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	log.Warn("grade submission failed", zap.String("issuer", reg.Issuer), zap.String("client_id", reg.ClientID), zap.Error(err))
	respondJSON(w, http.StatusInternalServerError, errResp{
		Error:    "Failed to submit grade",
		Details:  err.Error(),
		Response: platformBody(body),
	})
}
