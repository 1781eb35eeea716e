// Package ags posts scores to an LTI Assignment and Grade Services line item.
package ags

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/mind-engage/mindengage-lti/pkg/lti/token"
)

const (
	ScoreMediaType = "application/vnd.ims.lis.v1.score+json"

	ActivityCompleted   = "Completed"
	GradingFullyGraded  = "FullyGraded"
	timestampLayout     = "2006-01-02T15:04:05.000Z"
	maxResponseBodySize = 64 << 10
)

// TokenProvider returns a bearer token for a registration and scope.
// *token.Provider implements it.
type TokenProvider interface {
	Token(ctx context.Context, reg token.Registration, scope string) (*oauth2.Token, error)
}

// Score is one grade for one user on one line item.
type Score struct {
	LineItemURL  string
	UserID       string
	ScoreGiven   float64
	ScoreMaximum float64
	Comment      string
}

// scorePayload is the wire body; field order follows the AGS examples.
type scorePayload struct {
	Timestamp        string  `json:"timestamp"`
	ScoreGiven       float64 `json:"scoreGiven"`
	ScoreMaximum     float64 `json:"scoreMaximum"`
	Comment          string  `json:"comment"`
	ActivityProgress string  `json:"activityProgress"`
	GradingProgress  string  `json:"gradingProgress"`
	UserID           string  `json:"userId"`
}

// Submitted is the platform's answer to an accepted score.
type Submitted struct {
	StatusCode int
	Body       string
	URL        string
}

// SubmissionError reports a score POST that failed or was rejected.
type SubmissionError struct {
	StatusCode int // 0 when no HTTP response was received
	Body       string
	URL        string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ags: post score to %s: status %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("ags: post score to %s: %v", e.URL, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

type Submitter struct {
	// HTTP must carry a timeout; a nil HTTP uses a 15s client.
	HTTP   *http.Client
	Tokens TokenProvider
	// Registration is used by Submit.
	Registration token.Registration
	Now          func() time.Time
}

// Submit posts sc using the submitter's default registration.
func (s *Submitter) Submit(ctx context.Context, sc Score) (Submitted, error) {
	return s.SubmitAs(ctx, s.Registration, sc)
}

// SubmitAs posts sc on behalf of reg. It is never retried: a failed
// submission is returned to the caller as is.
func (s *Submitter) SubmitAs(ctx context.Context, reg token.Registration, sc Score) (Submitted, error) {
	if sc.LineItemURL == "" || sc.UserID == "" {
		return Submitted{}, errors.New("ags: line item url and user id are required")
	}
	target := Normalize(sc.LineItemURL)

	tok, err := s.Tokens.Token(ctx, reg, token.ScopeScore)
	if err != nil {
		return Submitted{}, err
	}

	body, err := json.Marshal(scorePayload{
		Timestamp:        s.now().UTC().Format(timestampLayout),
		ScoreGiven:       sc.ScoreGiven,
		ScoreMaximum:     sc.ScoreMaximum,
		Comment:          sc.Comment,
		ActivityProgress: ActivityCompleted,
		GradingProgress:  GradingFullyGraded,
		UserID:           sc.UserID,
	})
	if err != nil {
		return Submitted{}, &SubmissionError{URL: target, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return Submitted{}, &SubmissionError{URL: target, Err: err}
	}
	req.Header.Set("Content-Type", ScoreMediaType)
	tok.SetAuthHeader(req)

	resp, err := s.client().Do(req)
	if err != nil {
		return Submitted{}, &SubmissionError{URL: target, Err: err}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))

	if resp.StatusCode/100 != 2 {
		return Submitted{}, &SubmissionError{StatusCode: resp.StatusCode, Body: string(respBody), URL: target}
	}
	return Submitted{StatusCode: resp.StatusCode, Body: string(respBody), URL: target}, nil
}

func (s *Submitter) client() *http.Client {
	if s.HTTP != nil {
		return s.HTTP
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (s *Submitter) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
