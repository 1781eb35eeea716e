package http

import (
	"encoding/json"
	"net/http"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errResp struct {
	Error    string `json:"error"`
	Details  string `json:"details,omitempty"`
	Response any    `json:"response,omitempty"`
}

func respondErr(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errResp{Error: msg})
}

// platformBody embeds a platform response as JSON when it is JSON and as a
// string otherwise.
func platformBody(s string) any {
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return s
}
