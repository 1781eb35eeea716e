package http

import (
	"encoding/json"
	"net/http"

	"github.com/mind-engage/mindengage-lti/internal/assessment"
)

type gradeAssessmentReq struct {
	Questions []assessment.Question `json:"questions"`
	Answers   map[string]string     `json:"answers"`
}

// POST /api/assessments/grade
func GradeAssessmentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gradeAssessmentReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondErr(w, http.StatusBadRequest, "bad json: "+err.Error())
			return
		}
		res, err := assessment.Grade(req.Questions, req.Answers)
		if err != nil {
			respondErr(w, http.StatusBadRequest, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}
