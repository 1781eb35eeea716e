// Package assessment tallies answers to multiple-choice questions.
package assessment

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text,omitempty"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// UnmarshalJSON accepts numeric ids and the snake_case answer field.
func (q *Question) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID            json.RawMessage `json:"id"`
		Text          string          `json:"text"`
		Options       []string        `json:"options"`
		CorrectAnswer *string         `json:"correctAnswer"`
		CorrectSnake  *string         `json:"correct_answer"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	q.ID = strings.Trim(strings.TrimSpace(string(raw.ID)), `"`)
	q.Text, q.Options = raw.Text, raw.Options
	switch {
	case raw.CorrectAnswer != nil:
		q.CorrectAnswer = *raw.CorrectAnswer
	case raw.CorrectSnake != nil:
		q.CorrectAnswer = *raw.CorrectSnake
	}
	return nil
}

type QuestionResult struct {
	QuestionID    string `json:"question_id"`
	Answer        string `json:"answer"`
	CorrectAnswer string `json:"correct_answer"`
	Correct       bool   `json:"correct"`
}

type Result struct {
	Score            float64          `json:"score"`
	TotalQuestions   int              `json:"total_questions"`
	CorrectAnswers   int              `json:"correct_answers"`
	IncorrectAnswers int              `json:"incorrect_answers"`
	Percentage       float64          `json:"percentage"`
	DetailedResults  []QuestionResult `json:"detailed_results"`
	Feedback         string           `json:"feedback"`
}

var (
	ErrNoQuestions    = errors.New("no questions")
	ErrNoAnswers      = errors.New("no answers")
	ErrAnswerMismatch = errors.New("more answers than questions")
)

// Grade counts answers that equal the question's correct answer. A missing
// answer counts as incorrect. Score and Percentage are in 0..100, rounded
// to two decimals.
func Grade(questions []Question, answers map[string]string) (Result, error) {
	switch {
	case len(questions) == 0:
		return Result{}, ErrNoQuestions
	case len(answers) == 0:
		return Result{}, ErrNoAnswers
	case len(answers) > len(questions):
		return Result{}, ErrAnswerMismatch
	}

	res := Result{TotalQuestions: len(questions), DetailedResults: make([]QuestionResult, 0, len(questions))}
	for _, q := range questions {
		a, ok := answers[q.ID]
		correct := ok && a == q.CorrectAnswer
		if correct {
			res.CorrectAnswers++
		}
		res.DetailedResults = append(res.DetailedResults, QuestionResult{
			QuestionID: q.ID, Answer: a, CorrectAnswer: q.CorrectAnswer, Correct: correct,
		})
	}
	res.IncorrectAnswers = res.TotalQuestions - res.CorrectAnswers
	pct := float64(res.CorrectAnswers) / float64(res.TotalQuestions) * 100
	res.Percentage = math.Round(pct*100) / 100
	res.Score = res.Percentage
	res.Feedback = fmt.Sprintf("You got %d out of %d questions correct.", res.CorrectAnswers, res.TotalQuestions)
	return res, nil
}
