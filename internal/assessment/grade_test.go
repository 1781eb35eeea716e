package assessment

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestGrade(t *testing.T) {
	qs := []Question{
		{ID: "1", CorrectAnswer: "a"},
		{ID: "2", CorrectAnswer: "b"},
		{ID: "3", CorrectAnswer: "c"},
	}
	res, err := Grade(qs, map[string]string{"1": "a", "2": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if res.CorrectAnswers != 1 || res.IncorrectAnswers != 2 || res.TotalQuestions != 3 {
		t.Fatalf("counts = %+v", res)
	}
	if res.Percentage != 33.33 || res.Score != 33.33 {
		t.Fatalf("percentage = %v score = %v", res.Percentage, res.Score)
	}
	if res.Feedback != "You got 1 out of 3 questions correct." {
		t.Fatalf("feedback = %q", res.Feedback)
	}
	if !res.DetailedResults[0].Correct || res.DetailedResults[2].Answer != "" {
		t.Fatalf("details = %+v", res.DetailedResults)
	}
}

func TestGrade_Errors(t *testing.T) {
	q := []Question{{ID: "1", CorrectAnswer: "a"}}
	cases := []struct {
		qs   []Question
		ans  map[string]string
		want error
	}{
		{nil, map[string]string{"1": "a"}, ErrNoQuestions},
		{q, nil, ErrNoAnswers},
		{q, map[string]string{"1": "a", "2": "b"}, ErrAnswerMismatch},
	}
	for _, c := range cases {
		if _, err := Grade(c.qs, c.ans); !errors.Is(err, c.want) {
			t.Errorf("Grade() err = %v, want %v", err, c.want)
		}
	}
}

func TestQuestionUnmarshal(t *testing.T) {
	var qs []Question
	err := json.Unmarshal([]byte(`[{"id":7,"text":"2+2","correct_answer":"4"},{"id":"q2","correctAnswer":"b"}]`), &qs)
	if err != nil {
		t.Fatal(err)
	}
	if qs[0].ID != "7" || qs[0].CorrectAnswer != "4" || qs[1].ID != "q2" || qs[1].CorrectAnswer != "b" {
		t.Fatalf("decoded %+v", qs)
	}
}
