package app_test

import (
	"strings"
	"testing"

	"quizdrill-service/internal/app"
	"quizdrill-service/internal/domain"
)

func TestGradeOrderingIsOrderSensitive(t *testing.T) {
	q := domain.Question{
		Type:          domain.Ordering,
		CorrectAnswer: []string{"a", "b", "c"},
	}
	if !app.Grade(q, []string{"a", "b", "c"}) {
		t.Fatalf("exact order should pass")
	}
	if app.Grade(q, []string{"b", "a", "c"}) {
		t.Fatalf("reordered answer should fail")
	}
}

func TestGradeMultiSelectIgnoresOrder(t *testing.T) {
	q := domain.Question{
		Type:          domain.MultipleChoice,
		CorrectAnswer: []string{"x", "y"},
	}
	if !app.Grade(q, []string{"y", "x"}) {
		t.Fatalf("set equality should ignore order")
	}
	if app.Grade(q, []string{"x"}) {
		t.Fatalf("missing item should fail")
	}
	if app.Grade(q, []string{"x", "x"}) {
		t.Fatalf("duplicated item should not stand in for a missing one")
	}
}

func TestGradeSingleCorrectMultipleChoice(t *testing.T) {
	// A multiple-choice question with one correct item grades as a sequence.
	q := domain.Question{
		Type:          domain.MultipleChoice,
		CorrectAnswer: []string{"x"},
	}
	if !app.Grade(q, []string{"x"}) {
		t.Fatalf("single correct item should pass")
	}
	if app.Grade(q, []string{"x", "y"}) {
		t.Fatalf("extra item should fail")
	}
}

func TestGradeNormalizesCaseAndSpace(t *testing.T) {
	q := domain.Question{
		Type:          domain.OpenEnded,
		CorrectAnswer: []string{"Quick Sort"},
	}
	if !app.Grade(q, []string{"  quick sort "}) {
		t.Fatalf("normalized answer should pass")
	}
	if app.Grade(q, []string{"quicksort"}) {
		t.Fatalf("different text should fail")
	}
}

func TestValidateAnswerOpenEnded(t *testing.T) {
	if err := app.ValidateAnswer(domain.OpenEnded, []string{"fine"}); err != nil {
		t.Fatalf("valid open answer rejected: %v", err)
	}
	if err := app.ValidateAnswer(domain.OpenEnded, []string{"a", "b"}); err != domain.ErrAnswerTooLong {
		t.Fatalf("expected ErrAnswerTooLong for two items, got %v", err)
	}
	long := strings.Repeat("x", 129)
	if err := app.ValidateAnswer(domain.OpenEnded, []string{long}); err != domain.ErrAnswerTooLong {
		t.Fatalf("expected ErrAnswerTooLong for long item, got %v", err)
	}
}

func TestValidateAnswerChoiceLimits(t *testing.T) {
	nine := make([]string, 9)
	for i := range nine {
		nine[i] = "a"
	}
	if err := app.ValidateAnswer(domain.MultipleChoice, nine); err != domain.ErrTooManyAnswers {
		t.Fatalf("expected ErrTooManyAnswers, got %v", err)
	}
	long := strings.Repeat("x", 257)
	if err := app.ValidateAnswer(domain.SingleChoice, []string{long}); err != domain.ErrAnswerItemTooLong {
		t.Fatalf("expected ErrAnswerItemTooLong, got %v", err)
	}
	if err := app.ValidateAnswer(domain.Ordering, []string{"a", "b"}); err != nil {
		t.Fatalf("valid ordering answer rejected: %v", err)
	}
}
