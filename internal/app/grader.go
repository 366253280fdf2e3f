package app

import (
	"strings"

	"quizdrill-service/internal/domain"
)

const (
	maxOpenAnswerLen = 128
	maxAnswerItems   = 8
	maxAnswerItemLen = 256
)

// ValidateAnswer enforces the per-type shape limits on a submitted answer
// before any grading happens. Open-ended answers are a single item of at
// most 128 characters; every other type takes at most 8 items of at most
// 256 characters each.
func ValidateAnswer(qtype domain.QuestionType, items []string) error {
	if qtype == domain.OpenEnded {
		if len(items) != 1 || len(items[0]) > maxOpenAnswerLen {
			return domain.ErrAnswerTooLong
		}
		return nil
	}
	if len(items) > maxAnswerItems {
		return domain.ErrTooManyAnswers
	}
	for _, item := range items {
		if len(item) > maxAnswerItemLen {
			return domain.ErrAnswerItemTooLong
		}
	}
	return nil
}

// Grade compares a submitted answer against the stored correct answer.
//
// Both sides are normalized by trimming whitespace and lower-casing. A
// multi-select question (multiple-choice with more than one correct item)
// compares as a set; everything else compares element-wise in order, which
// is what makes ordering questions order-sensitive. There is no partial
// credit.
func Grade(q domain.Question, items []string) bool {
	want := normalize(q.CorrectAnswer)
	got := normalize(items)

	if q.Type == domain.MultipleChoice && len(want) > 1 {
		return equalSets(want, got)
	}
	return equalSequences(want, got)
}

func normalize(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = strings.ToLower(strings.TrimSpace(item))
	}
	return out
}

func equalSequences(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, item := range a {
		seen[item]++
	}
	for _, item := range b {
		seen[item]--
		if seen[item] < 0 {
			return false
		}
	}
	return true
}
