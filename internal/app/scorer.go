package app

import "quizdrill-service/internal/domain"

// GradedAnswer is one per-question verdict handed to the scorer.
type GradedAnswer struct {
	QuestionID int64
	Difficulty domain.Difficulty
	Correct    bool
}

// Score aggregates verdicts into the session result: pass count, total,
// accuracy ratio, and the difficulty-weighted point total (easy=1,
// medium=2, hard=5).
func Score(graded []GradedAnswer) domain.Result {
	res := domain.Result{Total: len(graded)}
	for _, g := range graded {
		if !g.Correct {
			continue
		}
		res.Passed++
		res.WeightedScore += g.Difficulty.Weight()
	}
	if res.Total > 0 {
		res.Accuracy = float64(res.Passed) / float64(res.Total)
	}
	return res
}
