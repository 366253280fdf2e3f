package memory

import (
	"context"
	"sort"
	"sync"

	"quizdrill-service/internal/domain"
)

// QuestionBank is an in-memory question store (useful for tests/demos).
type QuestionBank struct {
	mu        sync.RWMutex
	questions map[int64]domain.Question
}

func NewQuestionBank(questions []domain.Question) *QuestionBank {
	byID := make(map[int64]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return &QuestionBank{questions: byID}
}

func (b *QuestionBank) ByTopicLabels(_ context.Context, labels []string) ([]domain.Question, error) {
	want := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		want[l] = struct{}{}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.Question
	for _, q := range b.questions {
		if _, ok := want[q.TopicCode]; ok {
			out = append(out, q)
		}
	}
	sortQuestions(out)
	return out, nil
}

func (b *QuestionBank) ByIDs(_ context.Context, ids []int64) ([]domain.Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := b.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (b *QuestionBank) IDs(_ context.Context, exclude []int64) ([]int64, error) {
	skip := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]int64, 0, len(b.questions))
	for id := range b.questions {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func sortQuestions(qs []domain.Question) {
	sort.Slice(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })
}

// TopicResolver is a static label<->id mapping.
type TopicResolver struct {
	byLabel map[string]int64
	byID    map[int64]string
}

func NewTopicResolver(labelsByID map[int64]string) *TopicResolver {
	r := &TopicResolver{
		byLabel: make(map[string]int64, len(labelsByID)),
		byID:    make(map[int64]string, len(labelsByID)),
	}
	for id, label := range labelsByID {
		r.byID[id] = label
		r.byLabel[label] = id
	}
	return r
}

func (r *TopicResolver) LabelsToIDs(_ context.Context, labels []string) ([]int64, error) {
	var ids []int64
	for _, label := range labels {
		if id, ok := r.byLabel[label]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *TopicResolver) IDsToLabels(_ context.Context, ids []int64) ([]string, error) {
	var labels []string
	for _, id := range ids {
		if label, ok := r.byID[id]; ok {
			labels = append(labels, label)
		}
	}
	return labels, nil
}
