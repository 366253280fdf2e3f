package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"quizdrill-service/internal/domain"
)

// DefaultQuestionCount is the size of every sampled question set.
const DefaultQuestionCount = 10

// TopicResolver maps human-readable topic labels to internal ids and back.
type TopicResolver interface {
	LabelsToIDs(ctx context.Context, labels []string) ([]int64, error)
	IDsToLabels(ctx context.Context, ids []int64) ([]string, error)
}

// QuestionBank is the read-only question store the engine samples from.
type QuestionBank interface {
	ByTopicLabels(ctx context.Context, labels []string) ([]domain.Question, error)
	ByIDs(ctx context.Context, ids []int64) ([]domain.Question, error)
	// IDs returns every question id not in exclude.
	IDs(ctx context.Context, exclude []int64) ([]int64, error)
}

// Sampler draws fixed-size, duplicate-free question sets, preferring
// topic-matched questions and backfilling from the rest of the bank.
type Sampler struct {
	bank   QuestionBank
	topics TopicResolver

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler builds a sampler around an explicit randomness source so tests
// can seed it deterministically.
func NewSampler(bank QuestionBank, topics TopicResolver, rng *rand.Rand) *Sampler {
	return &Sampler{bank: bank, topics: topics, rng: rng}
}

// Select returns exactly count distinct question ids. When topicIDs is
// non-empty the topic pool is sampled first; a pool smaller than count is
// taken whole and topped up with a uniform draw over the complement of the
// already-chosen ids across the whole bank.
func (s *Sampler) Select(ctx context.Context, topicIDs []int64, count int) ([]int64, error) {
	if count <= 0 {
		count = DefaultQuestionCount
	}

	if len(topicIDs) == 0 {
		all, err := s.bank.IDs(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("list question ids: %w", err)
		}
		return s.draw(all, count), nil
	}

	labels, err := s.topics.IDsToLabels(ctx, topicIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve topics: %w", err)
	}
	if len(labels) == 0 {
		return nil, domain.ErrNoTopicsFound
	}

	pool, err := s.bank.ByTopicLabels(ctx, labels)
	if err != nil {
		return nil, fmt.Errorf("load topic questions: %w", err)
	}
	poolIDs := make([]int64, len(pool))
	for i, q := range pool {
		poolIDs[i] = q.ID
	}

	if len(poolIDs) >= count {
		return s.draw(poolIDs, count), nil
	}

	chosen := append([]int64(nil), poolIDs...)
	rest, err := s.bank.IDs(ctx, chosen)
	if err != nil {
		return nil, fmt.Errorf("list backfill ids: %w", err)
	}
	chosen = append(chosen, s.draw(rest, count-len(chosen))...)
	return chosen, nil
}

// draw picks min(n, len(ids)) ids uniformly without replacement.
func (s *Sampler) draw(ids []int64, n int) []int64 {
	if n > len(ids) {
		n = len(ids)
	}
	s.mu.Lock()
	perm := s.rng.Perm(len(ids))
	s.mu.Unlock()

	out := make([]int64, 0, n)
	for _, idx := range perm[:n] {
		out = append(out, ids[idx])
	}
	return out
}
