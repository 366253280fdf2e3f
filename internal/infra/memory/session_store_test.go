package memory_test

import (
	"context"
	"testing"
	"time"

	"quizdrill-service/internal/app"
	"quizdrill-service/internal/domain"
	"quizdrill-service/internal/infra/memory"
)

func TestPinAppliesOnce(t *testing.T) {
	store := memory.NewSessionStore()
	ctx := context.Background()

	session := domain.Session{UserID: 1, Section: domain.Algorithms, CreatedAt: time.Now(), State: domain.StateCreated}
	if err := store.Create(ctx, &session); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	deadline := time.Now().Add(10 * time.Minute)
	applied, err := store.Pin(ctx, session.ID, []int64{3, 1, 2}, deadline)
	if err != nil {
		t.Fatalf("pin failed: %v", err)
	}
	if !applied {
		t.Fatalf("first pin should apply")
	}

	applied, err = store.Pin(ctx, session.ID, []int64{9, 9, 9}, deadline.Add(time.Hour))
	if err != nil {
		t.Fatalf("second pin failed: %v", err)
	}
	if applied {
		t.Fatalf("second pin must not apply")
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.QuestionIDs) != 3 || got.QuestionIDs[0] != 3 {
		t.Fatalf("pinned set was overwritten: %v", got.QuestionIDs)
	}
}

func TestFinalizeAppliesOnceAndStatsAccumulate(t *testing.T) {
	store := memory.NewSessionStore()
	ctx := context.Background()

	fin := func(id int64, score int) app.Finalization {
		return app.Finalization{
			SessionID:  id,
			UserID:     1,
			Section:    domain.Fundamentals,
			State:      domain.StateCompleted,
			Result:     domain.Result{Passed: 1, Total: 2, WeightedScore: score},
			FinishedAt: time.Now(),
			Answers:    []domain.AnswerRecord{{SessionID: id, QuestionID: 1, Correct: true, PointsAwarded: score}},
			Delta:      domain.StatsDelta{Score: score, TestsPassed: 1, TotalTests: 2},
		}
	}

	for i, score := range []int{5, 2} {
		session := domain.Session{UserID: 1, Section: domain.Fundamentals, CreatedAt: time.Now()}
		if err := store.Create(ctx, &session); err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
		applied, err := store.Finalize(ctx, fin(session.ID, score))
		if err != nil {
			t.Fatalf("finalize %d failed: %v", i, err)
		}
		if !applied {
			t.Fatalf("finalize %d should apply", i)
		}

		applied, err = store.Finalize(ctx, fin(session.ID, 100))
		if err != nil {
			t.Fatalf("duplicate finalize %d failed: %v", i, err)
		}
		if applied {
			t.Fatalf("duplicate finalize %d must not apply", i)
		}
	}

	stats, err := store.Stats(ctx, 1, domain.Fundamentals)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Score != 7 || stats.TestsPassed != 2 || stats.TotalTests != 4 {
		t.Fatalf("stats did not accumulate additively: %+v", stats)
	}
}

func TestGetUnknownSession(t *testing.T) {
	store := memory.NewSessionStore()
	if _, err := store.Get(context.Background(), 42); err != domain.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
