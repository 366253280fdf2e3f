package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quizdrill-service/internal/app"
	"quizdrill-service/internal/domain"
	pgstore "quizdrill-service/internal/infra/postgres"
	pgmigrations "quizdrill-service/internal/infra/postgres/migrations"
	infraredis "quizdrill-service/internal/infra/redis"
)

func TestSessionFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	loader := pgstore.NewQuestionLoader(pool)
	bank := infraredis.NewQuestionCache(redisClient, loader, 5*time.Minute)
	topics := pgstore.NewTopicResolver(db)
	store := pgstore.NewSessionStore(db)
	sampler := app.NewSampler(bank, topics, rand.New(rand.NewSource(11)))

	notified := make(chan int64, 1)
	notifier := app.NotifierFunc(func(_ context.Context, _ int64, _ domain.Section, score int64) error {
		notified <- score
		return nil
	})
	service := app.NewSessionService(store, bank, topics, sampler, notifier, app.NewEventHub())

	sessionID, err := service.Start(ctx, 42, "AS", []string{"Sorting"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	first, err := service.Questions(ctx, 42, sessionID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(first.Questions) != app.DefaultQuestionCount {
		t.Fatalf("expected %d questions, got %d", app.DefaultQuestionCount, len(first.Questions))
	}

	// A re-read serves the pinned set and deadline unchanged.
	second, err := service.Questions(ctx, 42, sessionID)
	if err != nil {
		t.Fatalf("re-read questions: %v", err)
	}
	if !second.EndTime.Equal(first.EndTime) {
		t.Fatalf("deadline changed across reads: %v vs %v", first.EndTime, second.EndTime)
	}
	for i := range first.Questions {
		if first.Questions[i].ID != second.Questions[i].ID {
			t.Fatalf("question set changed across reads")
		}
	}

	answers := make([]domain.SubmittedAnswer, 0, len(first.Questions))
	wantScore := 0
	for _, q := range first.Questions {
		answers = append(answers, domain.SubmittedAnswer{QuestionID: q.ID, Items: q.CorrectAnswer, ResponseTime: 1.5})
		wantScore += q.Difficulty.Weight()
	}

	result, err := service.Submit(ctx, 42, sessionID, answers)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Passed != len(answers) || result.WeightedScore != wantScore {
		t.Fatalf("expected all correct with score %d, got %+v", wantScore, result)
	}

	select {
	case score := <-notified:
		if score != int64(wantScore) {
			t.Fatalf("expected cumulative score %d in notification, got %d", wantScore, score)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("notifier was not called")
	}

	// Duplicate submit returns the stored result and does not double-count.
	retry, err := service.Submit(ctx, 42, sessionID, answers[:1])
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if retry != result {
		t.Fatalf("retry changed the result: %+v vs %+v", result, retry)
	}
	stats, err := store.Stats(ctx, 42, domain.Algorithms)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Score != int64(wantScore) || stats.TotalTests != int64(len(answers)) {
		t.Fatalf("stats double-counted: %+v", stats)
	}

	records, err := service.Answers(ctx, 42, sessionID)
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	if len(records) != len(answers) {
		t.Fatalf("expected %d answer records, got %d", len(answers), len(records))
	}
	for _, rec := range records {
		if !rec.Correct || rec.PointsAwarded == 0 {
			t.Fatalf("expected graded correct record, got %+v", rec)
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func migrateAndSeed(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO topics (label, code, section) VALUES ('Sorting', 'sorting', 'algorithms'), ('Graphs', 'graphs', 'algorithms')`); err != nil {
		t.Fatalf("seed topics: %v", err)
	}

	insert := func(title, qtype, difficulty, topic string, options, correct []string) {
		optJSON, _ := json.Marshal(options)
		corJSON, _ := json.Marshal(correct)
		if _, err := db.ExecContext(ctx,
			`INSERT INTO current_questions (title, question_text, question_type, difficulty, options, correct_answer, topic_code)
			 VALUES (?, ?, ?, ?, ?::jsonb, ?::jsonb, ?)`,
			title, title+"?", qtype, difficulty, string(optJSON), string(corJSON), topic); err != nil {
			t.Fatalf("seed question %q: %v", title, err)
		}
	}

	// Eight topic questions, short of the ten-question set, so the sampler
	// must backfill from the graph questions.
	for i := 1; i <= 8; i++ {
		insert(fmt.Sprintf("sort-%d", i), string(domain.SingleChoice), string(domain.Easy), "Sorting", []string{"a", "b"}, []string{"a"})
	}
	for i := 1; i <= 4; i++ {
		insert(fmt.Sprintf("graph-%d", i), string(domain.OpenEnded), string(domain.Hard), "Graphs", nil, []string{"dijkstra"})
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
