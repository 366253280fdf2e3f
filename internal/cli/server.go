package cli

import (
	"context"
	"database/sql"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quizdrill-service/internal/app"
	"quizdrill-service/internal/config"
	"quizdrill-service/internal/domain"
	amqpnotify "quizdrill-service/internal/infra/amqp"
	"quizdrill-service/internal/infra/memory"
	"quizdrill-service/internal/infra/postgres"
	redisinfra "quizdrill-service/internal/infra/redis"
	transport "quizdrill-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var (
		sessions app.SessionStore
		bank     app.QuestionBank
		topics   app.TopicResolver
	)
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bundb := bun.NewDB(sqldb, pgdialect.New())
		defer bundb.Close()

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		sessions = postgres.NewSessionStore(bundb)
		bank = postgres.NewQuestionLoader(pool)
		topics = postgres.NewTopicResolver(bundb)
	} else {
		log.Printf("no postgres configured, using in-memory demo data")
		sessions = memory.NewSessionStore()
		bank = memory.NewQuestionBank(sampleQuestions())
		topics = memory.NewTopicResolver(sampleTopics())
	}

	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ttl := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
		bank = redisinfra.NewQuestionCache(client, bank, ttl)
	}

	var notifier app.Notifier
	if cfg.AMQP.URL != "" {
		exchange := cfg.AMQP.Exchange
		if exchange == "" {
			exchange = "achievements"
		}
		amqpNotifier, err := amqpnotify.NewNotifier(cfg.AMQP.URL, exchange)
		if err != nil {
			return err
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
	} else {
		notifier = app.NotifierFunc(func(_ context.Context, userID int64, section domain.Section, score int64) error {
			log.Printf("score updated: user=%d section=%s score=%d", userID, section, score)
			return nil
		})
	}

	sampler := app.NewSampler(bank, topics, rand.New(rand.NewSource(time.Now().UnixNano())))
	service := app.NewSessionService(sessions, bank, topics, sampler, notifier, app.NewEventHub())
	handler := transport.NewHandler(service)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Router([]byte(cfg.Auth.Secret)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quizdrill service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleTopics and sampleQuestions provide minimal demo data for running
// without a database.
func sampleTopics() map[int64]string {
	return map[int64]string{
		1: "Sorting",
		2: "Data Structures",
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:            1,
			Title:         "Quicksort complexity",
			Text:          "What is the average time complexity of quicksort?",
			Type:          domain.SingleChoice,
			Difficulty:    domain.Easy,
			Options:       []string{"O(n log n)", "O(n^2)", "O(log n)"},
			CorrectAnswer: []string{"O(n log n)"},
			TopicCode:     "Sorting",
		},
		{
			ID:            2,
			Title:         "Stable sorts",
			Text:          "Select every stable sorting algorithm.",
			Type:          domain.MultipleChoice,
			Difficulty:    domain.Medium,
			Options:       []string{"Merge sort", "Quicksort", "Insertion sort"},
			CorrectAnswer: []string{"Merge sort", "Insertion sort"},
			TopicCode:     "Sorting",
		},
		{
			ID:            3,
			Title:         "BFS order",
			Text:          "Order the steps of breadth-first search.",
			Type:          domain.Ordering,
			Difficulty:    domain.Hard,
			Options:       []string{"Enqueue root", "Dequeue node", "Visit neighbors"},
			CorrectAnswer: []string{"Enqueue root", "Dequeue node", "Visit neighbors"},
			TopicCode:     "Data Structures",
		},
	}
}
