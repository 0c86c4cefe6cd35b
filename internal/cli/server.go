package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civic-engage-service/internal/app"
	"civic-engage-service/internal/config"
	"civic-engage-service/internal/domain"
	"civic-engage-service/internal/infra/memory"
	pgstore "civic-engage-service/internal/infra/postgres"
	redisstore "civic-engage-service/internal/infra/redis"
	transport "civic-engage-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the points service",
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	// Ledger backend preference: Postgres, then Redis, then in-memory.
	// Whichever is chosen also serves the leaderboard index so ranks
	// are never built from a store the awards didn't commit to.
	var (
		ledger app.LedgerStore
		board  app.LeaderboardIndex
	)
	switch {
	case pool != nil:
		store := pgstore.NewLedgerStore(pool)
		ledger, board = store, store
		log.Printf("using postgres ledger")
	case redisClient != nil:
		store := redisstore.NewLedgerStore(redisClient)
		ledger, board = store, store
		log.Printf("using redis ledger")
	default:
		store := memory.NewLedgerStore()
		ledger, board = store, store
		log.Printf("using in-memory ledger (state is not persisted)")
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizCatalog
	if redisClient != nil {
		quizzes = redisstore.NewQuizCatalog(redisClient, loader, quizTTL)
	} else {
		quizzes = memory.NewQuizCatalog(loader, quizTTL)
	}

	awards := app.NewAwardServiceWithClock(ledger, cfg.Award.Retries, time.Now)
	restHandler := transport.NewHandler(awards, board)
	wsHandler := transport.NewWSHandler(awards, quizzes)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	restHandler.Register(mux)
	mux.HandleFunc("/ws/quiz", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting civic engage service on :%s", finalPort)
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

// sampleQuizzes seeds the no-database demo mode; production loads quiz
// content from Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"env-basics": {
			ID:       "env-basics",
			Title:    "Environmental Basics",
			Category: "environment",
			Questions: []domain.Question{
				{
					Prompt:      "Which of these is a renewable energy source?",
					Options:     []string{"Coal", "Natural gas", "Solar power", "Nuclear power"},
					Correct:     2,
					Explanation: "Solar power is renewable as it comes from the sun, which is virtually inexhaustible.",
				},
				{
					Prompt:      "What percentage of global emissions come from transportation?",
					Options:     []string{"10%", "14%", "20%", "25%"},
					Correct:     1,
					Explanation: "Transportation accounts for approximately 14% of global greenhouse gas emissions.",
				},
				{
					Prompt:      "Which bin does food waste belong in?",
					Options:     []string{"Recycling", "Compost", "Landfill", "Hazardous"},
					Correct:     1,
					Explanation: "Food scraps break down into compost and should stay out of landfill.",
				},
			},
			PointsPerQuestion: 10,
		},
	}
}
