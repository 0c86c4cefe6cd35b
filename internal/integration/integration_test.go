package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"civic-engage-service/internal/app"
	"civic-engage-service/internal/domain"
	pgstore "civic-engage-service/internal/infra/postgres"
	pgmigrations "civic-engage-service/internal/infra/postgres/migrations"
	infraredis "civic-engage-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestAwardFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateAndSeed(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	ledger := pgstore.NewLedgerStore(pool)
	quizzes := infraredis.NewQuizCatalog(redisClient, pgstore.NewQuizLoader(pool), 5*time.Minute)
	awards := app.NewAwardService(ledger)

	if _, err := awards.Provision(ctx, "alice@example.com", "Alice"); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if _, err := awards.Provision(ctx, "bob@example.com", "Bob"); err != nil {
		t.Fatalf("provision: %v", err)
	}

	// Bob reports a safety issue.
	result, err := awards.Apply(ctx, domain.Action{
		Kind:           domain.ReportSubmitted,
		UserID:         "bob@example.com",
		Category:       "safety",
		Timestamp:      time.Now(),
		IdempotencyKey: "bob-report-1",
	})
	if err != nil {
		t.Fatalf("apply report: %v", err)
	}
	if result.PointsAwarded != 35 || result.TotalPoints != 35 {
		t.Fatalf("unexpected report result %+v", result)
	}
	if len(result.NewBadges) != 1 || result.NewBadges[0] != "First Reporter" {
		t.Fatalf("expected First Reporter, got %v", result.NewBadges)
	}

	// Replaying the same key must not double-award.
	replay, err := awards.Apply(ctx, domain.Action{
		Kind:           domain.ReportSubmitted,
		UserID:         "bob@example.com",
		Category:       "safety",
		Timestamp:      time.Now(),
		IdempotencyKey: "bob-report-1",
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Duplicate || replay.TotalPoints != 35 {
		t.Fatalf("expected no-op replay at 35 points, got %+v", replay)
	}

	// Alice plays the quiz loaded through the Redis-backed catalog.
	quiz, err := quizzes.GetQuiz(ctx, "civics-101")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	session := app.NewQuizSession("alice@example.com", quiz)
	if err := session.Start(); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := session.SelectAnswer(quiz.Questions[0].Correct); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := session.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	action, done, err := session.Advance()
	if err != nil || !done {
		t.Fatalf("advance: done=%v err=%v", done, err)
	}
	quizResult, err := awards.Apply(ctx, action)
	if err != nil {
		t.Fatalf("apply quiz: %v", err)
	}
	if quizResult.PointsAwarded != 10 || quizResult.TotalPoints != 10 {
		t.Fatalf("unexpected quiz result %+v", quizResult)
	}

	// Leaderboard reflects both committed accounts in order.
	entries, err := ledger.Top(ctx, 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].UserID != "bob@example.com" || entries[0].TotalPoints != 35 {
		t.Fatalf("expected bob leading with 35, got %+v", entries[0])
	}
	if entries[1].UserID != "alice@example.com" || entries[1].Level != 1 {
		t.Fatalf("expected alice second at level 1, got %+v", entries[1])
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "civic", "POSTGRES_PASSWORD": "civicpass", "POSTGRES_DB": "civicdb"},
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
	dsn := fmt.Sprintf("postgres://civic:civicpass@%s:%s/civicdb?sslmode=disable", host, port.Port())
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

func migrateAndSeed(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "civics-101",
		Title: "Civic Knowledge",
		Questions: []domain.Question{
			{
				Prompt:  "Which of these is a renewable energy source?",
				Options: []string{"Coal", "Natural gas", "Solar power", "Nuclear power"},
				Correct: 2,
			},
		},
		PointsPerQuestion: 10,
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
