package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"blogpulse/pkg/database"
)

const usage = "Usage: go run ./cmd/migrate [up|drop|seed|postgres-up|postgres-drop|clickhouse-up|clickhouse-drop]"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}
	command := os.Args[1]

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch command {
	case "up":
		withPostgres(ctx, func(conn *pgx.Conn) error { return execAll(ctx, conn.Exec, postgresUp) })
		withClickHouse(ctx, func(ch *database.ClickHouseDB) error { return execAll(ctx, chExec(ch), clickhouseUp) })
		fmt.Println("✅ All tables created successfully")

	case "drop":
		withClickHouse(ctx, func(ch *database.ClickHouseDB) error { return execAll(ctx, chExec(ch), clickhouseDrop) })
		withPostgres(ctx, func(conn *pgx.Conn) error { return execAll(ctx, conn.Exec, postgresDrop) })
		fmt.Println("✅ All tables dropped successfully")

	case "postgres-up":
		withPostgres(ctx, func(conn *pgx.Conn) error { return execAll(ctx, conn.Exec, postgresUp) })
		fmt.Println("✅ Postgres tables created successfully")

	case "postgres-drop":
		withPostgres(ctx, func(conn *pgx.Conn) error { return execAll(ctx, conn.Exec, postgresDrop) })
		fmt.Println("✅ Postgres tables dropped successfully")

	case "clickhouse-up":
		withClickHouse(ctx, func(ch *database.ClickHouseDB) error { return execAll(ctx, chExec(ch), clickhouseUp) })
		fmt.Println("✅ ClickHouse tables created successfully")

	case "clickhouse-drop":
		withClickHouse(ctx, func(ch *database.ClickHouseDB) error { return execAll(ctx, chExec(ch), clickhouseDrop) })
		fmt.Println("✅ ClickHouse tables dropped successfully")

	case "seed":
		withPostgres(ctx, func(conn *pgx.Conn) error { return seedData(ctx, conn) })
		fmt.Println("✅ Data seeded successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func withPostgres(ctx context.Context, fn func(conn *pgx.Conn) error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	if err := fn(conn); err != nil {
		log.Fatalf("Postgres migration failed: %v", err)
	}
}

func withClickHouse(ctx context.Context, fn func(ch *database.ClickHouseDB) error) {
	addr := os.Getenv("CLICKHOUSE_ADDR")
	if addr == "" {
		addr = "localhost:9000"
	}
	db := os.Getenv("CLICKHOUSE_DB")
	if db == "" {
		db = "analytics"
	}
	user := os.Getenv("CLICKHOUSE_USERNAME")
	if user == "" {
		user = "default"
	}

	ch, err := database.NewClickHouseDB(ctx, database.ClickHouseConfig{
		Addr:     strings.Split(addr, ","),
		Database: db,
		Username: user,
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
	})
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer ch.Close()

	if err := fn(ch); err != nil {
		log.Fatalf("ClickHouse migration failed: %v", err)
	}
}

// chExec adapts the ClickHouse connection to the shape of pgx Exec
func chExec(ch *database.ClickHouseDB) func(context.Context, string, ...any) (struct{}, error) {
	return func(ctx context.Context, query string, args ...any) (struct{}, error) {
		return struct{}{}, ch.Conn.Exec(ctx, query, args...)
	}
}

// execAll runs queries in order and stops at the first failure
func execAll[T any](ctx context.Context, exec func(context.Context, string, ...any) (T, error), queries []string) error {
	for _, query := range queries {
		if _, err := exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
		fmt.Printf("  Executed: %s\n", getTableName(query))
	}
	return nil
}

var postgresUp = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		author_id UUID NOT NULL,
		title VARCHAR(300) NOT NULL,
		slug VARCHAR(320) UNIQUE NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'draft',
		views BIGINT NOT NULL DEFAULT 0,
		reads BIGINT NOT NULL DEFAULT 0,
		likes BIGINT NOT NULL DEFAULT 0,
		dislikes BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS comments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		post_id UUID NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		author_id UUID NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_posts_author_id ON posts(author_id)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_author_views ON posts(author_id, views DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_status_views ON posts(status, views DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id)`,
}

var postgresDrop = []string{
	`DROP TABLE IF EXISTS comments CASCADE`,
	`DROP TABLE IF EXISTS posts CASCADE`,
}

var clickhouseUp = []string{
	`CREATE TABLE IF NOT EXISTS analytics_events (
		event LowCardinality(String),
		client_id String,
		user_id UUID,
		post_id Nullable(String),
		post_status Nullable(String),
		location_id Nullable(Int32),
		device LowCardinality(String),
		duration Nullable(Int64),
		metadata String,
		created_at DateTime64(3, 'UTC')
	)
	ENGINE = MergeTree
	PARTITION BY toYYYYMM(created_at)
	ORDER BY (event, created_at)`,

	`CREATE TABLE IF NOT EXISTS raw_views (
		event_time DateTime64(3, 'UTC'),
		post_id String,
		user_id Nullable(UUID),
		client_id String,
		device LowCardinality(String),
		duration Nullable(Int64),
		ip String,
		referrer String,
		metadata String
	)
	ENGINE = MergeTree
	PARTITION BY toYYYYMM(event_time)
	ORDER BY (post_id, event_time)`,
}

var clickhouseDrop = []string{
	`DROP TABLE IF EXISTS raw_views`,
	`DROP TABLE IF EXISTS analytics_events`,
}

func seedData(ctx context.Context, conn *pgx.Conn) error {
	query := `
		INSERT INTO posts (author_id, title, slug, status, views, reads, likes) VALUES
		('11111111-1111-1111-1111-111111111111', 'Getting started with Go', 'getting-started-with-go', 'published', 120, 45, 12),
		('11111111-1111-1111-1111-111111111111', 'Channels in practice', 'channels-in-practice', 'published', 80, 30, 9),
		('11111111-1111-1111-1111-111111111111', 'Draft: error handling', 'draft-error-handling', 'draft', 0, 0, 0),
		('22222222-2222-2222-2222-222222222222', 'Profiling a web service', 'profiling-a-web-service', 'published', 64, 20, 5)
		ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			updated_at = NOW()
	`

	if _, err := conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to seed posts: %w", err)
	}
	fmt.Println("  Seeded 4 posts")

	comments := `
		INSERT INTO comments (post_id, author_id, body)
		SELECT id, '22222222-2222-2222-2222-222222222222', 'Great write-up'
		FROM posts WHERE slug = 'getting-started-with-go'
	`
	if _, err := conn.Exec(ctx, comments); err != nil {
		return fmt.Errorf("failed to seed comments: %w", err)
	}
	fmt.Println("  Seeded comments")

	return nil
}

func getTableName(query string) string {
	query = strings.Join(strings.Fields(query), " ")
	if len(query) > 50 {
		return query[:50] + "..."
	}
	return query
}
