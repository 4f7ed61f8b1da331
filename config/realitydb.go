package config

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// The Reality DB feed is a plain row-oriented MySQL source. It is read with
// database/sql directly; the canonical store (GORM/Postgres) stays separate.

var (
	realityDB   *sql.DB
	realityDBMu sync.Mutex
)

// GetRealityDB opens (once) and returns the feed connection pool.
func GetRealityDB() (*sql.DB, error) {
	realityDBMu.Lock()
	defer realityDBMu.Unlock()

	if realityDB != nil {
		return realityDB, nil
	}

	host := os.Getenv("REALITY_DB_HOST")
	port := os.Getenv("REALITY_DB_PORT")
	if port == "" {
		port = "3306"
	}
	user := os.Getenv("REALITY_DB_USER")
	password := os.Getenv("REALITY_DB_PASSWORD")
	name := os.Getenv("REALITY_DB_NAME")

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", user, password, host, port, name)
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(intFromEnv("REALITY_DB_MAX_OPEN_CONNS", 10))
	conn.SetConnMaxLifetime(5 * time.Minute)

	realityDB = conn
	return realityDB, nil
}

const realityRetryDelay = 30 * time.Second

// GuardedQuery runs the statement against the feed, retrying every 30s on
// transient connection errors until it succeeds. The feed jobs are scheduled
// background work, so eventual availability wins over fail-fast here.
func GuardedQuery(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	for {
		conn, err := GetRealityDB()
		if err != nil {
			return nil, err
		}
		rows, err := conn.QueryContext(ctx, query, args...)
		if err == nil {
			return rows, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("reality db query failed: %v; retrying in %s", err, realityRetryDelay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(realityRetryDelay):
		}
	}
}
