// Package tokens holds the API token store that guards mutating routes.
// Tokens live in Postgres and are cached in memory; the cache is refreshed
// periodically so new tokens take effect without a restart.
package tokens

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"reactormap/internal/config"
	"reactormap/internal/logging"
)

var store struct {
	sync.RWMutex
	cache map[string]int
}

var tokenDB struct {
	sync.Mutex
	dsn string
	db  *sql.DB
}

var (
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrStoreNotReady signals that the token store has not been loaded yet.
	// This can happen during startup when the DB isn't ready.
	ErrStoreNotReady = errors.New("token store not ready")
)

func getDB(cfg config.PostgresConfig) (*sql.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	tokenDB.Lock()
	defer tokenDB.Unlock()

	if tokenDB.db != nil && tokenDB.dsn == dsn {
		return tokenDB.db, nil
	}
	if tokenDB.db != nil {
		_ = tokenDB.db.Close()
		tokenDB.db = nil
		tokenDB.dsn = ""
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Small, low-throughput control plane table.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	tokenDB.db = db
	tokenDB.dsn = dsn
	return tokenDB.db, nil
}

func ensureSchema(cfg config.PostgresConfig) error {
	db, err := getDB(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ddl1 := `CREATE TABLE IF NOT EXISTS tokens (
		token TEXT PRIMARY KEY,
		rate_limit INTEGER NOT NULL DEFAULT 60,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		comment TEXT
	);`
	ddl2 := `CREATE INDEX IF NOT EXISTS idx_tokens_created_at ON tokens (created_at);`
	if _, err := db.ExecContext(ctx, ddl1); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, ddl2); err != nil {
		return err
	}
	return nil
}

// LoadFromPostgres reads all API tokens and their rate limits from Postgres
// and stores them in the in-memory cache.
func LoadFromPostgres(cfg config.PostgresConfig) error {
	if err := ensureSchema(cfg); err != nil {
		return err
	}

	db, err := getDB(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, `SELECT token, rate_limit FROM tokens;`)
	if err != nil {
		return err
	}
	defer rows.Close()

	cache := make(map[string]int)
	for rows.Next() {
		var token string
		var limit int
		if err := rows.Scan(&token, &limit); err != nil {
			return err
		}
		cache[token] = limit
	}
	if err := rows.Err(); err != nil {
		return err
	}

	store.Lock()
	store.cache = cache
	store.Unlock()
	return nil
}

// LoadFromMap replaces the current token cache with the provided map. Helper
// for tests and local debugging.
func LoadFromMap(m map[string]int) {
	cache := make(map[string]int)
	for k, v := range m {
		cache[k] = v
	}
	store.Lock()
	store.cache = cache
	store.Unlock()
}

// Ready returns true once the token cache has been initialized.
func Ready() bool {
	store.RLock()
	defer store.RUnlock()
	return store.cache != nil
}

// Validate checks whether the given token exists in the cache.
func Validate(token string) bool {
	store.RLock()
	defer store.RUnlock()
	_, ok := store.cache[token]
	return ok
}

// RateLimit returns the configured rate limit for the given token. Unknown
// tokens get 0, which disables token-based limiting for them.
func RateLimit(token string) int {
	store.RLock()
	defer store.RUnlock()
	if limit, ok := store.cache[token]; ok {
		return limit
	}
	return 0
}

// RefreshPeriodically reloads the token cache from Postgres at the given
// interval until stop is closed.
func RefreshPeriodically(cfg config.PostgresConfig, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := LoadFromPostgres(cfg); err != nil {
				logging.Error("Failed to reload API tokens", "error", err)
			}
		case <-stop:
			return
		}
	}
}
