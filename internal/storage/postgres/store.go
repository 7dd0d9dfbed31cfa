package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	defaultPingTimeout     = 5 * time.Second
	defaultMaxConns        = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	// Имя сессии видно в pg_stat_activity и помогает отличать биллинг от сверки.
	DefaultApplicationName = "pos-billing"
)

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// StoreOptions — параметры сессии и пула подключений.
type StoreOptions struct {
	ApplicationName string
	MaxConns        int
	// StatementTimeout и LockTimeout передаются серверу как параметры сессии.
	// Ноль оставляет настройку сервера.
	StatementTimeout time.Duration
	LockTimeout      time.Duration
}

// StoreOption меняет StoreOptions.
type StoreOption func(*StoreOptions)

// WithApplicationName задаёт application_name, если DSN его не содержит.
func WithApplicationName(name string) StoreOption {
	return func(o *StoreOptions) {
		if name != "" {
			o.ApplicationName = name
		}
	}
}

// WithMaxConns ограничивает пул. Неположительные значения игнорируются.
func WithMaxConns(n int) StoreOption {
	return func(o *StoreOptions) {
		if n > 0 {
			o.MaxConns = n
		}
	}
}

// WithStatementTimeout ограничивает время одного запроса на стороне сервера.
func WithStatementTimeout(d time.Duration) StoreOption {
	return func(o *StoreOptions) {
		if d >= 0 {
			o.StatementTimeout = d
		}
	}
}

// WithLockTimeout ограничивает ожидание блокировок строк (например, FOR UPDATE по счёту).
func WithLockTimeout(d time.Duration) StoreOption {
	return func(o *StoreOptions) {
		if d >= 0 {
			o.LockTimeout = d
		}
	}
}

// Store держит пул подключений к PostgreSQL, общий для всех репозиториев.
type Store struct {
	db      *sql.DB
	options StoreOptions
}

// Open разбирает DSN, настраивает сессию и пул и проверяет доступность базы.
func Open(ctx context.Context, dsn string, opts ...StoreOption) (*Store, error) {
	options := StoreOptions{
		ApplicationName: DefaultApplicationName,
		MaxConns:        defaultMaxConns,
	}
	for _, opt := range opts {
		opt(&options)
	}

	connConfig, err := buildConnConfig(dsn, options)
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*connConfig)
	db.SetMaxOpenConns(options.MaxConns)
	db.SetMaxIdleConns(options.MaxConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	store := &Store{db: db, options: options}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// buildConnConfig переносит StoreOptions в параметры сессии. Значения,
// заданные в DSN явно, имеют приоритет.
func buildConnConfig(dsn string, options StoreOptions) (*pgx.ConnConfig, error) {
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if connConfig.RuntimeParams == nil {
		connConfig.RuntimeParams = make(map[string]string)
	}

	setDefault := func(key, value string) {
		if value == "" {
			return
		}
		if _, ok := connConfig.RuntimeParams[key]; ok {
			return
		}
		connConfig.RuntimeParams[key] = value
	}

	setDefault("application_name", options.ApplicationName)
	setDefault("statement_timeout", millis(options.StatementTimeout))
	setDefault("lock_timeout", millis(options.LockTimeout))
	return connConfig, nil
}

func millis(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return strconv.FormatInt(d.Milliseconds(), 10)
}

// DB возвращает пул для репозиториев пакета и интеграционных тестов.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Options возвращает параметры, с которыми открыт пул.
func (s *Store) Options() StoreOptions {
	if s == nil {
		return StoreOptions{}
	}
	return s.options
}

// Ping проверяет доступность базы; используется health-check'ом сервиса.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// StatsCollector отдаёт метрики пула (open/in_use/wait_count) для Prometheus.
func (s *Store) StatsCollector() (prometheus.Collector, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotInitialized
	}
	return collectors.NewDBStatsCollector(s.db, s.options.ApplicationName), nil
}

// Close закрывает пул.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
