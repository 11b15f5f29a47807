package intake

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresQueueTableName    = "dupeguard_event_queue"
	postgresQueueKey          = "orders_create"
	postgresOperationTimeout  = 5 * time.Second
	postgresQueuePollInterval = 50 * time.Millisecond
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresQueue shares one event queue between several dupeguard processes.
// Capacity is enforced under an advisory lock; dequeue uses SKIP LOCKED.
type PostgresQueue struct {
	dsn          string
	tableName    string
	queueKey     string
	capacity     int
	pollInterval time.Duration
	openDB       sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresQueue(dsn string, capacity int) (*PostgresQueue, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &PostgresQueue{
		dsn:          dsn,
		tableName:    postgresQueueTableName,
		queueKey:     postgresQueueKey,
		capacity:     capacity,
		pollInterval: postgresQueuePollInterval,
		openDB:       sql.Open,
	}, nil
}

func (q *PostgresQueue) ensureReady() error {
	if q == nil {
		return ErrInvalidInput
	}
	q.initOnce.Do(func() {
		db, err := q.openDB("postgres", q.dsn)
		if err != nil {
			q.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		createTableQuery := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				queue_key TEXT NOT NULL,
				payload TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, quoteIdentifier(q.tableName))
		if _, err := db.ExecContext(ctx, createTableQuery); err != nil {
			_ = db.Close()
			q.initErr = err
			return
		}
		createIndexQuery := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (queue_key, id)",
			quoteIdentifier(q.tableName+"_queue_key_id_idx"),
			quoteIdentifier(q.tableName),
		)
		if _, err := db.ExecContext(ctx, createIndexQuery); err != nil {
			_ = db.Close()
			q.initErr = err
			return
		}
		q.db = db
	})
	return q.initErr
}

func (q *PostgresQueue) TryEnqueue(event Event) bool {
	if q == nil || !event.valid() {
		return false
	}
	payload, err := encodeEvent(event)
	if err != nil {
		return false
	}
	if err := q.ensureReady(); err != nil {
		slog.Warn("postgres event queue unavailable", "error", err)
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return false
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", queueLockKey(q.tableName, q.queueKey)); err != nil {
		return false
	}
	var depth int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE queue_key = $1", quoteIdentifier(q.tableName))
	if err := tx.QueryRowContext(ctx, countQuery, q.queueKey).Scan(&depth); err != nil {
		return false
	}
	if depth >= q.capacity {
		return false
	}
	insertQuery := fmt.Sprintf("INSERT INTO %s (queue_key, payload, created_at) VALUES ($1, $2, NOW())", quoteIdentifier(q.tableName))
	if _, err := tx.ExecContext(ctx, insertQuery, q.queueKey, payload); err != nil {
		return false
	}
	if err := tx.Commit(); err != nil {
		return false
	}
	committed = true
	return true
}

func (q *PostgresQueue) Enqueue(ctx context.Context, event Event) bool {
	for {
		if q.TryEnqueue(event) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *PostgresQueue) Dequeue(ctx context.Context) (Event, bool) {
	for {
		if event, ok := q.tryDequeue(ctx); ok {
			return event, true
		}
		select {
		case <-ctx.Done():
			return Event{}, false
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *PostgresQueue) tryDequeue(ctx context.Context) (Event, bool) {
	if err := q.ensureReady(); err != nil {
		return Event{}, false
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return Event{}, false
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	query := fmt.Sprintf(`
		SELECT id, payload
		FROM %s
		WHERE queue_key = $1
		ORDER BY id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, quoteIdentifier(q.tableName))
	var id int64
	var payload string
	err = tx.QueryRowContext(ctx, query, q.queueKey).Scan(&id, &payload)
	if errors.Is(err, sql.ErrNoRows) || err != nil {
		return Event{}, false
	}
	deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE id = $1", quoteIdentifier(q.tableName))
	if _, err := tx.ExecContext(ctx, deleteQuery, id); err != nil {
		return Event{}, false
	}
	if err := tx.Commit(); err != nil {
		return Event{}, false
	}
	committed = true

	event, err := decodeEvent(payload)
	if err != nil {
		slog.Warn("dropping undecodable queued event", "row_id", id, "error", err)
		return Event{}, false
	}
	return event, true
}

func (q *PostgresQueue) Depth() int {
	if err := q.ensureReady(); err != nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	var depth int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE queue_key = $1", quoteIdentifier(q.tableName))
	if err := q.db.QueryRowContext(ctx, query, q.queueKey).Scan(&depth); err != nil {
		return 0
	}
	return depth
}

func (q *PostgresQueue) Capacity() int {
	return q.capacity
}

func (q *PostgresQueue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func queueLockKey(tableName, queueKey string) int64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(strings.TrimSpace(tableName)))
	_, _ = hasher.Write([]byte{0})
	_, _ = hasher.Write([]byte(strings.TrimSpace(queueKey)))
	return int64(hasher.Sum64())
}
