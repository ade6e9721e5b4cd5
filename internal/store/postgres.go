package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthsphere/healthsphere/internal/conversation"
	"github.com/healthsphere/healthsphere/internal/reliability"
)

const (
	connectAttempts    = 4
	connectBackoffBase = 500 * time.Millisecond
	connectBackoffCap  = 5 * time.Second
)

// PostgresStore persists consultation sessions in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pingWithRetry(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func pingWithRetry(ctx context.Context, pool *pgxpool.Pool) error {
	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		if lastErr = pool.Ping(ctx); lastErr == nil {
			return nil
		}
		wait := reliability.ExponentialBackoff(attempt, connectBackoffBase, connectBackoffCap)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("ping postgres after %d attempts: %w", connectAttempts, lastErr)
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS consultation_sessions (
			session_id TEXT PRIMARY KEY,
			created_by TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			specialist_id TEXT NOT NULL DEFAULT 'general',
			conversation JSONB NOT NULL DEFAULT '[]'::jsonb,
			report TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_consultation_sessions_created_by ON consultation_sessions (created_by, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, record SessionRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	payload, err := marshalConversation(record.Conversation)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO consultation_sessions (session_id, created_by, notes, specialist_id, conversation, report, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		record.SessionID,
		record.CreatedBy,
		record.Notes,
		record.SpecialistID,
		payload,
		record.Report,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (SessionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT session_id, created_by, notes, specialist_id, conversation, report, created_at, updated_at
		 FROM consultation_sessions WHERE session_id=$1`,
		sessionID,
	)
	record, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, createdBy string, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT session_id, created_by, notes, specialist_id, conversation, report, created_at, updated_at
		 FROM consultation_sessions`
	args := []any{}
	if createdBy != "" {
		query += ` WHERE created_by=$1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, createdBy, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	items := make([]SessionRecord, 0, limit)
	for rows.Next() {
		record, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		items = append(items, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SaveConversation(ctx context.Context, sessionID string, turns []conversation.Turn) error {
	payload, err := marshalConversation(turns)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE consultation_sessions SET conversation=$2, updated_at=now() WHERE session_id=$1`,
		sessionID, payload,
	)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveReport(ctx context.Context, sessionID, report string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE consultation_sessions SET report=$2, updated_at=now() WHERE session_id=$1`,
		sessionID, report,
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func marshalConversation(turns []conversation.Turn) ([]byte, error) {
	if turns == nil {
		turns = []conversation.Turn{}
	}
	payload, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("marshal conversation: %w", err)
	}
	return payload, nil
}

func scanSession(row pgx.Row) (SessionRecord, error) {
	var (
		record  SessionRecord
		payload []byte
	)
	if err := row.Scan(
		&record.SessionID,
		&record.CreatedBy,
		&record.Notes,
		&record.SpecialistID,
		&payload,
		&record.Report,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return SessionRecord{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &record.Conversation); err != nil {
			return SessionRecord{}, fmt.Errorf("unmarshal conversation: %w", err)
		}
	}
	return record, nil
}
