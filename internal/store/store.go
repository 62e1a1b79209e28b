package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS training_sessions (
	id             UUID PRIMARY KEY,
	trainee_id     TEXT NOT NULL,
	scenario_id    TEXT NOT NULL,
	room_name      TEXT NOT NULL UNIQUE,
	status         TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	started_at     TIMESTAMPTZ,
	ended_at       TIMESTAMPTZ,
	failure_reason TEXT NOT NULL DEFAULT '',
	failed_from    TEXT NOT NULL DEFAULT '',
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS training_sessions_trainee_idx ON training_sessions (trainee_id, created_at DESC);

CREATE TABLE IF NOT EXISTS transcript_messages (
	session_id UUID NOT NULL REFERENCES training_sessions (id) ON DELETE CASCADE,
	message_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	segment_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	final      BOOLEAN NOT NULL,
	spoken_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, message_id)
);

CREATE TABLE IF NOT EXISTS evaluations (
	session_id    UUID PRIMARY KEY REFERENCES training_sessions (id) ON DELETE CASCADE,
	overall_score INTEGER NOT NULL,
	overall_grade TEXT NOT NULL,
	rubric        TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	body          JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
`

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the session tables when they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}
