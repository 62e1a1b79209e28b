// Package sqlitestore is an embedded session store for local runs and tests.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MikeSquared-Agency/drill/internal/evaluation"
	"github.com/MikeSquared-Agency/drill/internal/session"
	"github.com/MikeSquared-Agency/drill/internal/transcript"
)

const schema = `
CREATE TABLE IF NOT EXISTS training_sessions (
	id             TEXT PRIMARY KEY,
	trainee_id     TEXT NOT NULL,
	scenario_id    TEXT NOT NULL,
	room_name      TEXT NOT NULL UNIQUE,
	status         TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	started_at     TEXT,
	ended_at       TEXT,
	failure_reason TEXT NOT NULL DEFAULT '',
	failed_from    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS transcript_messages (
	session_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	segment_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	final      INTEGER NOT NULL,
	spoken_at  TEXT NOT NULL,
	PRIMARY KEY (session_id, message_id),
	FOREIGN KEY (session_id) REFERENCES training_sessions(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS evaluations (
	session_id    TEXT PRIMARY KEY,
	overall_score INTEGER NOT NULL,
	overall_grade TEXT NOT NULL,
	body          TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES training_sessions(id) ON DELETE CASCADE
);
`

// Store implements session.Store on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations. Use
// ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; also keeps ":memory:" to a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Create(ctx context.Context, ts *session.TrainingSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO training_sessions (id, trainee_id, scenario_id, room_name, status, created_at, started_at, ended_at, failure_reason, failed_from)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.ID.String(), ts.TraineeID, ts.ScenarioID, ts.RoomName, string(ts.Status),
		formatTime(ts.CreatedAt), formatTimePtr(ts.StartedAt), formatTimePtr(ts.EndedAt),
		ts.FailureReason, string(ts.FailedFrom),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, ts *session.TrainingSession) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE training_sessions
		 SET status = ?, started_at = ?, ended_at = ?, failure_reason = ?, failed_from = ?
		 WHERE id = ?`,
		string(ts.Status), formatTimePtr(ts.StartedAt), formatTimePtr(ts.EndedAt),
		ts.FailureReason, string(ts.FailedFrom), ts.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*session.TrainingSession, error) {
	return s.getWhere(ctx, "id = ?", id.String())
}

func (s *Store) GetByRoom(ctx context.Context, roomName string) (*session.TrainingSession, error) {
	return s.getWhere(ctx, "room_name = ?", roomName)
}

func (s *Store) getWhere(ctx context.Context, where string, arg any) (*session.TrainingSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, trainee_id, scenario_id, room_name, status, created_at, started_at, ended_at, failure_reason, failed_from
		 FROM training_sessions WHERE `+where, arg)

	var ts session.TrainingSession
	var id, status, createdAt, failedFrom string
	var startedAt, endedAt sql.NullString
	err := row.Scan(&id, &ts.TraineeID, &ts.ScenarioID, &ts.RoomName, &status,
		&createdAt, &startedAt, &endedAt, &ts.FailureReason, &failedFrom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if ts.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	ts.Status = session.Status(status)
	ts.FailedFrom = session.Status(failedFrom)
	if ts.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if ts.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if ts.EndedAt, err = parseNullTime(endedAt); err != nil {
		return nil, err
	}

	if ts.Transcript, err = s.transcript(ctx, id); err != nil {
		return nil, err
	}
	if ts.Evaluation, err = s.evaluation(ctx, id); err != nil {
		return nil, err
	}
	return &ts, nil
}

func (s *Store) transcript(ctx context.Context, id string) ([]transcript.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, channel_id, segment_id, role, content, final, spoken_at
		 FROM transcript_messages
		 WHERE session_id = ?
		 ORDER BY spoken_at ASC, message_id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var msgs []transcript.Message
	for rows.Next() {
		var m transcript.Message
		var role, spokenAt string
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SegmentID, &role, &m.Content, &m.Final, &spokenAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = transcript.Role(role)
		if m.Timestamp, err = parseTime(spokenAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) evaluation(ctx context.Context, id string) (*evaluation.Evaluation, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM evaluations WHERE session_id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	var ev evaluation.Evaluation
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	return &ev, nil
}

func (s *Store) AppendFinalTranscript(ctx context.Context, id uuid.UUID, msgs []transcript.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, m := range msgs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transcript_messages (session_id, message_id, channel_id, segment_id, role, content, final, spoken_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(session_id, message_id) DO UPDATE
			 SET content = excluded.content, final = excluded.final, spoken_at = excluded.spoken_at`,
			id.String(), m.ID, m.ChannelID, m.SegmentID, string(m.Role), m.Content, m.Final, formatTime(m.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) AttachEvaluation(ctx context.Context, id uuid.UUID, ev *evaluation.Evaluation) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode evaluation: %w", err)
	}
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO evaluations (session_id, overall_score, overall_grade, body, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		id.String(), ev.OverallScore, string(ev.OverallGrade), string(body), formatTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
