package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/drill/internal/evaluation"
	"github.com/MikeSquared-Agency/drill/internal/session"
	"github.com/MikeSquared-Agency/drill/internal/transcript"
)

const selectSession = `
	SELECT id, trainee_id, scenario_id, room_name, status, created_at, started_at, ended_at, failure_reason, failed_from
	FROM training_sessions`

func (s *Store) Create(ctx context.Context, ts *session.TrainingSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO training_sessions (id, trainee_id, scenario_id, room_name, status, created_at, started_at, ended_at, failure_reason, failed_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ts.ID, ts.TraineeID, ts.ScenarioID, ts.RoomName, string(ts.Status), ts.CreatedAt,
		ts.StartedAt, ts.EndedAt, ts.FailureReason, string(ts.FailedFrom),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Update writes the session's status fields. Transcript and evaluation are
// written separately.
func (s *Store) Update(ctx context.Context, ts *session.TrainingSession) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE training_sessions
		SET status = $2, started_at = $3, ended_at = $4, failure_reason = $5, failed_from = $6, updated_at = now()
		WHERE id = $1`,
		ts.ID, string(ts.Status), ts.StartedAt, ts.EndedAt, ts.FailureReason, string(ts.FailedFrom),
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*session.TrainingSession, error) {
	return s.getWhere(ctx, "id = $1", id)
}

func (s *Store) GetByRoom(ctx context.Context, roomName string) (*session.TrainingSession, error) {
	return s.getWhere(ctx, "room_name = $1", roomName)
}

func (s *Store) getWhere(ctx context.Context, where string, arg any) (*session.TrainingSession, error) {
	row := s.pool.QueryRow(ctx, selectSession+" WHERE "+where, arg)

	var ts session.TrainingSession
	var status, failedFrom string
	err := row.Scan(&ts.ID, &ts.TraineeID, &ts.ScenarioID, &ts.RoomName, &status,
		&ts.CreatedAt, &ts.StartedAt, &ts.EndedAt, &ts.FailureReason, &failedFrom)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	ts.Status = session.Status(status)
	ts.FailedFrom = session.Status(failedFrom)

	if ts.Transcript, err = s.transcript(ctx, ts.ID); err != nil {
		return nil, err
	}
	if ts.Evaluation, err = s.evaluation(ctx, ts.ID); err != nil {
		return nil, err
	}
	return &ts, nil
}

func (s *Store) transcript(ctx context.Context, id uuid.UUID) ([]transcript.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT message_id, channel_id, segment_id, role, content, final, spoken_at
		FROM transcript_messages
		WHERE session_id = $1
		ORDER BY spoken_at, message_id`, id)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var msgs []transcript.Message
	for rows.Next() {
		var m transcript.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SegmentID, &role, &m.Content, &m.Final, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = transcript.Role(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return msgs, nil
}

func (s *Store) evaluation(ctx context.Context, id uuid.UUID) (*evaluation.Evaluation, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM evaluations WHERE session_id = $1`, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	var ev evaluation.Evaluation
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	return &ev, nil
}

// AppendFinalTranscript upserts messages by id, so repeated writes of the
// same frozen transcript leave one row per message.
func (s *Store) AppendFinalTranscript(ctx context.Context, id uuid.UUID, msgs []transcript.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range msgs {
		_, err := tx.Exec(ctx, `
			INSERT INTO transcript_messages (session_id, message_id, channel_id, segment_id, role, content, final, spoken_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (session_id, message_id) DO UPDATE
			SET content = EXCLUDED.content, final = EXCLUDED.final, spoken_at = EXCLUDED.spoken_at`,
			id, m.ID, m.ChannelID, m.SegmentID, string(m.Role), m.Content, m.Final, m.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AttachEvaluation stores the first evaluation for a session; later calls
// are no-ops.
func (s *Store) AttachEvaluation(ctx context.Context, id uuid.UUID, ev *evaluation.Evaluation) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode evaluation: %w", err)
	}
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO evaluations (session_id, overall_score, overall_grade, rubric, model, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO NOTHING`,
		id, ev.OverallScore, string(ev.OverallGrade), ev.Rubric, ev.Model, body, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}
