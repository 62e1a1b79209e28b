package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/drill/internal/hermes"
	"github.com/MikeSquared-Agency/drill/internal/session"
	"github.com/MikeSquared-Agency/drill/internal/transcript"
)

const handlerTimeout = 10 * time.Second

// Engine is the part of the session engine driven by transport events.
type Engine interface {
	SessionForRoom(ctx context.Context, room string) (uuid.UUID, error)
	MarkConnected(ctx context.Context, id uuid.UUID) (*session.TrainingSession, error)
	ReportTransportError(ctx context.Context, id uuid.UUID, reason string) (*session.TrainingSession, error)
	IngestSegment(ctx context.Context, id uuid.UUID, seg transcript.Segment) (transcript.Message, transcript.Result, error)
}

type Publisher interface {
	Publish(subject string, data any) error
}

type Subscriber interface {
	Subscribe(subject string, handler func(subject string, data []byte)) error
}

type OutcomePoster interface {
	PostSessionOutcome(ctx context.Context, s session.TrainingSession) (string, error)
}

// Processor turns NATS transport events into engine calls and announces
// finished sessions.
type Processor struct {
	engine    Engine
	publisher Publisher
	poster    OutcomePoster
	logger    *slog.Logger
}

// New wires a processor. publisher and poster may be nil.
func New(engine Engine, publisher Publisher, poster OutcomePoster, logger *slog.Logger) *Processor {
	return &Processor{
		engine:    engine,
		publisher: publisher,
		poster:    poster,
		logger:    logger,
	}
}

// Subscribe registers the inbound transport handlers.
func (p *Processor) Subscribe(sub Subscriber) error {
	handlers := map[string]func(string, []byte){
		hermes.SubjectTranscriptSegment: p.HandleSegment,
		hermes.SubjectRoomConnected:     p.HandleRoomConnected,
		hermes.SubjectRoomError:         p.HandleRoomError,
	}
	for subject, h := range handlers {
		if err := sub.Subscribe(subject, h); err != nil {
			return err
		}
	}
	return nil
}

// HandleSegment is the NATS handler for drill.transcript.segment.
func (p *Processor) HandleSegment(subject string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var evt hermes.SegmentEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse segment event", "error", err)
		return
	}

	id, err := p.resolve(ctx, evt.SessionID, evt.RoomName)
	if err != nil {
		p.logger.Warn("segment for unknown session", "session_id", evt.SessionID, "room", evt.RoomName, "error", err)
		return
	}

	_, res, err := p.engine.IngestSegment(ctx, id, transcript.Segment{
		ChannelID: evt.ChannelID,
		SegmentID: evt.SegmentID,
		Text:      evt.Text,
		IsFinal:   evt.IsFinal,
	})
	if err != nil {
		p.logger.Warn("segment rejected", "session_id", id, "channel", evt.ChannelID, "segment", evt.SegmentID, "error", err)
		return
	}
	p.logger.Debug("segment ingested", "session_id", id, "segment", evt.SegmentID, "final", evt.IsFinal, "result", res.String())
}

// HandleRoomConnected is the NATS handler for drill.room.connected.
func (p *Processor) HandleRoomConnected(subject string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var evt hermes.RoomEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse room event", "subject", subject, "error", err)
		return
	}
	id, err := p.resolve(ctx, evt.SessionID, evt.RoomName)
	if err != nil {
		p.logger.Warn("connected event for unknown session", "session_id", evt.SessionID, "room", evt.RoomName, "error", err)
		return
	}
	if _, err := p.engine.MarkConnected(ctx, id); err != nil {
		p.logger.Warn("connected event rejected", "session_id", id, "error", err)
	}
}

// HandleRoomError is the NATS handler for drill.room.error.
func (p *Processor) HandleRoomError(subject string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var evt hermes.RoomEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse room event", "subject", subject, "error", err)
		return
	}
	id, err := p.resolve(ctx, evt.SessionID, evt.RoomName)
	if err != nil {
		p.logger.Warn("error event for unknown session", "session_id", evt.SessionID, "room", evt.RoomName, "error", err)
		return
	}
	if _, err := p.engine.ReportTransportError(ctx, id, evt.Reason); err != nil {
		p.logger.Warn("transport error event rejected", "session_id", id, "error", err)
	}
}

// SessionFinished publishes the lifecycle event and notifies supervisors.
func (p *Processor) SessionFinished(ctx context.Context, s session.TrainingSession) {
	evt := sessionEvent(s)
	subject := hermes.SubjectSessionFailed
	if s.Status == session.StatusCompleted {
		subject = hermes.SubjectSessionCompleted
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(subject, evt); err != nil {
			p.logger.Error("failed to publish session event", "subject", subject, "session_id", s.ID, "error", err)
		}
	}

	if p.poster != nil {
		if _, err := p.poster.PostSessionOutcome(ctx, s); err != nil {
			p.logger.Error("slack post failed", "session_id", s.ID, "error", err)
		}
	}
}

func (p *Processor) resolve(ctx context.Context, sessionID, roomName string) (uuid.UUID, error) {
	if sessionID != "" {
		id, err := uuid.Parse(sessionID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid session id %q: %w", sessionID, err)
		}
		return id, nil
	}
	if roomName == "" {
		return uuid.Nil, errors.New("event carries neither session_id nor room_name")
	}
	return p.engine.SessionForRoom(ctx, roomName)
}

func sessionEvent(s session.TrainingSession) hermes.SessionEvent {
	evt := hermes.SessionEvent{
		SessionID:       s.ID.String(),
		TraineeID:       s.TraineeID,
		ScenarioID:      s.ScenarioID,
		RoomName:        s.RoomName,
		Status:          string(s.Status),
		FailureReason:   s.FailureReason,
		FailedFrom:      string(s.FailedFrom),
		Retryable:       s.EvaluationRetryable(),
		MessageCount:    len(s.Transcript),
		DurationSeconds: int(s.Duration().Seconds()),
		Timestamp:       time.Now().UTC(),
	}
	if ev := s.Evaluation; ev != nil {
		score := ev.OverallScore
		evt.OverallScore = &score
		evt.OverallGrade = string(ev.OverallGrade)
		evt.Summary = ev.Summary
	}
	return evt
}
