package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/drill/internal/evaluation"
	"github.com/MikeSquared-Agency/drill/internal/transcript"
)

// Store persists sessions. Get and GetByRoom return ErrNotFound for unknown
// keys. AppendFinalTranscript and AttachEvaluation are idempotent.
type Store interface {
	Create(ctx context.Context, s *TrainingSession) error
	Update(ctx context.Context, s *TrainingSession) error
	Get(ctx context.Context, id uuid.UUID) (*TrainingSession, error)
	GetByRoom(ctx context.Context, roomName string) (*TrainingSession, error)
	AppendFinalTranscript(ctx context.Context, id uuid.UUID, messages []transcript.Message) error
	AttachEvaluation(ctx context.Context, id uuid.UUID, ev *evaluation.Evaluation) error
}
