package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/drill/internal/evaluation"
	"github.com/MikeSquared-Agency/drill/internal/provision"
	"github.com/MikeSquared-Agency/drill/internal/scenario"
	"github.com/MikeSquared-Agency/drill/internal/transcript"
)

const (
	DefaultConnectTimeout = 30 * time.Second
	storeTimeout          = 10 * time.Second
)

type Provisioner interface {
	Provision(ctx context.Context, traineeID, scenarioID string) (provision.Connection, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, req evaluation.Request) (*evaluation.Evaluation, error)
}

// Notifier hears about sessions that reached a terminal state.
type Notifier interface {
	SessionFinished(ctx context.Context, s TrainingSession)
}

type Config struct {
	ConnectTimeout time.Duration
}

// Engine drives every live session through its state machine. The engine
// lock only guards the registry; each session is mutated under its own lock.
type Engine struct {
	store    Store
	prov     Provisioner
	eval     Evaluator
	notifier Notifier
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
	rooms    map[string]uuid.UUID
}

// entry is the per-session owner. busy marks a long transition (scoring)
// that runs without holding mu.
type entry struct {
	mu       sync.Mutex
	sess     TrainingSession
	rec      *transcript.Reconciler
	timer    *time.Timer
	busy     bool
	done     chan struct{}
	cancelOp context.CancelFunc
	cancel   string
	pending  *evaluation.Evaluation
}

func NewEngine(store Store, prov Provisioner, eval Evaluator, cfg Config, logger *slog.Logger) *Engine {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	return &Engine{
		store:    store,
		prov:     prov,
		eval:     eval,
		logger:   logger,
		timeout:  cfg.ConnectTimeout,
		now:      time.Now,
		sessions: make(map[uuid.UUID]*entry),
		rooms:    make(map[string]uuid.UUID),
	}
}

// SetNotifier registers the terminal-state listener. Call before serving.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// Start provisions a room and registers a Connecting session. Provisioning
// errors are returned as-is and leave nothing behind.
func (e *Engine) Start(ctx context.Context, traineeID, scenarioID string) (*TrainingSession, provision.Connection, error) {
	if scenarioID == "" {
		scenarioID = scenario.DefaultID
	}
	if _, err := scenario.Lookup(scenarioID); err != nil {
		return nil, provision.Connection{}, fmt.Errorf("%w: %s", err, scenarioID)
	}

	s := TrainingSession{
		ID:         uuid.New(),
		TraineeID:  traineeID,
		ScenarioID: scenarioID,
		Status:     StatusCreated,
		CreatedAt:  e.now().UTC(),
	}

	conn, err := e.prov.Provision(ctx, traineeID, scenarioID)
	if err != nil {
		e.logger.Warn("provisioning failed", "trainee_id", traineeID, "scenario_id", scenarioID, "error", err)
		return nil, provision.Connection{}, err
	}
	s.RoomName = conn.RoomName
	s.Status = StatusConnecting

	if err := e.store.Create(ctx, &s); err != nil {
		return nil, provision.Connection{}, fmt.Errorf("%w: create session: %w", ErrPersistence, err)
	}

	en := &entry{sess: s, rec: transcript.NewReconciler()}
	id := s.ID

	e.mu.Lock()
	e.sessions[id] = en
	e.rooms[s.RoomName] = id
	e.mu.Unlock()

	// Armed only once the entry is reachable by connectTimedOut.
	en.mu.Lock()
	if en.sess.Status == StatusConnecting {
		en.timer = time.AfterFunc(e.timeout, func() { e.connectTimedOut(id) })
	}
	en.mu.Unlock()

	e.logger.Info("session started",
		"session_id", id,
		"trainee_id", traineeID,
		"scenario_id", scenarioID,
		"room", s.RoomName,
	)
	return &s, conn, nil
}

// MarkConnected handles the transport's connected notification. A repeated
// notification for an Active session is a no-op.
func (e *Engine) MarkConnected(ctx context.Context, id uuid.UUID) (*TrainingSession, error) {
	en, err := e.live(ctx, id)
	if err != nil {
		return nil, err
	}

	en.mu.Lock()
	defer en.mu.Unlock()

	if en.busy {
		return nil, ErrTransitionInFlight
	}
	if en.sess.Status == StatusActive {
		s := en.snapshot()
		return &s, nil
	}
	if !CanTransition(en.sess.Status, StatusActive) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, en.sess.Status, StatusActive)
	}

	next := en.sess
	now := e.now().UTC()
	next.StartedAt = &now
	next.Status = StatusActive
	if err := e.store.Update(ctx, &next); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if en.timer != nil {
		en.timer.Stop()
	}
	en.sess = next

	e.logger.Info("session active", "session_id", id, "room", next.RoomName)
	s := en.snapshot()
	return &s, nil
}

// ReportTransportError fails a Connecting or Active session.
func (e *Engine) ReportTransportError(ctx context.Context, id uuid.UUID, reason string) (*TrainingSession, error) {
	en, err := e.live(ctx, id)
	if err != nil {
		return nil, err
	}

	en.mu.Lock()
	if en.busy {
		en.mu.Unlock()
		return nil, ErrTransitionInFlight
	}
	st := en.sess.Status
	if st != StatusConnecting && st != StatusActive {
		en.mu.Unlock()
		return nil, fmt.Errorf("%w: transport error in %s", ErrInvalidTransition, st)
	}
	if reason == "" {
		reason = "connection lost"
	}
	s := e.failLocked(ctx, en, fmt.Sprintf("%s: %s", ErrTransport, reason), true)
	en.mu.Unlock()

	e.finished(s)
	return &s, nil
}

func (e *Engine) connectTimedOut(id uuid.UUID) {
	e.mu.Lock()
	en, ok := e.sessions[id]
	e.mu.Unlock()
	if !ok {
		return
	}

	en.mu.Lock()
	if en.busy || en.sess.Status != StatusConnecting {
		en.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	s := e.failLocked(ctx, en, fmt.Sprintf("%s: transport did not connect within %s", ErrConnectionTimeout, e.timeout), true)
	en.mu.Unlock()

	e.logger.Warn("session connect timeout", "session_id", id, "timeout", e.timeout)
	e.finished(s)
}

// IngestSegment feeds one transcriber event into the session's reconciler.
// It is rejected until the session is Active; segments for sessions past
// Active are discarded.
func (e *Engine) IngestSegment(ctx context.Context, id uuid.UUID, seg transcript.Segment) (transcript.Message, transcript.Result, error) {
	e.mu.Lock()
	en, ok := e.sessions[id]
	e.mu.Unlock()
	if !ok {
		if _, err := e.store.Get(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				return transcript.Message{}, transcript.Ignored, ErrNotFound
			}
			return transcript.Message{}, transcript.Ignored, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		return transcript.Message{}, transcript.Discarded, nil
	}

	en.mu.Lock()
	st := en.sess.Status
	if st == StatusConnecting || st == StatusCreated {
		en.mu.Unlock()
		return transcript.Message{}, transcript.Ignored, fmt.Errorf("%w: segment while %s", ErrInvalidTransition, st)
	}
	msg, res, err := en.rec.Apply(seg)
	en.mu.Unlock()
	if err != nil {
		return msg, res, err
	}
	if res == transcript.Discarded {
		e.logger.Debug("late segment discarded", "session_id", id, "channel", seg.ChannelID, "segment", seg.SegmentID)
	}
	return msg, res, nil
}

// End freezes the transcript and scores it. It blocks for the scorer call.
func (e *Engine) End(ctx context.Context, id uuid.UUID) (*TrainingSession, error) {
	en, err := e.live(ctx, id)
	if err != nil {
		return nil, err
	}

	en.mu.Lock()
	if en.busy {
		en.mu.Unlock()
		return nil, ErrTransitionInFlight
	}
	if en.sess.Status != StatusActive {
		st := en.sess.Status
		en.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, st, StatusEnding)
	}

	now := e.now().UTC()
	next := en.sess
	next.EndedAt = &now
	next.Status = StatusEnding
	next.Transcript = en.rec.Freeze()
	if err := e.store.Update(ctx, &next); err != nil {
		e.logger.Warn("failed to persist ending session", "session_id", id, "error", err)
	}
	// The frozen transcript is the only input to a later retry.
	if len(next.Transcript) > 0 {
		if err := e.store.AppendFinalTranscript(ctx, id, next.Transcript); err != nil {
			e.logger.Warn("failed to persist frozen transcript", "session_id", id, "error", err)
		}
	}
	en.sess = next

	e.logger.Info("session ending",
		"session_id", id,
		"messages", len(next.Transcript),
		"duration_s", int(next.Duration().Seconds()),
	)

	return e.runEvaluation(ctx, en)
}

// RetryEvaluation reruns only the scoring step, or re-attaches an
// evaluation whose persistence failed. Transcript collection is never
// repeated.
func (e *Engine) RetryEvaluation(ctx context.Context, id uuid.UUID) (*TrainingSession, error) {
	en, err := e.retryEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if en == nil {
		// already completed
		return e.Get(ctx, id)
	}

	en.mu.Lock()
	if en.busy {
		en.mu.Unlock()
		return nil, ErrTransitionInFlight
	}

	if en.pending != nil && en.sess.Status == StatusEvaluating {
		s, err := e.completeLocked(ctx, en, en.pending)
		en.mu.Unlock()
		if err != nil {
			return nil, err
		}
		e.finished(s)
		return &s, nil
	}

	if !en.sess.EvaluationRetryable() && !(en.sess.Status == StatusEvaluating || en.sess.Status == StatusEnding) {
		st := en.sess.Status
		en.mu.Unlock()
		return nil, fmt.Errorf("%w: status %s", ErrNotRetryable, st)
	}

	e.logger.Info("retrying evaluation", "session_id", id, "previous_failure", en.sess.FailureReason)
	en.sess.FailureReason = ""
	en.sess.FailedFrom = ""
	en.sess.Status = StatusEnding
	return e.runEvaluation(ctx, en)
}

// runEvaluation takes en.mu held with the session in Ending, releases it
// while the scorer runs and returns with it released.
func (e *Engine) runEvaluation(ctx context.Context, en *entry) (*TrainingSession, error) {
	id := en.sess.ID
	en.sess.Status = StatusEvaluating
	if err := e.store.Update(ctx, &en.sess); err != nil {
		e.logger.Warn("failed to persist evaluating session", "session_id", id, "error", err)
	}

	sc, err := scenario.Lookup(en.sess.ScenarioID)
	if err != nil {
		sc = scenario.Scenario{ID: en.sess.ScenarioID, Name: en.sess.ScenarioID}
	}
	req := evaluation.Request{
		SessionID:  id.String(),
		Transcript: finalOnly(en.sess.Transcript),
		Scenario:   sc,
		Duration:   en.sess.Duration(),
	}

	// Store writes after scoring must outlive the caller's request.
	ctx = context.WithoutCancel(ctx)
	opCtx, cancel := context.WithCancel(ctx)
	en.busy = true
	en.done = make(chan struct{})
	en.cancelOp = cancel
	en.mu.Unlock()

	ev, evalErr := e.eval.Evaluate(opCtx, req)
	cancel()

	en.mu.Lock()
	en.busy = false
	en.cancelOp = nil
	done := en.done
	en.done = nil
	defer close(done)

	if en.cancel != "" {
		reason := en.cancel
		en.cancel = ""
		s := e.failLocked(ctx, en, reason, false)
		en.mu.Unlock()
		e.finished(s)
		return &s, ErrCancelled
	}

	if evalErr != nil {
		s := e.failLocked(ctx, en, evaluationFailureReason(evalErr), false)
		en.mu.Unlock()
		e.logger.Error("evaluation failed", "session_id", id, "error", evalErr)
		e.finished(s)
		return &s, evalErr
	}

	s, err := e.completeLocked(ctx, en, ev)
	en.mu.Unlock()
	if err != nil {
		return nil, err
	}
	e.finished(s)
	return &s, nil
}

// completeLocked persists the evaluation and moves to Completed. On a store
// error the evaluation is kept as pending and the session stays Evaluating.
func (e *Engine) completeLocked(ctx context.Context, en *entry, ev *evaluation.Evaluation) (TrainingSession, error) {
	id := en.sess.ID
	en.pending = ev

	if err := e.store.AppendFinalTranscript(ctx, id, en.sess.Transcript); err != nil {
		e.logger.Error("failed to persist transcript", "session_id", id, "error", err)
		return TrainingSession{}, fmt.Errorf("%w: transcript: %w", ErrPersistence, err)
	}
	if err := e.store.AttachEvaluation(ctx, id, ev); err != nil {
		e.logger.Error("failed to attach evaluation", "session_id", id, "error", err)
		return TrainingSession{}, fmt.Errorf("%w: evaluation: %w", ErrPersistence, err)
	}

	next := en.sess
	next.Status = StatusCompleted
	next.Evaluation = ev
	if err := e.store.Update(ctx, &next); err != nil {
		e.logger.Error("failed to persist completed session", "session_id", id, "error", err)
		return TrainingSession{}, fmt.Errorf("%w: status: %w", ErrPersistence, err)
	}

	en.sess = next
	en.pending = nil
	e.evict(en)

	e.logger.Info("session completed",
		"session_id", id,
		"score", ev.OverallScore,
		"grade", ev.OverallGrade,
	)
	return en.snapshot(), nil
}

// Cancel abandons a session from any non-terminal state. An in-flight
// scoring call is interrupted and Cancel waits for it to unwind.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID, reason string) (*TrainingSession, error) {
	en, err := e.live(ctx, id)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "abandoned"
	}
	reason = fmt.Sprintf("%s: %s", ErrCancelled, reason)

	en.mu.Lock()
	if en.busy {
		en.cancel = reason
		en.cancelOp()
		done := en.done
		en.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		en.mu.Lock()
		s := en.snapshot()
		en.mu.Unlock()
		return &s, nil
	}

	if en.sess.Status.Terminal() {
		st := en.sess.Status
		en.mu.Unlock()
		return nil, fmt.Errorf("%w: cancel in %s", ErrInvalidTransition, st)
	}
	en.pending = nil
	s := e.failLocked(ctx, en, reason, true)
	en.mu.Unlock()

	e.logger.Info("session cancelled", "session_id", id, "from", s.FailedFrom)
	e.finished(s)
	return &s, nil
}

// failLocked moves the session to Failed. When keepLive is set the
// reconciler is frozen and every collected message, interim included, is
// stored for inspection.
func (e *Engine) failLocked(ctx context.Context, en *entry, reason string, keepLive bool) TrainingSession {
	if en.timer != nil {
		en.timer.Stop()
	}
	next := en.sess
	next.FailedFrom = next.Status
	next.Status = StatusFailed
	next.FailureReason = reason

	if keepLive && en.rec.Len() > 0 {
		en.rec.Freeze()
		next.Transcript = en.rec.Messages()
		if len(next.Transcript) > 0 {
			if err := e.store.AppendFinalTranscript(ctx, next.ID, next.Transcript); err != nil {
				e.logger.Error("failed to persist partial transcript", "session_id", next.ID, "error", err)
			}
		}
	}

	en.sess = next
	if err := e.store.Update(ctx, &next); err != nil {
		e.logger.Error("failed to persist failed session", "session_id", next.ID, "error", err)
		return en.snapshot()
	}
	e.evict(en)
	return en.snapshot()
}

// Get returns the live view of a session, or the stored one once it has
// left memory.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*TrainingSession, error) {
	e.mu.Lock()
	en, ok := e.sessions[id]
	e.mu.Unlock()
	if ok {
		en.mu.Lock()
		s := en.snapshot()
		en.mu.Unlock()
		if s.Transcript == nil && !s.Status.Terminal() {
			s.Transcript = en.rec.Finalize()
		}
		return &s, nil
	}
	return e.load(ctx, id)
}

// LiveTranscript returns every message including interim ones.
func (e *Engine) LiveTranscript(ctx context.Context, id uuid.UUID) ([]transcript.Message, error) {
	e.mu.Lock()
	en, ok := e.sessions[id]
	e.mu.Unlock()
	if ok {
		return en.rec.Messages(), nil
	}
	s, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Transcript, nil
}

// SessionForRoom resolves a room name to its session id.
func (e *Engine) SessionForRoom(ctx context.Context, room string) (uuid.UUID, error) {
	e.mu.Lock()
	id, ok := e.rooms[room]
	e.mu.Unlock()
	if ok {
		return id, nil
	}
	s, err := e.store.GetByRoom(ctx, room)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return s.ID, nil
}

// LiveCount is the number of sessions held in memory.
func (e *Engine) LiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Shutdown stops connect timers. In-flight sessions stay in the store.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	entries := make([]*entry, 0, len(e.sessions))
	for _, en := range e.sessions {
		entries = append(entries, en)
	}
	e.mu.Unlock()

	for _, en := range entries {
		en.mu.Lock()
		if en.timer != nil {
			en.timer.Stop()
		}
		if en.cancelOp != nil {
			en.cancelOp()
		}
		en.mu.Unlock()
	}
}

// live returns the in-memory entry. Sessions known only to the store are
// terminal or orphaned and cannot take live transitions.
func (e *Engine) live(ctx context.Context, id uuid.UUID) (*entry, error) {
	e.mu.Lock()
	en, ok := e.sessions[id]
	e.mu.Unlock()
	if ok {
		return en, nil
	}
	s, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: session is %s", ErrInvalidTransition, s.Status)
}

// retryEntry finds or rehydrates the entry for an evaluation retry. It
// returns nil, nil for a session that already completed.
func (e *Engine) retryEntry(ctx context.Context, id uuid.UUID) (*entry, error) {
	e.mu.Lock()
	en, ok := e.sessions[id]
	e.mu.Unlock()
	if ok {
		return en, nil
	}

	s, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case s.Status == StatusCompleted:
		return nil, nil
	case s.EvaluationRetryable(), s.Status == StatusEnding, s.Status == StatusEvaluating:
	default:
		return nil, fmt.Errorf("%w: status %s", ErrNotRetryable, s.Status)
	}

	rec := transcript.NewReconciler()
	rec.Freeze()
	fresh := &entry{sess: *s, rec: rec}
	// An evaluation already in the store is final; retry only finishes
	// attaching it.
	if s.Evaluation != nil {
		fresh.pending = s.Evaluation
		fresh.sess.Evaluation = nil
		fresh.sess.Status = StatusEvaluating
		fresh.sess.FailureReason = ""
		fresh.sess.FailedFrom = ""
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.sessions[id]; ok {
		return existing, nil
	}
	e.sessions[id] = fresh
	e.rooms[s.RoomName] = id
	return fresh, nil
}

func (e *Engine) load(ctx context.Context, id uuid.UUID) (*TrainingSession, error) {
	s, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return s, nil
}

func (e *Engine) evict(en *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, en.sess.ID)
	delete(e.rooms, en.sess.RoomName)
}

func (e *Engine) finished(s TrainingSession) {
	if e.notifier == nil || !s.Status.Terminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	e.notifier.SessionFinished(ctx, s)
}

// snapshot must be called with en.mu held.
func (en *entry) snapshot() TrainingSession {
	s := en.sess
	if s.Transcript != nil {
		s.Transcript = append([]transcript.Message(nil), s.Transcript...)
	}
	return s
}

func finalOnly(msgs []transcript.Message) []transcript.Message {
	out := make([]transcript.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Final {
			out = append(out, m)
		}
	}
	return out
}

func evaluationFailureReason(err error) string {
	switch {
	case errors.Is(err, evaluation.ErrEmptyTranscript):
		return "no final transcript was captured, so there was nothing to evaluate"
	case errors.Is(err, evaluation.ErrInvalidResponse):
		return "the scoring service returned an invalid evaluation; retry evaluation"
	case errors.Is(err, evaluation.ErrUnavailable):
		return "the scoring service is unavailable; retry evaluation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "evaluation was interrupted; retry evaluation"
	}
	return strings.TrimSpace("evaluation failed: " + err.Error())
}
