package hermes

import "time"

// Inbound subjects, published by the room transport and transcriber.
const (
	SubjectTranscriptSegment = "drill.transcript.segment"
	SubjectRoomConnected     = "drill.room.connected"
	SubjectRoomError         = "drill.room.error"
)

// Outbound lifecycle subjects.
const (
	SubjectSessionCompleted = "drill.session.completed"
	SubjectSessionFailed    = "drill.session.failed"
)

// SegmentEvent is one transcriber update. Either SessionID or RoomName
// identifies the session.
type SegmentEvent struct {
	SessionID string `json:"session_id,omitempty"`
	RoomName  string `json:"room_name,omitempty"`
	ChannelID string `json:"channel_id"`
	SegmentID string `json:"segment_id"`
	Text      string `json:"text"`
	IsFinal   bool   `json:"is_final"`
}

// RoomEvent reports a transport lifecycle change.
type RoomEvent struct {
	SessionID string `json:"session_id,omitempty"`
	RoomName  string `json:"room_name,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// SessionEvent announces a session that reached a terminal state.
type SessionEvent struct {
	SessionID       string    `json:"session_id"`
	TraineeID       string    `json:"trainee_id"`
	ScenarioID      string    `json:"scenario_id"`
	RoomName        string    `json:"room_name"`
	Status          string    `json:"status"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	FailedFrom      string    `json:"failed_from,omitempty"`
	Retryable       bool      `json:"retryable,omitempty"`
	OverallScore    *int      `json:"overall_score,omitempty"`
	OverallGrade    string    `json:"overall_grade,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	MessageCount    int       `json:"message_count"`
	DurationSeconds int       `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}
