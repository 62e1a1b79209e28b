package transcript

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who spoke a message.
type Role string

const (
	RoleTrainee Role = "trainee"
	RolePersona Role = "persona"
)

var (
	ErrUnknownChannel = errors.New("unknown transcript channel")
	ErrMissingSegment = errors.New("segment id is required")
)

// messageNamespace seeds the name-based ids of transcript messages.
var messageNamespace = uuid.MustParse("6f1c3a52-8d4e-4b8a-9a57-2f0c1d7e9b31")

// Segment is one speech-to-text event as delivered by a transcriber.
type Segment struct {
	ChannelID string `json:"channel_id"`
	SegmentID string `json:"segment_id"`
	Text      string `json:"text"`
	IsFinal   bool   `json:"is_final"`
}

// Message is the reconciled view of a segment. Timestamp is the time the
// segment was first seen and never changes on revision.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	SegmentID string    `json:"segment_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Final     bool      `json:"final"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageID derives the stable message id for a (channel, segment) pair.
func MessageID(channelID, segmentID string) string {
	return uuid.NewSHA1(messageNamespace, []byte(channelID+"\x00"+segmentID)).String()
}

// RoleForChannel maps a transcriber channel to the speaker role. The trainee
// channel is the local microphone; the persona channel is the AI voice.
func RoleForChannel(channelID string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(channelID)) {
	case "trainee", "user", "agent", "microphone":
		return RoleTrainee, nil
	case "persona", "assistant", "customer":
		return RolePersona, nil
	}
	return "", ErrUnknownChannel
}
