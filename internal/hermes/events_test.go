package hermes

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSegmentEventParsing(t *testing.T) {
	raw := `{
		"room_name": "drill-01jq8z",
		"channel_id": "persona",
		"segment_id": "seg-4",
		"text": "I have been charged twice",
		"is_final": true
	}`

	var ev SegmentEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("failed to parse SegmentEvent: %v", err)
	}
	if ev.SessionID != "" {
		t.Errorf("expected empty session_id, got %q", ev.SessionID)
	}
	if ev.RoomName != "drill-01jq8z" || ev.ChannelID != "persona" || ev.SegmentID != "seg-4" {
		t.Errorf("unexpected identifiers: %+v", ev)
	}
	if !ev.IsFinal || ev.Text != "I have been charged twice" {
		t.Errorf("unexpected content: %+v", ev)
	}
}

func TestRoomEventParsing(t *testing.T) {
	var ev RoomEvent
	if err := json.Unmarshal([]byte(`{"session_id":"abc","reason":"participant left"}`), &ev); err != nil {
		t.Fatalf("failed to parse RoomEvent: %v", err)
	}
	if ev.SessionID != "abc" || ev.Reason != "participant left" || ev.RoomName != "" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestSessionEventOmitsScoreWhenFailed(t *testing.T) {
	data, err := json.Marshal(SessionEvent{SessionID: "s1", Status: "failed", FailureReason: "connection timeout"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "overall_score") || strings.Contains(s, "overall_grade") {
		t.Errorf("failed event should not carry a score: %s", s)
	}
	if !strings.Contains(s, `"failure_reason":"connection timeout"`) {
		t.Errorf("expected failure reason in %s", s)
	}
}

func TestSubjectsNamespaced(t *testing.T) {
	for _, s := range []string{SubjectTranscriptSegment, SubjectRoomConnected, SubjectRoomError, SubjectSessionCompleted, SubjectSessionFailed} {
		if !strings.HasPrefix(s, "drill.") {
			t.Errorf("subject %q outside the drill namespace", s)
		}
	}
}
