package transcript

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Result reports what an Upsert did.
type Result int

const (
	Appended Result = iota
	Replaced
	Ignored   // empty or whitespace-only text
	Discarded // arrived after Freeze
)

func (r Result) String() string {
	switch r {
	case Appended:
		return "appended"
	case Replaced:
		return "replaced"
	case Ignored:
		return "ignored"
	case Discarded:
		return "discarded"
	}
	return "unknown"
}

// Reconciler merges two revisable segment streams into one ordered message
// sequence for a single session. All methods are safe for concurrent use.
type Reconciler struct {
	mu       sync.Mutex
	now      func() time.Time
	messages []entry
	index    map[string]int
	frozen   bool
}

type entry struct {
	msg Message
	seq int
}

func NewReconciler() *Reconciler {
	return &Reconciler{now: time.Now, index: make(map[string]int)}
}

// SetClock replaces the time source used for first-seen timestamps.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// Upsert applies one segment event. A new (channel, segment) pair appends a
// message stamped with the current time; a known pair replaces content and
// final flag in place.
func (r *Reconciler) Upsert(channelID, segmentID, text string, isFinal bool) (Message, Result, error) {
	role, err := RoleForChannel(channelID)
	if err != nil {
		return Message{}, Ignored, err
	}
	if segmentID == "" {
		return Message{}, Ignored, ErrMissingSegment
	}
	if strings.TrimSpace(text) == "" {
		return Message{}, Ignored, nil
	}

	id := MessageID(channelID, segmentID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return Message{}, Discarded, nil
	}

	if i, ok := r.index[id]; ok {
		m := &r.messages[i].msg
		m.Content = text
		m.Final = isFinal
		return *m, Replaced, nil
	}

	m := Message{
		ID:        id,
		ChannelID: channelID,
		SegmentID: segmentID,
		Role:      role,
		Content:   text,
		Final:     isFinal,
		Timestamp: r.now().UTC(),
	}
	r.index[id] = len(r.messages)
	r.messages = append(r.messages, entry{msg: m, seq: len(r.messages)})
	return m, Appended, nil
}

// Apply is Upsert for a Segment value.
func (r *Reconciler) Apply(seg Segment) (Message, Result, error) {
	return r.Upsert(seg.ChannelID, seg.SegmentID, seg.Text, seg.IsFinal)
}

// Finalize returns the final messages in ascending timestamp order.
func (r *Reconciler) Finalize() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(true)
}

// Freeze returns the finalized transcript and rejects every later Upsert.
// Calling it again returns the same snapshot.
func (r *Reconciler) Freeze() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	return r.snapshot(true)
}

// Messages returns every message, interim included, for live display.
func (r *Reconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(false)
}

func (r *Reconciler) Frozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen
}

func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// snapshot must be called with r.mu held.
func (r *Reconciler) snapshot(finalOnly bool) []Message {
	selected := make([]entry, 0, len(r.messages))
	for _, e := range r.messages {
		if finalOnly && !e.msg.Final {
			continue
		}
		selected = append(selected, e)
	}
	sort.SliceStable(selected, func(i, j int) bool {
		a, b := selected[i], selected[j]
		if !a.msg.Timestamp.Equal(b.msg.Timestamp) {
			return a.msg.Timestamp.Before(b.msg.Timestamp)
		}
		return a.seq < b.seq
	})
	out := make([]Message, len(selected))
	for i, e := range selected {
		out[i] = e.msg
	}
	return out
}
