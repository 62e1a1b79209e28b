package transcript

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"
)

// stepClock returns a clock that advances one millisecond per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func newTestReconciler() *Reconciler {
	r := NewReconciler()
	r.SetClock(stepClock())
	return r
}

func TestUpsert_EndToEnd(t *testing.T) {
	r := newTestReconciler()

	r.Upsert("trainee", "1", "hel", false)
	r.Upsert("trainee", "1", "hello", true)
	r.Upsert("persona", "1", "hi there", true)

	got := r.Finalize()
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Role != RoleTrainee || got[0].Content != "hello" {
		t.Errorf("expected trainee hello first, got %+v", got[0])
	}
	if got[1].Role != RolePersona || got[1].Content != "hi there" {
		t.Errorf("expected persona hi there second, got %+v", got[1])
	}
}

func TestUpsert_SameSegmentKeepsOneMessage(t *testing.T) {
	r := newTestReconciler()

	calls := []struct {
		text  string
		final bool
	}{
		{"I", false},
		{"I want", false},
		{"I want to", false},
		{"I want to cancel", true},
		{"I want to cancel my plan", true},
		{"I want to cancel my plan", false},
	}

	var first time.Time
	for i, c := range calls {
		m, res, err := r.Upsert("trainee", "seg-7", c.text, c.final)
		if err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
		if i == 0 {
			first = m.Timestamp
			if res != Appended {
				t.Errorf("expected first upsert appended, got %s", res)
			}
		} else {
			if res != Replaced {
				t.Errorf("upsert %d: expected replaced, got %s", i, res)
			}
			if !m.Timestamp.Equal(first) {
				t.Errorf("upsert %d: timestamp moved from %v to %v", i, first, m.Timestamp)
			}
		}
	}

	all := r.Messages()
	if len(all) != 1 {
		t.Fatalf("expected exactly 1 message, got %d", len(all))
	}
	last := calls[len(calls)-1]
	if all[0].Content != last.text || all[0].Final != last.final {
		t.Errorf("expected last call reflected, got %+v", all[0])
	}
}

func TestUpsert_RepeatedCallIsIdempotent(t *testing.T) {
	r := newTestReconciler()
	r.Upsert("persona", "3", "Is there anything else?", true)
	before := r.Messages()

	r.Upsert("persona", "3", "Is there anything else?", true)
	after := r.Messages()

	if len(before) != 1 || len(after) != 1 {
		t.Fatalf("expected one message before and after, got %d and %d", len(before), len(after))
	}
	if before[0] != after[0] {
		t.Errorf("duplicate final changed message: %+v -> %+v", before[0], after[0])
	}
}

func TestUpsert_BlankTextIgnored(t *testing.T) {
	r := newTestReconciler()
	r.Upsert("trainee", "1", "hello", false)

	for _, text := range []string{"", " ", "\t\n", "   \r\n "} {
		_, res, err := r.Upsert("trainee", "1", text, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res != Ignored {
			t.Errorf("text %q: expected ignored, got %s", text, res)
		}
		_, res, _ = r.Upsert("trainee", "2", text, true)
		if res != Ignored {
			t.Errorf("text %q on new segment: expected ignored, got %s", text, res)
		}
	}

	all := r.Messages()
	if len(all) != 1 {
		t.Fatalf("expected 1 message, got %d", len(all))
	}
	if all[0].Content != "hello" || all[0].Final {
		t.Errorf("blank text mutated message: %+v", all[0])
	}
}

func TestUpsert_InvalidInput(t *testing.T) {
	r := newTestReconciler()

	if _, _, err := r.Upsert("speaker-3", "1", "hi", true); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("expected ErrUnknownChannel, got %v", err)
	}
	if _, _, err := r.Upsert("trainee", "", "hi", true); !errors.Is(err, ErrMissingSegment) {
		t.Errorf("expected ErrMissingSegment, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("expected no messages, got %d", r.Len())
	}
}

func TestUpsert_SameSegmentDifferentChannels(t *testing.T) {
	r := newTestReconciler()
	r.Upsert("trainee", "1", "hello", true)
	r.Upsert("persona", "1", "hi", true)

	if r.Len() != 2 {
		t.Fatalf("expected segment ids scoped per channel, got %d messages", r.Len())
	}
}

func TestFinalize_FiltersSortsAndIsIdempotent(t *testing.T) {
	r := newTestReconciler()
	r.Upsert("trainee", "1", "good morning", true)
	r.Upsert("persona", "1", "my bill is", false)
	r.Upsert("trainee", "2", "how can I", false)
	r.Upsert("persona", "2", "wrong again", true)
	r.Upsert("persona", "1", "my bill is wrong", true)

	first := r.Finalize()
	second := r.Finalize()

	if len(first) != 3 {
		t.Fatalf("expected 3 final messages, got %d", len(first))
	}
	for _, m := range first {
		if !m.Final {
			t.Errorf("non-final message in finalize: %+v", m)
		}
	}
	if !sort.SliceIsSorted(first, func(i, j int) bool { return first[i].Timestamp.Before(first[j].Timestamp) }) {
		t.Errorf("finalize not sorted by timestamp")
	}
	want := []string{"good morning", "my bill is wrong", "wrong again"}
	for i, w := range want {
		if first[i].Content != w {
			t.Errorf("position %d: expected %q, got %q", i, w, first[i].Content)
		}
	}
	if len(second) != len(first) {
		t.Fatalf("finalize not idempotent: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("finalize not idempotent at %d", i)
		}
	}
}

func TestFinalize_TiesKeepArrivalOrder(t *testing.T) {
	r := NewReconciler()
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return fixed })

	r.Upsert("persona", "a", "first", true)
	r.Upsert("trainee", "b", "second", true)
	r.Upsert("persona", "c", "third", true)

	got := r.Finalize()
	for i, w := range []string{"first", "second", "third"} {
		if got[i].Content != w {
			t.Errorf("position %d: expected %q, got %q", i, w, got[i].Content)
		}
	}
}

func TestFreeze_DiscardsLateSegments(t *testing.T) {
	r := newTestReconciler()
	r.Upsert("trainee", "1", "thanks for calling", true)
	r.Upsert("persona", "1", "bye", false)

	snap := r.Freeze()
	if len(snap) != 1 {
		t.Fatalf("expected 1 final message in snapshot, got %d", len(snap))
	}

	_, res, err := r.Upsert("persona", "1", "bye now", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != Discarded {
		t.Errorf("expected late revision discarded, got %s", res)
	}
	_, res, _ = r.Upsert("persona", "2", "wait", true)
	if res != Discarded {
		t.Errorf("expected late segment discarded, got %s", res)
	}

	again := r.Freeze()
	if len(again) != 1 || again[0] != snap[0] {
		t.Errorf("snapshot changed after freeze: %+v", again)
	}
	if !r.Frozen() {
		t.Error("expected reconciler frozen")
	}
	if live := r.Messages(); len(live) != 2 {
		t.Errorf("expected interim message kept for display, got %d", len(live))
	}
}

func TestUpsert_ConcurrentChannelsOrderIndependent(t *testing.T) {
	events := map[string][]Segment{}
	for _, ch := range []string{"trainee", "persona"} {
		for s := 0; s < 25; s++ {
			seg := fmt.Sprintf("%d", s)
			events[ch] = append(events[ch],
				Segment{ChannelID: ch, SegmentID: seg, Text: ch + " draft " + seg},
				Segment{ChannelID: ch, SegmentID: seg, Text: ch + " final " + seg, IsFinal: true},
			)
		}
	}

	run := func(seed int64) map[string]Message {
		r := NewReconciler()
		var wg sync.WaitGroup
		for _, evs := range events {
			wg.Add(1)
			go func(evs []Segment) {
				defer wg.Done()
				rng := rand.New(rand.NewSource(seed))
				for _, e := range evs {
					if rng.Intn(4) == 0 {
						time.Sleep(time.Microsecond)
					}
					r.Apply(e)
				}
			}(evs)
		}
		wg.Wait()

		set := make(map[string]Message)
		for _, m := range r.Finalize() {
			m.Timestamp = time.Time{}
			set[m.ID] = m
		}
		return set
	}

	baseline := run(1)
	if len(baseline) != 50 {
		t.Fatalf("expected 50 final messages, got %d", len(baseline))
	}
	for seed := int64(2); seed < 20; seed++ {
		got := run(seed)
		if len(got) != len(baseline) {
			t.Fatalf("seed %d: expected %d messages, got %d", seed, len(baseline), len(got))
		}
		for id, m := range baseline {
			if got[id] != m {
				t.Errorf("seed %d: message %s differs: %+v vs %+v", seed, id, got[id], m)
			}
		}
	}
}

func TestMessageID_Deterministic(t *testing.T) {
	a := MessageID("trainee", "1")
	b := MessageID("trainee", "1")
	if a != b {
		t.Errorf("expected same id, got %s and %s", a, b)
	}
	if MessageID("trainee", "1") == MessageID("persona", "1") {
		t.Error("expected channel to change the id")
	}
	if MessageID("trainee", "11") == MessageID("trainee1", "1") {
		t.Error("expected separator to prevent collisions")
	}
}
