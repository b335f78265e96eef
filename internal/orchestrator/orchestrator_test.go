package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/paolomoz/pagegen/internal/knowledge"
)

type recordedEvent struct {
	name    string
	payload any
}

type fakeWriter struct {
	events   []recordedEvent
	calls    int
	failCall int // 1-indexed call number to fail on (0 = never fail)
}

func (f *fakeWriter) WriteEvent(name string, payload any) error {
	f.calls++
	if f.failCall > 0 && f.calls >= f.failCall {
		return fmt.Errorf("client disconnected")
	}
	f.events = append(f.events, recordedEvent{name: name, payload: payload})
	return nil
}

func (f *fakeWriter) names() []string {
	var out []string
	for _, e := range f.events {
		out = append(out, e.name)
	}
	return out
}

type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Put(key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memStore) Get(key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func testDeps() Deps {
	return Deps{
		Model:     "claude-sonnet-4-5",
		Knowledge: &knowledge.Store{},
		Sessions:  newMemStore(),
	}
}

// Without a configured model provider the generator degrades to an empty
// atoms array, so this exercises the full event order down to an empty,
// successful completion rather than the live model call.
func TestStreamEmitsFixedEventOrderOnGeneratorDegradation(t *testing.T) {
	w := &fakeWriter{}
	Stream(context.Background(), w, "req-1", "sess-1", "Which Vitamix should I buy?", testDeps())

	got := w.names()
	want := []string{"classification", "retrieval", "generation-start", "layout", "complete"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestStreamStopsWritingOnDisconnect(t *testing.T) {
	w := &fakeWriter{failCall: 2} // fail on the retrieval write
	Stream(context.Background(), w, "req-2", "sess-2", "Which Vitamix should I buy?", testDeps())

	got := w.names()
	if len(got) != 1 || got[0] != "classification" {
		t.Fatalf("expected stream to stop after the first successful write, got %v", got)
	}
}

func TestStreamNeverEmitsBothCompleteAndError(t *testing.T) {
	w := &fakeWriter{}
	Stream(context.Background(), w, "req-3", "sess-3", "What is the quietest Vitamix for apartments?", testDeps())

	completeCount, errorCount := 0, 0
	for _, name := range w.names() {
		if name == "complete" {
			completeCount++
		}
		if name == "error" {
			errorCount++
		}
	}
	if completeCount+errorCount != 1 {
		t.Fatalf("expected exactly one terminal event, got complete=%d error=%d", completeCount, errorCount)
	}
}

func TestStreamClassificationCarriesBudgetFlag(t *testing.T) {
	w := &fakeWriter{}
	Stream(context.Background(), w, "req-4", "sess-4", "Best blender under $350", testDeps())

	if len(w.events) == 0 {
		t.Fatalf("expected at least one event")
	}
	ev, ok := w.events[0].payload.(ClassificationEvent)
	if !ok {
		t.Fatalf("expected first event to be a ClassificationEvent, got %T", w.events[0].payload)
	}
	if ev.Budget != 350 {
		t.Fatalf("expected budget 350, got %d", ev.Budget)
	}
	found := false
	for _, f := range ev.Flags {
		if f == "budget" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected budget flag in %v", ev.Flags)
	}
}
