package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 2, MaxBatchWait: time.Minute}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(TypeLog))
	hub.Emit(sampleEvent(TypeLog))
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 10, MaxBatchWait: 25 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(TypeError))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitNonBlockingWhenFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{events: make(chan Event), logger: zap.NewNop()}
	start := time.Now()
	hub.Emit(sampleEvent(TypeLog))
	hub.Emit(sampleEvent(TypeLog))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int64(1), hub.Dropped(), "first drop is logged and reset, second is counted")
}

func TestHubFlushOnCloseKeepsOrder(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 100, MaxBatchWait: time.Minute}, sink)

	first := sampleEvent(TypeLog)
	first.Message = "first"
	second := sampleEvent(TypeLog)
	second.Message = "second"
	hub.Emit(first)
	hub.Emit(second)

	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	batches := sink.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, "first", batches[0][0].Message)
	assert.True(t, sink.Closed())

	hub.Emit(sampleEvent(TypeLog))
	assert.Len(t, sink.Batches(), 1)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{}, sink)
	hub.Emit(Event{Type: TypeLog, Message: "no run id"})
	require.NoError(t, hub.Close(context.Background()))
	assert.Empty(t, sink.Batches())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name    string
		evt     Event
		wantErr string
	}{
		{name: "log", evt: Event{RunID: "r", TS: now, Type: TypeLog, Message: "ok"}},
		{name: "done", evt: Event{RunID: "r", TS: now, Type: TypeDone, Report: &ingest.RunReport{}}},
		{name: "missing run", evt: Event{TS: now, Type: TypeLog, Message: "x"}, wantErr: "run id"},
		{name: "missing ts", evt: Event{RunID: "r", Type: TypeLog, Message: "x"}, wantErr: "timestamp"},
		{name: "empty message", evt: Event{RunID: "r", TS: now, Type: TypeError}, wantErr: "message"},
		{name: "done without report", evt: Event{RunID: "r", TS: now, Type: TypeDone}, wantErr: "report"},
		{name: "unknown type", evt: Event{RunID: "r", TS: now, Type: "heartbeat", Message: "x"}, wantErr: "unknown"},
		{name: "negative dur", evt: Event{RunID: "r", TS: now, Type: TypeLog, Message: "x", Dur: -1}, wantErr: "duration"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.evt.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestMulti(t *testing.T) {
	t.Parallel()

	var got []string
	rec := EmitterFunc(func(evt Event) { got = append(got, evt.Message) })
	Multi(rec, nil, rec).Emit(Event{Message: "x"})
	assert.Equal(t, []string{"x", "x"}, got)
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(typ Type) Event {
	evt := Event{
		RunID:   "0190c5e2-0000-7000-8000-000000000001",
		TS:      time.Now(),
		Type:    typ,
		Source:  "demo",
		Stage:   ingest.StageListing,
		Message: "creator 1: 3 records",
	}
	if typ == TypeDone {
		evt.Report = &ingest.RunReport{State: ingest.RunCompleted}
	}
	return evt
}
