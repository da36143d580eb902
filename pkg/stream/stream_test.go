package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomsearch/fathom/pkg/config"
)

func testConfig() *config.StreamConfig {
	return &config.StreamConfig{
		TTFTTarget:        1500 * time.Millisecond,
		HeartbeatInterval: 10 * time.Second,
		BufferSize:        64,
		CancelGrace:       200 * time.Millisecond,
	}
}

func drain(s *Stream) []Event {
	var events []Event
	for ev := range s.Events() {
		events = append(events, ev)
	}
	return events
}

func TestStreamSequenceMonotonic(t *testing.T) {
	ctx := context.Background()
	s := New("trace-1", testConfig())
	require.NoError(t, s.Publish(ctx, EventToken, TokenData{Text: "a"}))
	require.NoError(t, s.Publish(ctx, EventToken, TokenData{Text: "b"}))
	s.Final(FinalData{AnsweredUnderSLA: true})

	events := drain(s)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, "trace-1", ev.TraceID)
		assert.False(t, ev.TS.IsZero())
	}
	assert.Equal(t, EventFinal, events[2].Event)
}

func TestStreamExactlyOneFinal(t *testing.T) {
	s := New("trace-2", testConfig())
	s.Final(FinalData{})
	s.Final(FinalData{Partial: true}) // no-op

	events := drain(s)
	finals := 0
	for _, ev := range events {
		if ev.Event == EventFinal {
			finals++
		}
	}
	assert.Equal(t, 1, finals)
}

func TestStreamPublishAfterFinal(t *testing.T) {
	s := New("trace-3", testConfig())
	s.Final(FinalData{})
	err := s.Publish(context.Background(), EventToken, TokenData{Text: "late"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStreamHeartbeatSynthesized(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 40 * time.Millisecond
	s := New("trace-4", cfg)

	time.Sleep(120 * time.Millisecond)
	s.Final(FinalData{})

	events := drain(s)
	heartbeats := 0
	for _, ev := range events {
		if ev.Event == EventHeartbeat {
			heartbeats++
		}
	}
	assert.GreaterOrEqual(t, heartbeats, 1, "idle stream must synthesize heartbeats")
}

func TestStreamNoHeartbeatWhenBusy(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.HeartbeatInterval = 50 * time.Millisecond
	s := New("trace-5", cfg)

	stop := time.After(120 * time.Millisecond)
	for running := true; running; {
		select {
		case <-stop:
			running = false
		default:
			_ = s.Publish(ctx, EventToken, TokenData{Text: "x"})
			// Keep the buffer from filling.
			select {
			case <-s.Events():
			default:
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	s.Final(FinalData{})

	for ev := range s.Events() {
		assert.NotEqual(t, EventHeartbeat, ev.Event, "active stream must not synthesize heartbeats")
	}
}

func TestStreamHeartbeatGapBounded(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 300 * time.Millisecond
	s := New("trace-gap", cfg)

	// A real event partway through the interval restarts the silence
	// clock; the next heartbeat must land one interval after it, not
	// later.
	time.Sleep(160 * time.Millisecond)
	require.NoError(t, s.Publish(context.Background(), EventToken, TokenData{Text: "mid"}))
	time.Sleep(500 * time.Millisecond)
	s.Final(FinalData{})

	events := drain(s)
	var tokenAt time.Time
	var gap time.Duration
	for _, ev := range events {
		switch {
		case ev.Event == EventToken:
			tokenAt = ev.TS
		case ev.Event == EventHeartbeat && !tokenAt.IsZero() && gap == 0:
			gap = ev.TS.Sub(tokenAt)
		}
	}
	require.NotZero(t, gap, "expected a heartbeat after the token")
	assert.LessOrEqual(t, gap, 360*time.Millisecond,
		"silence between consecutive events must not exceed the interval")
}

func TestStreamFullBufferBlocksPublish(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.BufferSize = 2
	s := New("trace-6", cfg)

	require.NoError(t, s.Publish(ctx, EventToken, TokenData{Text: "1"}))
	require.NoError(t, s.Publish(ctx, EventToken, TokenData{Text: "2"}))

	published := make(chan error, 1)
	go func() {
		published <- s.Publish(ctx, EventToken, TokenData{Text: "3"})
	}()

	select {
	case err := <-published:
		t.Fatalf("publish into a full buffer returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// Draining one slot releases the blocked publisher.
	<-s.Events()
	select {
	case err := <-published:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish did not unblock after the consumer drained")
	}

	s.Final(FinalData{Partial: true})
	events := drain(s)
	texts := make([]string, 0, len(events))
	for _, ev := range events {
		if data, ok := ev.Data.(TokenData); ok {
			texts = append(texts, data.Text)
		}
	}
	assert.Contains(t, texts, "3", "the delayed token must still be delivered")
	assert.Equal(t, EventFinal, events[len(events)-1].Event)
}

func TestStreamFullBufferPublishUnblocksOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.BufferSize = 2
	s := New("trace-7", cfg)

	bg := context.Background()
	require.NoError(t, s.Publish(bg, EventToken, TokenData{Text: "1"}))
	require.NoError(t, s.Publish(bg, EventToken, TokenData{Text: "2"}))

	ctx, cancel := context.WithCancel(bg)
	published := make(chan error, 1)
	go func() {
		published <- s.Publish(ctx, EventToken, TokenData{Text: "3"})
	}()

	select {
	case err := <-published:
		t.Fatalf("publish into a full buffer returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-published:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("publish did not unblock on cancellation")
	}

	// The final event still gets through: the buffer is full and nobody
	// is reading, so delivery relies on eviction.
	s.Final(FinalData{Partial: true})
	events := drain(s)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventFinal, last.Event)
	data, ok := last.Data.(FinalData)
	require.True(t, ok)
	assert.True(t, data.Partial)
}
