package session

import (
	"context"
	"testing"
	"time"
)

func TestFlushPolicy(t *testing.T) {
	p := FlushPolicy{MinPause: 2 * time.Second, MinBuffer: 5 * time.Second, MaxBuffer: 12 * time.Second}

	tests := []struct {
		name     string
		buffered time.Duration
		silence  time.Duration
		want     FlushReason
		ok       bool
	}{
		{name: "nothing yet", buffered: 3 * time.Second, silence: 0},
		{name: "pause but short buffer", buffered: 4 * time.Second, silence: 3 * time.Second},
		{name: "long buffer no pause", buffered: 8 * time.Second, silence: time.Second},
		{name: "pause", buffered: 5 * time.Second, silence: 2 * time.Second, want: FlushPause, ok: true},
		{name: "max", buffered: 12 * time.Second, silence: 0, want: FlushMaxDuration, ok: true},
		{name: "max wins over pause", buffered: 13 * time.Second, silence: 5 * time.Second, want: FlushMaxDuration, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.Evaluate(tt.buffered, tt.silence)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("Evaluate(%s, %s) = %q, %v; want %q, %v", tt.buffered, tt.silence, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSilenceTracker(t *testing.T) {
	clock := &stepClock{t: time.Unix(0, 0), step: 500 * time.Millisecond}
	tr := NewSilenceTracker(100, clock.Now)

	if got := tr.Observe(10); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms silence, got %s", got)
	}
	if got := tr.Observe(99.9); got != time.Second {
		t.Fatalf("expected 1s silence, got %s", got)
	}
	if got := tr.Observe(100); got != 0 {
		t.Fatalf("expected loud fragment to reset silence, got %s", got)
	}
	tr.Observe(0)
	tr.Reset()
	if tr.Silence() != 0 {
		t.Fatalf("expected zero after reset, got %s", tr.Silence())
	}
}

func TestAudioBuffer(t *testing.T) {
	b := NewAudioBuffer(16000)
	b.Append(make([]byte, 32000))
	b.Append(make([]byte, 16000))

	if b.Len() != 48000 || b.Duration() != 1500*time.Millisecond {
		t.Fatalf("unexpected buffer state len=%d duration=%s", b.Len(), b.Duration())
	}
	if out := b.Flush(); len(out) != 48000 {
		t.Fatalf("expected 48000 flushed bytes, got %d", len(out))
	}
	if b.Len() != 0 || b.Duration() != 0 {
		t.Fatal("expected empty buffer after flush")
	}
}

func TestFragmentQueueOrderAndClose(t *testing.T) {
	q := newFragmentQueue()
	for _, b := range []string{"a", "b", "c"} {
		if !q.push([]byte(b)) {
			t.Fatalf("push %q refused", b)
		}
	}
	if !q.close() {
		t.Fatal("expected first close to succeed")
	}
	if q.push([]byte("late")) || q.close() {
		t.Fatal("expected pushes after close to be dropped")
	}

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		item, ok := q.pop(ctx)
		if !ok || string(item.data) != want {
			t.Fatalf("expected %q, got %q (ok=%v)", want, item.data, ok)
		}
	}
	if item, ok := q.pop(ctx); !ok || !item.close {
		t.Fatal("expected close sentinel last")
	}
}

func TestFragmentQueueShutdownDiscardsPending(t *testing.T) {
	q := newFragmentQueue()
	q.push([]byte("a"))
	q.push([]byte("b"))

	if n := q.shutdown(); n != 2 {
		t.Fatalf("expected 2 dropped fragments, got %d", n)
	}
	if q.push([]byte("late")) || q.close() {
		t.Fatal("expected pushes after shutdown to be refused")
	}
	if q.len() != 0 {
		t.Fatalf("expected empty queue, got %d items", q.len())
	}
}

func TestFragmentQueuePopHonorsContext(t *testing.T) {
	q := newFragmentQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := q.pop(ctx); ok {
		t.Fatal("expected pop to give up when context ends")
	}
}

func TestFragmentQueueWakesBlockedPop(t *testing.T) {
	q := newFragmentQueue()
	got := make(chan string, 1)
	go func() {
		item, _ := q.pop(context.Background())
		got <- string(item.data)
	}()

	time.Sleep(10 * time.Millisecond)
	q.push([]byte("x"))

	select {
	case v := <-got:
		if v != "x" {
			t.Fatalf("expected x, got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("pop was not woken by push")
	}
}
