package session

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestEnqueueUnknownSession(t *testing.T) {
	h := newHarness(testConfig(), nil)

	if err := h.reg.Enqueue("missing", loud()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := h.reg.Stop("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound from Stop, got %v", err)
	}
}

func TestRegistryEnqueueReachesSession(t *testing.T) {
	h := newHarness(testConfig(), echoTranscriber("hi"))
	sink := &sinkMock{}
	h.reg.Create("s1", sink)

	for _, frag := range [][]byte{loud(), quiet(), quiet()} {
		if err := h.reg.Enqueue("s1", frag); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	if err := h.reg.Stop("s1"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if msgs := sink.messages(); len(msgs) != 1 || msgs[0].Transcript != "hi" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}

func TestRecreateTearsDownPriorSession(t *testing.T) {
	h := newHarness(testConfig(), echoTranscriber("old tail"))
	oldSink, newSink := &sinkMock{}, &sinkMock{}

	old := h.reg.Create("dup", oldSink)
	for range 6 {
		old.Enqueue(loud())
	}

	fresh := h.reg.Create("dup", newSink)

	select {
	case <-old.Done():
	default:
		t.Fatal("expected prior consumer to have exited before Create returned")
	}
	if msgs := oldSink.messages(); len(msgs) != 1 || msgs[0].Transcript != "old tail" {
		t.Fatalf("expected prior session's final flush, got %+v", msgs)
	}
	if got, _ := h.reg.Get("dup"); got != fresh {
		t.Fatal("expected new session registered under id")
	}
	if len(newSink.messages()) != 0 {
		t.Fatal("expected new session untouched by old audio")
	}
	h.reg.StopAll()
}

func TestStopUnregistersBeforeDraining(t *testing.T) {
	h := newHarness(testConfig(), echoTranscriber())
	h.norm.block = make(chan struct{})

	s := h.reg.Create("slow", &sinkMock{})
	for range 6 {
		s.Enqueue(loud())
	}

	stopped := make(chan error, 1)
	go func() { stopped <- h.reg.Stop("slow") }()

	deadline := time.Now().Add(2 * time.Second)
	for len(h.norm.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("final flush never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if ids := h.reg.Active(); len(ids) != 0 {
		t.Fatalf("expected id removed while draining, got %v", ids)
	}
	if err := h.reg.Enqueue("slow", loud()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound during drain, got %v", err)
	}

	close(h.norm.block)
	if err := <-stopped; err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestReleaseKeepsNewerSession(t *testing.T) {
	h := newHarness(testConfig(), nil)

	first := h.reg.Create("caller", &sinkMock{})
	second := h.reg.Create("caller", &sinkMock{})

	h.reg.Release(first)
	if got, ok := h.reg.Get("caller"); !ok || got != second {
		t.Fatal("expected releasing the superseded session to keep the newer one")
	}

	h.reg.Release(second)
	if _, ok := h.reg.Get("caller"); ok {
		t.Fatal("expected session removed after release")
	}
}

func TestStopAllAndActive(t *testing.T) {
	h := newHarness(testConfig(), nil)
	sessions := []*Session{
		h.reg.Create("c", &sinkMock{}),
		h.reg.Create("a", &sinkMock{}),
		h.reg.Create("b", &sinkMock{}),
	}

	if ids := h.reg.Active(); !slices.Equal(ids, []string{"a", "b", "c"}) {
		t.Fatalf("expected sorted ids, got %v", ids)
	}

	h.reg.StopAll()

	if h.reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", h.reg.Len())
	}
	for _, s := range sessions {
		select {
		case <-s.Done():
		default:
			t.Fatalf("session %s still running", s.ID())
		}
	}
	if h.metrics.opened != 3 || h.metrics.closed != 3 {
		t.Fatalf("expected 3 opened and closed, got %d/%d", h.metrics.opened, h.metrics.closed)
	}
}

func TestRegistryForgetsSessionWhoseConsumerDied(t *testing.T) {
	h := newHarness(testConfig(), transcriberFunc(func(context.Context, []byte, string, int) string {
		panic("provider exploded")
	}))
	bad := h.reg.Create("bad", &sinkMock{})
	utterance(bad)
	<-bad.Done()

	deadline := time.Now().Add(2 * time.Second)
	for h.reg.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected dead session unregistered, active=%v", h.reg.Active())
		}
		time.Sleep(5 * time.Millisecond)
	}

	for range 100 {
		if err := h.reg.Enqueue("bad", loud()); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound after consumer exit, got %v", err)
		}
		bad.Enqueue(loud())
	}
	if n := bad.queue.len(); n != 0 {
		t.Fatalf("expected no fragments queued on a dead session, got %d", n)
	}
}
