package event

import (
	"testing"
	"time"

	"github.com/MaherFayad/ga-gate/id"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe(4)

	rid := id.NewRequestID()
	b.Publish(Event{Type: TypeEnqueued, RequestID: rid, TenantID: "acme", At: time.Now()})

	select {
	case evt := <-ch:
		if evt.Type != TypeEnqueued || evt.RequestID != rid {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestBus_FanOut(t *testing.T) {
	b := NewBus()
	a := b.Subscribe(1)
	c := b.Subscribe(1)

	b.Publish(Event{Type: TypeStarted, RequestID: id.NewRequestID()})

	for i, ch := range []<-chan Event{a, c} {
		select {
		case evt := <-ch:
			if evt.Type != TypeStarted {
				t.Fatalf("subscriber %d: unexpected event %+v", i, evt)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no event delivered", i)
		}
	}
}

func TestBus_DropsWhenFull(t *testing.T) {
	b := NewBus()
	b.Subscribe(1)

	b.Publish(Event{Type: TypeEnqueued})
	b.Publish(Event{Type: TypeStarted}) // buffer full, dropped

	if got := b.Dropped(); got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}
}

func TestBus_Shutdown(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe(1)

	b.Shutdown()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after shutdown")
	}

	// Publish after shutdown is a no-op.
	b.Publish(Event{Type: TypeEnqueued})

	// Subscribe after shutdown returns a closed channel.
	if _, ok := <-b.Subscribe(1); ok {
		t.Fatal("post-shutdown subscription should be closed")
	}
}
