package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: TypeArchiveCompleted, Data: "2024-03-01_10-15-00"})

	select {
	case ev := <-ch:
		if ev.Type != TypeArchiveCompleted {
			t.Errorf("type = %q", ev.Type)
		}
		if ev.Time.IsZero() {
			t.Error("publish did not stamp the event time")
		}
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: TypeTaskFired, Data: "first"})
	b.Publish(Event{Type: TypeTaskFired, Data: "second"}) // dropped, buffer full

	ev := <-ch
	if ev.Data != "first" {
		t.Errorf("data = %v, want first", ev.Data)
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected second event: %v", ev)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: TypeSweepCompleted})

	if _, open := <-ch; open {
		t.Error("channel still open after unsubscribe")
	}
}
