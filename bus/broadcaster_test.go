package bus

import (
	"testing"
	"time"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	s1 := b.Subscribe("/p/roadmap.json")
	s2 := b.Subscribe("/p/roadmap.json")
	other := b.Subscribe("/q/roadmap.json")

	b.Publish("/p/roadmap.json", NewEvent(EventTaskUpdated, "demo", nil))

	for _, s := range []*Session{s1, s2} {
		select {
		case ev := <-s.C:
			if ev.Type != EventTaskUpdated {
				t.Fatalf("unexpected event type: %s", ev.Type)
			}
			if ev.Project != "demo" {
				t.Fatalf("unexpected project: %s", ev.Project)
			}
			if ev.Timestamp.IsZero() {
				t.Fatalf("event missing timestamp")
			}
		case <-time.After(time.Second):
			t.Fatalf("session %s did not receive the event", s.ID)
		}
	}

	select {
	case ev := <-other.C:
		t.Fatalf("session on another path received event: %+v", ev)
	default:
	}
}

func TestUnsubscribedSessionMissesEvents(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	s := b.Subscribe("/p/roadmap.json")
	s.Unsubscribe()

	b.Publish("/p/roadmap.json", NewEvent(EventProjectModified, "demo", nil))

	// The channel is closed; at most a zero-value read, never a delivery.
	if ev, ok := <-s.C; ok {
		t.Fatalf("unsubscribed session received event: %+v", ev)
	}
	if b.SubscriberCount("/p/roadmap.json") != 0 {
		t.Fatalf("registry should be empty after unsubscribe")
	}
}

func TestUnsubscribeTwiceDoesNotPanic(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	s := b.Subscribe("/p/roadmap.json")

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("double unsubscribe panicked: %v", r)
		}
	}()
	s.Unsubscribe()
	s.Unsubscribe()
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	s := b.Subscribe("/p/roadmap.json")
	_ = s

	done := make(chan struct{})
	go func() {
		// Publish more events than the session buffer holds; extra
		// events drop instead of blocking.
		for i := 0; i < sessionBuffer*2; i++ {
			b.Publish("/p/roadmap.json", NewEvent(EventTaskUpdated, "demo", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
}

func TestConcurrentSubscribeUnsubscribePublish(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				b.Publish("/p/roadmap.json", NewEvent(EventTaskUpdated, "demo", nil))
			}
		}
	}()

	for i := 0; i < 100; i++ {
		s := b.Subscribe("/p/roadmap.json")
		s.Unsubscribe()
	}
	close(stop)
}

func TestSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	b := NewBroadcaster()
	b.Close()

	s := b.Subscribe("/p/roadmap.json")
	if _, ok := <-s.C; ok {
		t.Fatalf("expected closed channel after broadcaster close")
	}
}
