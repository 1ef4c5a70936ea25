package bus

import (
	"testing"
	"time"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	sub1 := b.Subscribe("one", TopicEventNormalized, 4)
	sub2 := b.Subscribe("two", TopicEventNormalized, 4)

	b.Publish(TopicEventNormalized, "hello")

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case msg := <-sub.C:
			if msg.Topic != TopicEventNormalized {
				t.Errorf("topic = %q, want %q", msg.Topic, TopicEventNormalized)
			}
			if msg.Payload != "hello" {
				t.Errorf("payload = %v, want hello", msg.Payload)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s did not receive message", sub.Name())
		}
	}
}

func TestPublishDoesNotCrossTopics(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("persist", TopicEventNormalized, 1)

	b.Publish(TopicFrameDecoded, "frame")

	select {
	case msg := <-sub.C:
		t.Fatalf("unexpected delivery: %v", msg)
	default:
	}
}

func TestFullInboxDropsAndCounts(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("slow", TopicFrameRaw, 1)

	b.Publish(TopicFrameRaw, 1)
	b.Publish(TopicFrameRaw, 2)
	b.Publish(TopicFrameRaw, 3)

	if got := sub.Drops(); got != 2 {
		t.Errorf("Drops() = %d, want 2", got)
	}

	drops := b.Drops()
	if drops["frame.raw/slow"] != 2 {
		t.Errorf("bus drops = %v, want frame.raw/slow = 2", drops)
	}

	// The first message is still deliverable.
	select {
	case msg := <-sub.C:
		if msg.Payload != 1 {
			t.Errorf("payload = %v, want 1", msg.Payload)
		}
	default:
		t.Fatal("buffered message missing")
	}
}

func TestCloseClosesSubscriberChannels(t *testing.T) {
	b := New()
	sub := b.Subscribe("api", TopicError, 1)

	b.Close()

	if _, ok := <-sub.C; ok {
		t.Error("channel still open after Close")
	}

	// Publish after Close is a no-op, not a panic.
	b.Publish(TopicError, "late")
}

func TestSubscribeAfterClose(t *testing.T) {
	b := New()
	b.Close()

	sub := b.Subscribe("late", TopicFrameRaw, 1)
	if _, ok := <-sub.C; ok {
		t.Error("subscription after Close should be closed immediately")
	}
}
