package notify

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPublishSubscribe(t *testing.T) {
	f := NewFanout(zerolog.New(&bytes.Buffer{}))

	ch, cancel := f.Subscribe("presence")
	defer cancel()

	f.Publish("presence", "hello")

	select {
	case msg := <-ch:
		if msg.Topic != "presence" {
			t.Errorf("expected topic presence, got %s", msg.Topic)
		}
		if msg.Payload.(string) != "hello" {
			t.Errorf("expected payload hello, got %v", msg.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("subscriber did not receive message")
	}
}

func TestPublishToOtherTopicNotDelivered(t *testing.T) {
	f := NewFanout(zerolog.New(&bytes.Buffer{}))

	ch, cancel := f.Subscribe("presence")
	defer cancel()

	f.Publish("claims", "not for you")

	select {
	case msg := <-ch:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
		// Nothing delivered, as expected
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	f := NewFanout(zerolog.New(&bytes.Buffer{}))

	_, cancel := f.Subscribe("presence")
	defer cancel()

	// Overfill the subscriber buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			f.Publish("presence", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestUnsubscribe(t *testing.T) {
	f := NewFanout(zerolog.New(&bytes.Buffer{}))

	_, cancel := f.Subscribe("presence", "claims")
	if f.SubscriberCount("presence") != 1 || f.SubscriberCount("claims") != 1 {
		t.Fatal("expected one subscriber on both topics")
	}

	cancel()
	if f.SubscriberCount("presence") != 0 || f.SubscriberCount("claims") != 0 {
		t.Error("expected no subscribers after cancel")
	}
}
