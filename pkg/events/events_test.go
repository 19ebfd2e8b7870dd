package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversToSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Accept(New(EventDNSRecordAdded, DNSChange{IP: "10.0.0.1", Domain: "vpn.example.com"}))

	select {
	case ev := <-sub:
		assert.Equal(t, EventDNSRecordAdded, ev.Type)
		payload, ok := ev.Payload.(DNSChange)
		require.True(t, ok)
		assert.Equal(t, "10.0.0.1", payload.IP)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBrokerNeverBlocksPublisher(t *testing.T) {
	b := NewBroker()
	// Broker not started: nothing drains eventCh. Publishing more than
	// the buffer must still return promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Accept(New(EventServiceStarted, nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Accept blocked with a full event buffer")
	}
}

func TestBrokerSkipsFullSubscriber(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	full := b.Subscribe() // never drained
	_ = full

	live := b.Subscribe()
	defer b.Unsubscribe(live)

	for i := 0; i < 200; i++ {
		b.Accept(New(EventDNSRecordRemoved, DNSChange{IP: "10.0.0.1"}))
	}

	// The live subscriber still receives events despite the stuck one.
	select {
	case <-live:
	case <-time.After(time.Second):
		t.Fatal("live subscriber starved by a full sibling")
	}
}

func TestSubscriberCount(t *testing.T) {
	b := NewBroker()
	assert.Equal(t, 0, b.SubscriberCount())

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Unsubscribe(s1)
	assert.Equal(t, 1, b.SubscriberCount())
	b.Unsubscribe(s2)
}
