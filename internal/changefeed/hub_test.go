package changefeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHub_SubscribeReceivesPublishedEvents(t *testing.T) {
	hub := NewHub()

	sub, backlog, err := hub.Subscribe(EntityDriver)
	assert.NoError(t, err)
	assert.Empty(t, backlog)
	defer sub.Close()

	hub.Publish(Event{Entity: EntityDriver, Kind: KindInsert, Key: "1001", Version: 1})

	event := <-sub.Events()
	assert.Equal(t, EntityDriver, event.Entity)
	assert.Equal(t, KindInsert, event.Kind)
	assert.Equal(t, "1001", event.Key)
}

func TestHub_BacklogReplaysRecentEvents(t *testing.T) {
	hub := NewHub()

	hub.Publish(Event{Entity: EntityDriver, Kind: KindInsert, Key: "1001", Version: 1})
	hub.Publish(Event{Entity: EntityDriver, Kind: KindUpdate, Key: "1001", Version: 2})

	sub, backlog, err := hub.Subscribe(EntityDriver)
	assert.NoError(t, err)
	defer sub.Close()

	assert.Len(t, backlog, 2)
	assert.Equal(t, KindInsert, backlog[0].Kind)
	assert.Equal(t, KindUpdate, backlog[1].Kind)
	assert.Equal(t, int64(2), backlog[1].Version)
}

func TestHub_BacklogBounded(t *testing.T) {
	hub := NewHub()

	for i := 0; i < DefaultBufferSize+10; i++ {
		hub.Publish(Event{Entity: EntityDelivery, Kind: KindInsert, Key: "k", Version: int64(i)})
	}

	sub, backlog, err := hub.Subscribe(EntityDelivery)
	assert.NoError(t, err)
	defer sub.Close()

	assert.Len(t, backlog, DefaultBufferSize)
	// The oldest events fall off the front.
	assert.Equal(t, int64(10), backlog[0].Version)
}

func TestHub_InvalidEntity(t *testing.T) {
	hub := NewHub()

	_, _, err := hub.Subscribe(EntityType("meter"))
	assert.ErrorIs(t, err, ErrInvalidEntity)

	// Publishing an unknown entity is a no-op rather than a panic.
	hub.Publish(Event{Entity: EntityType("meter"), Kind: KindInsert, Key: "x"})
}

func TestHub_SlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	hub := NewHub()

	sub, _, err := hub.Subscribe(EntityDriver)
	assert.NoError(t, err)
	defer sub.Close()

	// Fill the subscriber buffer and keep publishing; sends past the buffer
	// are dropped instead of stalling.
	for i := 0; i < DefaultSubscriberBuffer*2; i++ {
		hub.Publish(Event{Entity: EntityDriver, Kind: KindUpdate, Key: "1001", Version: int64(i)})
	}

	received := 0
	for {
		select {
		case <-sub.Events():
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, DefaultSubscriberBuffer, received)
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	hub := NewHub()

	sub, _, err := hub.Subscribe(EntityDriver)
	assert.NoError(t, err)

	sub.Close()
	sub.Close()

	hub.Publish(Event{Entity: EntityDriver, Kind: KindInsert, Key: "1001"})
	select {
	case event := <-sub.Events():
		t.Fatalf("received event after close: %+v", event)
	default:
	}
}
