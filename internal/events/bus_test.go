package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()
	var first, second Recorder

	unsub := bus.Subscribe(&first)
	bus.Subscribe(&second)

	bus.Publish(Notice{To: "alice", Message: "hello", At: time.Unix(1, 0)})
	require.Len(t, first.Events(), 1)
	require.Len(t, second.Events(), 1)

	unsub()
	unsub()
	bus.Publish(RoomClosed{RoomID: "r1"})
	assert.Len(t, first.Events(), 1)
	assert.Len(t, second.Events(), 2)
	assert.Len(t, second.OfType(TypeRoomClosed), 1)
}

func TestBusSubscriberFunc(t *testing.T) {
	bus := NewBus()
	var got []Type
	bus.Subscribe(SubscriberFunc(func(e Event) { got = append(got, e.Type()) }))

	bus.Publish(MatchSettled{RoomID: "r"})
	bus.Publish(JackpotState{RoundID: 1})
	assert.Equal(t, []Type{TypeMatchSettled, TypeJackpotState}, got)
}

func TestBusConcurrentPublish(t *testing.T) {
	bus := NewBus()
	var rec Recorder
	bus.Subscribe(&rec)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				bus.Publish(Notice{Message: "x"})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, rec.Events(), 1000)
}

func TestDiscard(t *testing.T) {
	Discard.Publish(RoomClosed{})
	Discard.Subscribe(&Recorder{})()
}
