package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingObserver struct {
	received []Event
}

func (r *recordingObserver) OnEvent(ev Event) {
	r.received = append(r.received, ev)
}

func TestPublish_FansOutToAllSubscribersInOrder(t *testing.T) {
	bus := New()
	a := &recordingObserver{}
	b := &recordingObserver{}
	bus.Subscribe(a)
	bus.Subscribe(b)

	bus.Publish(Event{Kind: EventPathFound, Data: "x"})
	bus.Publish(Event{Kind: EventDispatched, Data: "y"})

	assert.Equal(t, []Event{{Kind: EventPathFound, Data: "x"}, {Kind: EventDispatched, Data: "y"}}, a.received)
	assert.Equal(t, a.received, b.received)
}

func TestPublish_NoSubscribersIsNoOp(t *testing.T) {
	bus := New()
	assert.NotPanics(t, func() { bus.Publish(Event{Kind: EventDropped}) })
}
