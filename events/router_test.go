package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"LiteChat/models"
)

func TestDispatchCallsHandlersInRegistrationOrder(t *testing.T) {
	r := NewRouter()
	var calls []string
	r.On(models.EvConnect, func(models.Event) { calls = append(calls, "a") })
	r.On(models.EvConnect, func(models.Event) { calls = append(calls, "b") })
	r.On(models.EvConnect, func(models.Event) { calls = append(calls, "c") })

	r.Dispatch(models.ConnectedEvent{})

	require.Equal(t, []string{"a", "b", "c"}, calls)
}

func TestOffRemovesOnlyGivenHandler(t *testing.T) {
	r := NewRouter()
	var aCalls, bCalls int
	idA := r.On(models.EvNewMessage, func(models.Event) { aCalls++ })
	r.On(models.EvNewMessage, func(models.Event) { bCalls++ })

	r.Off(models.EvNewMessage, idA)
	r.Dispatch(models.NewMessageEvent{})

	require.Equal(t, 0, aCalls)
	require.Equal(t, 1, bCalls)
	require.Equal(t, 1, r.HandlerCount(models.EvNewMessage))
}

func TestOffWithoutIDsRemovesAll(t *testing.T) {
	r := NewRouter()
	r.On(models.EvNewMessage, func(models.Event) {})
	r.On(models.EvNewMessage, func(models.Event) {})

	r.Off(models.EvNewMessage)

	require.Equal(t, 0, r.HandlerCount(models.EvNewMessage))
}

func TestOnceFiresExactlyOnce(t *testing.T) {
	r := NewRouter()
	calls := 0
	r.Once(models.EvConnect, func(models.Event) { calls++ })

	r.Dispatch(models.ConnectedEvent{})
	r.Dispatch(models.ConnectedEvent{})

	require.Equal(t, 1, calls)
	require.Equal(t, 0, r.HandlerCount(models.EvConnect))
}

func TestPanicInHandlerDoesNotStopOthers(t *testing.T) {
	r := NewRouter()
	var after int
	r.On(models.EvError, func(models.Event) { panic("boom") })
	r.On(models.EvError, func(models.Event) { after++ })

	require.NotPanics(t, func() {
		r.Dispatch(models.ErrorEvent{Message: "x"})
	})
	require.Equal(t, 1, after)
}

func TestUnregisteredEventIsIgnored(t *testing.T) {
	r := NewRouter()
	require.NotPanics(t, func() {
		r.Dispatch(models.StatusUpdatedEvent{})
	})
}
