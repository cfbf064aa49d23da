package connection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"LiteChat/events"
	"LiteChat/models"
)

func TestOutboxFlushesInFIFOOrderOnConnect(t *testing.T) {
	router := events.NewRouter()
	var sent []frame
	o := newOutbox(router, func(f frame) bool {
		sent = append(sent, f)
		return true
	})

	o.Add(frame{Type: "first"})
	o.Add(frame{Type: "second"})
	o.Add(frame{Type: "third"})
	require.Equal(t, 3, o.Len())

	router.Dispatch(models.ConnectedEvent{})

	require.Equal(t, 0, o.Len())
	require.Len(t, sent, 3)
	require.Equal(t, "first", sent[0].Type)
	require.Equal(t, "second", sent[1].Type)
	require.Equal(t, "third", sent[2].Type)
}

func TestOutboxFlushesAtMostOncePerConnect(t *testing.T) {
	router := events.NewRouter()
	var sent int
	o := newOutbox(router, func(frame) bool {
		sent++
		return true
	})
	o.Add(frame{Type: "op"})

	router.Dispatch(models.ConnectedEvent{})
	router.Dispatch(models.ConnectedEvent{})

	require.Equal(t, 1, sent)
}

// 冲刷途中投递失败的帧重新排队，等下一次连接
func TestOutboxRequeuesFailedSends(t *testing.T) {
	router := events.NewRouter()
	healthy := false
	var sent []string
	o := newOutbox(router, func(f frame) bool {
		if !healthy {
			return false
		}
		sent = append(sent, f.Type)
		return true
	})
	o.Add(frame{Type: "op"})

	router.Dispatch(models.ConnectedEvent{})
	require.Equal(t, 1, o.Len())
	require.Empty(t, sent)

	healthy = true
	router.Dispatch(models.ConnectedEvent{})
	require.Equal(t, 0, o.Len())
	require.Equal(t, []string{"op"}, sent)
}

// 冲刷回调执行期间入队的新操作不会丢，留到下一次冲刷
func TestOutboxToleratesEnqueueDuringFlush(t *testing.T) {
	router := events.NewRouter()
	var o *Outbox
	var sent []string
	first := true
	o = newOutbox(router, func(f frame) bool {
		sent = append(sent, f.Type)
		if first {
			first = false
			o.Add(frame{Type: "late"})
		}
		return true
	})
	o.Add(frame{Type: "early"})

	router.Dispatch(models.ConnectedEvent{})
	require.Equal(t, []string{"early"}, sent)
	require.Equal(t, 1, o.Len())

	router.Dispatch(models.ConnectedEvent{})
	require.Equal(t, []string{"early", "late"}, sent)
	require.Equal(t, 0, o.Len())
}
