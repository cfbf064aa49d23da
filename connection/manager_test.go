package connection

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"LiteChat/config"
	"LiteChat/events"
	"LiteChat/models"
)

func testConnectConfig() config.ConnectConfig {
	return config.ConnectConfig{
		BaseDelay:   1,
		MaxDelay:    30,
		MaxAttempts: 30,
		Cooldown:    3,
		Timeout:     15,
		AcceptWait:  10,
	}
}

func TestBackoffDelayDoublesUntilCap(t *testing.T) {
	cfg := testConnectConfig()
	require.Equal(t, 1*time.Second, backoffDelay(cfg, 1))
	require.Equal(t, 2*time.Second, backoffDelay(cfg, 2))
	require.Equal(t, 4*time.Second, backoffDelay(cfg, 3))
	require.Equal(t, 16*time.Second, backoffDelay(cfg, 5))
	require.Equal(t, 30*time.Second, backoffDelay(cfg, 6))
	require.Equal(t, 30*time.Second, backoffDelay(cfg, 29))
}

func TestBackoffDelayShiftOverflow(t *testing.T) {
	cfg := testConnectConfig()
	// 移位溢出不能回绕成小延迟
	require.Equal(t, 30*time.Second, backoffDelay(cfg, 80))
}

func TestBackoffDelayClampsAttempt(t *testing.T) {
	cfg := testConnectConfig()
	require.Equal(t, 1*time.Second, backoffDelay(cfg, 0))
	require.Equal(t, 1*time.Second, backoffDelay(cfg, -3))
}

// disconnected/idle 不允许不经过 connecting 直接到 connected
func TestPhaseTransitionRequiresConnecting(t *testing.T) {
	require.False(t, validPhaseTransition(models.PhaseDisconnected, models.PhaseConnected))
	require.False(t, validPhaseTransition(models.PhaseIdle, models.PhaseConnected))
	require.False(t, validPhaseTransition(models.PhaseBackoff, models.PhaseConnected))
	require.True(t, validPhaseTransition(models.PhaseIdle, models.PhaseConnecting))
	require.True(t, validPhaseTransition(models.PhaseConnecting, models.PhaseConnected))
	require.True(t, validPhaseTransition(models.PhaseConnecting, models.PhaseBackoff))
	require.True(t, validPhaseTransition(models.PhaseBackoff, models.PhaseConnecting))
	require.True(t, validPhaseTransition(models.PhaseConnected, models.PhaseIdle))
}

func TestAttachToken(t *testing.T) {
	target, err := attachToken("ws://localhost:7001/ws", "tok123")
	require.NoError(t, err)

	u, err := url.Parse(target)
	require.NoError(t, err)
	require.Equal(t, "tok123", u.Query().Get("token"))
	require.Equal(t, "/ws", u.Path)
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestClassifyDialError(t *testing.T) {
	require.Equal(t, models.ConnectErrAuth, classifyDialError(401, errors.New("bad handshake")))
	require.Equal(t, models.ConnectErrAuth, classifyDialError(403, errors.New("bad handshake")))
	require.Equal(t, models.ConnectErrTimeout, classifyDialError(0, timeoutErr{}))
	require.Equal(t, models.ConnectErrTransport, classifyDialError(500, errors.New("refused")))
	require.Equal(t, models.ConnectErrTransport, classifyDialError(0, errors.New("refused")))
}

func TestManagerStartsIdle(t *testing.T) {
	m := NewManager("ws://localhost:1/ws", testConnectConfig(), events.NewRouter())
	require.Equal(t, models.PhaseIdle, m.Phase())
	require.False(t, m.IsConnected())
	require.Empty(t, m.State().Rooms)
}

func TestEmitWhileDisconnectedQueuesToOutbox(t *testing.T) {
	m := NewManager("ws://localhost:1/ws", testConnectConfig(), events.NewRouter())

	m.Emit(models.OpSendMessage, map[string]string{"sessionId": "1", "content": "hi"})
	m.Emit(models.OpSendMessage, map[string]string{"sessionId": "1", "content": "again"})

	require.Equal(t, 2, m.OutboxLen())
}

func TestJoinRoomNormalizesAndDeduplicates(t *testing.T) {
	m := NewManager("ws://localhost:1/ws", testConnectConfig(), events.NewRouter())

	m.JoinRoom(" 42_7 ")
	m.JoinRoom("42_7")
	m.JoinRoom("")

	require.Equal(t, []string{"42_7"}, m.State().Rooms)
}

func TestLeaveRoomRemovesFromReplaySet(t *testing.T) {
	m := NewManager("ws://localhost:1/ws", testConnectConfig(), events.NewRouter())

	m.JoinRoom("a")
	m.JoinRoom("b")
	m.LeaveRoom("a")

	require.Equal(t, []string{"b"}, m.State().Rooms)
}

// 主动断开清空房间集合与身份，且绝不触发重连
func TestDisconnectResetsState(t *testing.T) {
	router := events.NewRouter()
	var disc []models.DisconnectedEvent
	router.On(models.EvDisconnect, func(e models.Event) {
		disc = append(disc, e.(models.DisconnectedEvent))
	})
	m := NewManager("ws://localhost:1/ws", testConnectConfig(), router)
	m.JoinRoom("42_7")

	m.Disconnect()

	require.Equal(t, models.PhaseIdle, m.Phase())
	require.Empty(t, m.State().Rooms)
	require.Len(t, disc, 1)
	require.True(t, disc[0].Intentional)
}
