package models

// 连接阶段，构成一个显式状态机：
// idle -> connecting -> connected -> (backoff -> connecting)* -> disconnected
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseBackoff
	PhaseDisconnected // 终态：重连次数耗尽或认证失败
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseBackoff:
		return "backoff"
	case PhaseDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// ConnectionState 是连接管理器对外暴露的只读快照
type ConnectionState struct {
	Phase            Phase    `json:"phase"`
	ReconnectAttempt int      `json:"reconnect_attempt"`
	Rooms            []string `json:"rooms"`
}
