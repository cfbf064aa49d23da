package models

import "time"

// 服务端下行事件名
const (
	EvConnect       = "connect"       // 传输层：连接建立（本地合成）
	EvDisconnect    = "disconnect"    // 传输层：连接断开（本地合成）
	EvConnectError  = "connect_error" // 传输层：连接失败（本地合成）
	EvLoginSuccess  = "login_success"
	EvLoginError    = "login_error"
	EvSessionStarted   = "session_started"
	EvSessionAccepted  = "session_accepted"
	EvSessionTaken     = "session_taken"
	EvSessionCancelled = "session_cancelled"
	EvSessionRejected  = "session_rejected"
	EvSessionEnded     = "session_ended"
	EvNewWaitingUser   = "new_waiting_user"
	EvNewMessage       = "new_message"
	EvAgentOnline      = "customer_service_online"
	EvAgentOffline     = "customer_service_offline"
	EvStatusUpdated    = "status_updated"
	EvError            = "error"
)

// 客户端上行事件名
const (
	OpAgentLogin    = "customer_service_login"
	OpUserLogin     = "user_login"
	OpAcceptSession = "accept_session"
	OpRejectSession = "reject_session"
	OpSendMessage   = "send_message"
	OpJoinSession   = "join_session"
	OpUpdateStatus  = "update_status"
	OpCancelWaiting = "cancel_waiting"
	OpMarkRead      = "mark_read"
	OpPing          = "ping"
)

// Event 是所有下行事件载荷的封闭联合；每个事件名对应一个具体类型，
// 消费方按类型断言处理，不再信任无类型字段
type Event interface {
	EventName() string
}

// ---- 传输层事件（由连接管理器本地合成） ----

type ConnectedEvent struct{}

func (ConnectedEvent) EventName() string { return EvConnect }

type DisconnectedEvent struct {
	Reason string `json:"reason"`
	// Intentional 为 true 表示主动断开（登出或服务端要求不再重试）
	Intentional bool `json:"intentional"`
}

func (DisconnectedEvent) EventName() string { return EvDisconnect }

// 连接错误分类
type ConnectErrorKind string

const (
	ConnectErrTransport ConnectErrorKind = "transport"
	ConnectErrTimeout   ConnectErrorKind = "timeout"
	ConnectErrAuth      ConnectErrorKind = "auth"
)

type ConnectErrorEvent struct {
	Kind    ConnectErrorKind `json:"kind"`
	Reason  string           `json:"reason"`
	Attempt int              `json:"attempt"`
}

func (ConnectErrorEvent) EventName() string { return EvConnectError }

// ---- 登录事件 ----

type LoginSuccessEvent struct {
	Message string `json:"message"`
	AgentID int64  `json:"customerServiceId"`
	UserID  int64  `json:"userId"`
}

func (LoginSuccessEvent) EventName() string { return EvLoginSuccess }

type LoginErrorEvent struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (LoginErrorEvent) EventName() string { return EvLoginError }

// ---- 会话事件 ----

type SessionStartedEvent struct {
	SessionID SessionID `json:"sessionId"`
	AgentID   int64     `json:"customerServiceId"`
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	Status    string    `json:"status"`
}

func (SessionStartedEvent) EventName() string { return EvSessionStarted }

type SessionAcceptedEvent struct {
	SessionID SessionID `json:"sessionId"`
	AgentID   int64     `json:"customerServiceId"`
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (SessionAcceptedEvent) EventName() string { return EvSessionAccepted }

// 会话被其他客服接走
type SessionTakenEvent struct {
	SessionID SessionID `json:"sessionId"`
	AgentID   int64     `json:"customerServiceId"`
}

func (SessionTakenEvent) EventName() string { return EvSessionTaken }

type SessionCancelledEvent struct {
	SessionID SessionID `json:"sessionId"`
}

func (SessionCancelledEvent) EventName() string { return EvSessionCancelled }

type SessionRejectedEvent struct {
	SessionID SessionID `json:"sessionId"`
}

func (SessionRejectedEvent) EventName() string { return EvSessionRejected }

type SessionEndedEvent struct {
	SessionID SessionID `json:"sessionId"`
	EndedBy   string    `json:"endedBy"`
}

func (SessionEndedEvent) EventName() string { return EvSessionEnded }

type NewWaitingUserEvent struct {
	SessionID SessionID `json:"sessionId"`
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	Priority  Priority  `json:"priority"`
	AgentID   int64     `json:"customerServiceId"` // 指定客服时非 0
	Timestamp time.Time `json:"timestamp"`
}

func (NewWaitingUserEvent) EventName() string { return EvNewWaitingUser }

// ---- 消息事件 ----

type NewMessageEvent struct {
	ID         int64      `json:"id"`
	SessionID  SessionID  `json:"sessionId"`
	SenderType SenderType `json:"senderType"`
	SenderID   int64      `json:"senderId"`
	SenderName string     `json:"senderName"`
	Type       MessageType `json:"messageType"`
	Content    string     `json:"content"`
	FileData   *FileData  `json:"fileData,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

func (NewMessageEvent) EventName() string { return EvNewMessage }

// ---- 客服在线状态事件 ----

type AgentOnlineEvent struct {
	AgentID  int64  `json:"customerServiceId"`
	Username string `json:"username"`
}

func (AgentOnlineEvent) EventName() string { return EvAgentOnline }

type AgentOfflineEvent struct {
	AgentID int64 `json:"customerServiceId"`
}

func (AgentOfflineEvent) EventName() string { return EvAgentOffline }

type StatusUpdatedEvent struct {
	Status AgentStatus `json:"status"`
}

func (StatusUpdatedEvent) EventName() string { return EvStatusUpdated }

// ---- 错误事件 ----

// 协议级错误。SessionID 可能为空；只有与待确认会话精确匹配时才触发回滚
type ErrorEvent struct {
	SessionID SessionID `json:"sessionId"`
	Message   string    `json:"message"`
	Error     string    `json:"error"`
}

func (ErrorEvent) EventName() string { return EvError }
