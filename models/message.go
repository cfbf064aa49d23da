package models

import "time"

type SenderType string

const (
	SenderVisitor SenderType = "user"
	SenderAgent   SenderType = "customer_service"
	SenderSystem  SenderType = "system"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
	MessageEmoji MessageType = "emoji"
)

type FileData struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// 会话内的一条消息。本地乐观消息的 ID 先用客户端毫秒时间戳占位，
// 服务端回显后换成真实ID（见 reconcile 包的回显去重）
type Message struct {
	ID         int64       `json:"id"`
	SessionID  string      `json:"session_id"`
	SenderType SenderType  `json:"sender_type"`
	SenderID   int64       `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	Type       MessageType `json:"message_type"`
	Content    string      `json:"content"`
	FileData   *FileData   `json:"file_data,omitempty"`
	IsRead     bool        `json:"is_read"`
	Local      bool        `json:"-"` // 本地乐观消息，尚未被服务端确认
	CreatedAt  time.Time   `json:"created_at"`
}
