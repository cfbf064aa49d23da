package models

import "time"

type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
	AgentBusy    AgentStatus = "busy"
)

// 客服信息（在线列表）
type Agent struct {
	ID                 int64       `json:"id"`
	Username           string      `json:"username"`
	Email              string      `json:"email"`
	Avatar             string      `json:"avatar"`
	Status             AgentStatus `json:"status"`
	MaxConcurrentChats int         `json:"max_concurrent_chats"`
	CurrentChats       int         `json:"current_chats"`
	LastLoginAt        *time.Time  `json:"last_login_at,omitempty"`
}

// 会话/消息统计
type Statistics struct {
	TotalSessions  int `json:"totalSessions"`
	ActiveSessions int `json:"activeSessions"`
	EndedSessions  int `json:"endedSessions"`
	TotalMessages  int `json:"totalMessages"`
	TodaySessions  int `json:"todaySessions"`
	TodayMessages  int `json:"todayMessages"`
}
