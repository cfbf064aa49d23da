package models

import "time"

type SessionStatus string

const (
	SessionWaiting     SessionStatus = "waiting"
	SessionActive      SessionStatus = "active"
	SessionEnded       SessionStatus = "ended"
	SessionTransferred SessionStatus = "transferred"
	SessionCancelled   SessionStatus = "cancelled"
)

// rank 用于保证状态只能向前流转（waiting -> active -> 终态），不允许回退
func (s SessionStatus) rank() int {
	switch s {
	case SessionWaiting:
		return 1
	case SessionActive:
		return 2
	case SessionEnded, SessionTransferred, SessionCancelled:
		return 3
	}
	return 0
}

// CanTransitionTo 判断状态流转是否合法
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s == next {
		return true
	}
	return next.rank() > s.rank()
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// 一次客服会话（一个用户与一个客服）
type Session struct {
	SessionID string        `json:"session_id"`
	UserID    int64         `json:"user_id"`
	AgentID   int64         `json:"customer_service_id"` // 接受前为 0
	Username  string        `json:"username"`
	Status    SessionStatus `json:"status"`
	Priority  Priority      `json:"priority"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}

// Timestamp 返回用于合并冲突比较的时间戳（最新时间戳优先）
func (s Session) Timestamp() time.Time {
	if s.UpdatedAt.After(s.CreatedAt) {
		return s.UpdatedAt
	}
	return s.CreatedAt
}
