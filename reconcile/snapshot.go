package reconcile

import (
	"log"
	"sort"

	"LiteChat/models"
)

// ApplyWaitingSnapshot 合并 REST 拉取的等待列表。推送事件可能先于快照到达，
// 合并规则：同一用户保留时间戳更新的一条；已乐观移除待确认的会话不回灌
func (r *Reconciler) ApplyWaitingSnapshot(list []models.Session) {
	selfID := r.identity.UserID()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range list {
		if s.Status != models.SessionWaiting || s.UserID == 0 {
			continue
		}
		id := models.NormalizeSessionID(s.SessionID)
		if id == "" {
			continue
		}
		if s.AgentID != 0 && selfID != 0 && s.AgentID != selfID {
			continue
		}
		if _, inFlight := r.pending[id]; inFlight {
			continue
		}
		s.SessionID = id
		cur, exists := r.waiting[s.UserID]
		if !exists || s.Timestamp().After(cur.Timestamp()) {
			r.waiting[s.UserID] = s
		}
	}
}

// ApplySessionsSnapshot 合并 REST 拉取的本端会话列表。本地没有的活跃会话
// 直接收编（断线期间被其他端接受的情况）；状态冲突按最新时间戳裁决，
// 且只允许生命周期向前走，绝不把已结束的会话拉回活跃
func (r *Reconciler) ApplySessionsSnapshot(list []models.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range list {
		id := models.NormalizeSessionID(s.SessionID)
		if id == "" || s.Status == models.SessionWaiting {
			continue
		}
		s.SessionID = id
		cur, exists := r.active[id]
		if !exists {
			r.active[id] = s
			continue
		}
		if cur.Status == s.Status {
			if s.Timestamp().After(cur.Timestamp()) {
				r.active[id] = s
			}
			continue
		}
		if !s.Timestamp().After(cur.Timestamp()) {
			log.Printf("reconcile: session %s snapshot status %s older than local %s, keeping local", id, s.Status, cur.Status)
			continue
		}
		if !cur.Status.CanTransitionTo(s.Status) {
			log.Printf("reconcile: session %s refusing backward transition %s -> %s", id, cur.Status, s.Status)
			continue
		}
		log.Printf("reconcile: session %s status %s -> %s from snapshot", id, cur.Status, s.Status)
		r.active[id] = s
	}
}

// ApplyMessagesSnapshot 用历史消息替换会话缓存，保留尚未确认的本地乐观消息
func (r *Reconciler) ApplyMessagesSnapshot(sessionID string, list []models.Message) {
	id := models.NormalizeSessionID(sessionID)
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[int64]struct{}, len(list))
	merged := make([]models.Message, 0, len(list))
	for _, m := range list {
		m.SessionID = id
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	for _, m := range r.messages[id] {
		if m.Local {
			merged = append(merged, m)
		}
	}
	r.messages[id] = merged
}

// ApplyAgentsSnapshot 用 REST 拉取的在线客服名单重建花名册
func (r *Reconciler) ApplyAgentsSnapshot(list []models.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[int64]models.Agent, len(list))
	for _, a := range list {
		if a.ID == 0 {
			continue
		}
		r.agents[a.ID] = a
	}
}

// ---- 只读视图 ----

// WaitingSessions 返回等待队列，新的在前
func (r *Reconciler) WaitingSessions() []models.Session {
	r.mu.Lock()
	out := make([]models.Session, 0, len(r.waiting))
	for _, s := range r.waiting {
		out = append(out, s)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp().After(out[j].Timestamp())
	})
	return out
}

// ActiveSessions 返回本端会话列表（含已结束），按最近更新排序
func (r *Reconciler) ActiveSessions() []models.Session {
	r.mu.Lock()
	out := make([]models.Session, 0, len(r.active))
	for _, s := range r.active {
		out = append(out, s)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp().After(out[j].Timestamp())
	})
	return out
}

// Session 按会话ID查询
func (r *Reconciler) Session(sessionID string) (models.Session, bool) {
	id := models.NormalizeSessionID(sessionID)
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.active[id]
	return s, ok
}

// Messages 返回会话消息的副本
func (r *Reconciler) Messages(sessionID string) []models.Message {
	id := models.NormalizeSessionID(sessionID)
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[id]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}

// UnreadCount 返回单个会话的未读数
func (r *Reconciler) UnreadCount(sessionID string) int {
	id := models.NormalizeSessionID(sessionID)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unread[id]
}

// UnreadCounts 返回全部未读计数的副本
func (r *Reconciler) UnreadCounts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.unread))
	for k, v := range r.unread {
		out[k] = v
	}
	return out
}

// Focused 返回当前聚焦的会话ID，没有则为空串
func (r *Reconciler) Focused() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.focused
}

// OnlineAgents 返回在线客服名单
func (r *Reconciler) OnlineAgents() []models.Agent {
	r.mu.Lock()
	out := make([]models.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OwnStatus 返回服务端最近确认的本客服状态
func (r *Reconciler) OwnStatus() models.AgentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownStatus
}

// PendingAccept 报告某会话是否有未确认的接受操作
func (r *Reconciler) PendingAccept(sessionID string) bool {
	id := models.NormalizeSessionID(sessionID)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}
