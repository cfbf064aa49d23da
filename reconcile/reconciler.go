package reconcile

import (
	"errors"
	"log"
	"sync"
	"time"

	"LiteChat/connection"
	"LiteChat/events"
	"LiteChat/models"
)

var ErrNotWaiting = errors.New("session not in waiting list")

// Sender 是向服务端投递上行操作的最小接口（connection.Manager 实现）
type Sender interface {
	Emit(event string, payload interface{})
	JoinRoom(sessionID string)
}

// NoticeFunc 接收需要透出给界面的瞬时提示（丢失接受竞争、协议错误等）
type NoticeFunc func(level, message string)

// 本地乐观消息与服务端回显的匹配窗口
const echoWindow = 30 * time.Second

type pendingAccept struct {
	snapshot models.Session // 回滚时恢复到等待列表的快照
	timer    *time.Timer
}

// Reconciler 维护三份"权威但本地缓存"的视图：等待队列（客服侧）、
// 活跃会话集合、每会话未读计数。推送事件与 REST 快照两路输入在这里
// 合并去重，冲突按最新时间戳裁决
type Reconciler struct {
	sender   Sender
	identity *connection.Identity
	notify   NoticeFunc

	acceptWait time.Duration

	mu        sync.Mutex
	waiting   map[int64]models.Session  // 按用户ID去重：同一用户重试会生成新的会话ID
	active    map[string]models.Session // 严格按会话ID
	messages  map[string][]models.Message
	unread    map[string]int
	agents    map[int64]models.Agent
	pending   map[string]*pendingAccept // 已乐观移除、等待服务端确认的接受操作
	focused   string
	ownStatus models.AgentStatus // 服务端确认的本客服状态
	subs      map[string][]events.HandlerID
}

func NewReconciler(sender Sender, identity *connection.Identity, acceptWait time.Duration) *Reconciler {
	if acceptWait <= 0 {
		acceptWait = 10 * time.Second
	}
	return &Reconciler{
		sender:     sender,
		identity:   identity,
		acceptWait: acceptWait,
		notify: func(level, message string) {
			log.Printf("notice [%s]: %s", level, message)
		},
		waiting:  make(map[int64]models.Session),
		active:   make(map[string]models.Session),
		messages: make(map[string][]models.Message),
		unread:   make(map[string]int),
		agents:   make(map[int64]models.Agent),
		pending:  make(map[string]*pendingAccept),
		subs:     make(map[string][]events.HandlerID),
	}
}

// SetNoticeFunc 替换界面提示回调
func (r *Reconciler) SetNoticeFunc(fn NoticeFunc) {
	if fn != nil {
		r.notify = fn
	}
}

// Attach 在路由器上注册全部下行事件处理器
func (r *Reconciler) Attach(router *events.Router) {
	on := func(name string, fn events.Handler) {
		r.subs[name] = append(r.subs[name], router.On(name, fn))
	}
	on(models.EvLoginSuccess, r.handleLoginSuccess)
	on(models.EvNewWaitingUser, r.handleNewWaitingUser)
	on(models.EvSessionAccepted, r.handleSessionAccepted)
	on(models.EvSessionTaken, r.handleSessionTaken)
	on(models.EvSessionCancelled, r.handleSessionCancelled)
	on(models.EvSessionRejected, r.handleSessionRejected)
	on(models.EvSessionEnded, r.handleSessionEnded)
	on(models.EvSessionStarted, r.handleSessionStarted)
	on(models.EvNewMessage, r.handleNewMessage)
	on(models.EvAgentOnline, r.handleAgentOnline)
	on(models.EvAgentOffline, r.handleAgentOffline)
	on(models.EvStatusUpdated, r.handleStatusUpdated)
	on(models.EvError, r.handleError)
}

// Detach 注销本协调器注册的处理器，不影响其他消费方
func (r *Reconciler) Detach(router *events.Router) {
	for name, ids := range r.subs {
		router.Off(name, ids...)
	}
	r.subs = make(map[string][]events.HandlerID)
}

// ---- 客服侧操作 ----

// Accept 接受等待会话：乐观地先从等待列表移除并发送 accept_session，
// 等服务端确认后才晋升到活跃集合；确认窗口内没等到就恢复等待项
func (r *Reconciler) Accept(sessionID string) error {
	id := models.NormalizeSessionID(sessionID)
	r.mu.Lock()
	var snap models.Session
	found := false
	for uid, s := range r.waiting {
		if models.NormalizeSessionID(s.SessionID) == id {
			snap = s
			delete(r.waiting, uid)
			found = true
			break
		}
	}
	if !found {
		r.mu.Unlock()
		return ErrNotWaiting
	}
	timer := time.AfterFunc(r.acceptWait, func() {
		r.restorePending(id, "accept confirmation timed out")
	})
	r.pending[id] = &pendingAccept{snapshot: snap, timer: timer}
	r.mu.Unlock()

	r.sender.Emit(models.OpAcceptSession, map[string]string{"sessionId": id})
	return nil
}

// Reject 拒绝等待会话：无条件立即移除，不等确认——
// 本客服拒绝不妨碍其他客服处理同一会话
func (r *Reconciler) Reject(sessionID string) {
	id := models.NormalizeSessionID(sessionID)
	r.mu.Lock()
	r.removeWaitingLocked(id)
	r.mu.Unlock()
	r.sender.Emit(models.OpRejectSession, map[string]string{"sessionId": id})
}

// CancelWaiting 用户侧取消排队
func (r *Reconciler) CancelWaiting(sessionID string) {
	id := models.NormalizeSessionID(sessionID)
	r.mu.Lock()
	r.removeWaitingLocked(id)
	r.mu.Unlock()
	r.sender.Emit(models.OpCancelWaiting, map[string]string{"sessionId": id})
}

// UpdateStatus 更新客服在线状态
func (r *Reconciler) UpdateStatus(status models.AgentStatus) {
	r.sender.Emit(models.OpUpdateStatus, map[string]string{"status": string(status)})
}

// SendMessage 发送消息：先以客户端毫秒时间戳为ID追加一条本地乐观消息，
// 服务端回显到达后原地换成真实ID，不产生重复
func (r *Reconciler) SendMessage(sessionID, content string, mtype models.MessageType, fd *models.FileData) models.Message {
	id := models.NormalizeSessionID(sessionID)
	now := time.Now()
	local := models.Message{
		ID:         now.UnixMilli(),
		SessionID:  id,
		SenderType: models.SenderType(r.identity.UserType()),
		SenderID:   r.identity.UserID(),
		SenderName: r.identity.Username(),
		Type:       mtype,
		Content:    content,
		FileData:   fd,
		Local:      true,
		CreatedAt:  now,
	}
	r.mu.Lock()
	r.messages[id] = append(r.messages[id], local)
	r.mu.Unlock()

	payload := map[string]interface{}{
		"sessionId":   id,
		"content":     content,
		"messageType": mtype,
	}
	if fd != nil {
		payload["fileData"] = fd
	}
	r.sender.Emit(models.OpSendMessage, payload)
	return local
}

// Focus 切换正在查看的会话：未读立刻清零并确保加入了会话房间
func (r *Reconciler) Focus(sessionID string) {
	id := models.NormalizeSessionID(sessionID)
	r.mu.Lock()
	r.focused = id
	delete(r.unread, id)
	r.mu.Unlock()
	if id != "" {
		r.sender.JoinRoom(id)
	}
}

// Blur 取消聚焦
func (r *Reconciler) Blur() {
	r.mu.Lock()
	r.focused = ""
	r.mu.Unlock()
}

// MarkRead 显式已读回执：清零计数并通知服务端
func (r *Reconciler) MarkRead(sessionID string) {
	id := models.NormalizeSessionID(sessionID)
	var lastID int64
	r.mu.Lock()
	delete(r.unread, id)
	if msgs := r.messages[id]; len(msgs) > 0 {
		lastID = msgs[len(msgs)-1].ID
	}
	r.mu.Unlock()
	if lastID != 0 {
		r.sender.Emit(models.OpMarkRead, map[string]int64{"messageId": lastID})
	}
}

// ---- 事件处理 ----

func (r *Reconciler) handleLoginSuccess(e models.Event) {
	ev, ok := e.(models.LoginSuccessEvent)
	if !ok {
		return
	}
	// 登录确认回填身份绑定，重连后重放登录用
	if ev.AgentID != 0 {
		r.identity.Bind(connection.UserTypeAgent, ev.AgentID)
	} else if ev.UserID != 0 {
		r.identity.Bind(connection.UserTypeVisitor, ev.UserID)
	}
}

// 同一用户只保留最新一条等待记录（用户重试会生成新的会话ID）
func (r *Reconciler) handleNewWaitingUser(e models.Event) {
	ev, ok := e.(models.NewWaitingUserEvent)
	if !ok || ev.UserID == 0 {
		return
	}
	// 指定了其他客服的等待会话不入本地队列
	if selfID := r.identity.UserID(); ev.AgentID != 0 && selfID != 0 && ev.AgentID != selfID {
		return
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	s := models.Session{
		SessionID: ev.SessionID.String(),
		UserID:    ev.UserID,
		Username:  ev.Username,
		Status:    models.SessionWaiting,
		Priority:  ev.Priority,
		CreatedAt: ts,
	}
	if s.Priority == "" {
		s.Priority = models.PriorityNormal
	}
	r.mu.Lock()
	r.waiting[ev.UserID] = s
	r.mu.Unlock()
	r.notify("info", "new waiting user: "+s.Username)
}

// 接受确认：待确认项转正进入活跃集合。重复投递是幂等的
func (r *Reconciler) handleSessionAccepted(e models.Event) {
	ev, ok := e.(models.SessionAcceptedEvent)
	if !ok {
		return
	}
	id := models.NormalizeSessionID(ev.SessionID.String())
	if id == "" {
		return
	}
	r.mu.Lock()
	var snap models.Session
	if p, exists := r.pending[id]; exists {
		p.timer.Stop()
		snap = p.snapshot
		delete(r.pending, id)
	}
	// 无论是本端接受还是其他端/其他客服接受，都从等待列表移除
	r.removeWaitingLocked(id)

	if _, exists := r.active[id]; exists {
		// 确认重复投递，忽略
		r.mu.Unlock()
		return
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	sess := models.Session{
		SessionID: id,
		UserID:    ev.UserID,
		AgentID:   ev.AgentID,
		Username:  ev.Username,
		Status:    models.SessionActive,
		Priority:  snap.Priority,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: ts,
	}
	// 广播里缺的字段用等待列表快照兜底
	if sess.UserID == 0 {
		sess.UserID = snap.UserID
	}
	if sess.Username == "" {
		sess.Username = snap.Username
	}
	if sess.Priority == "" {
		sess.Priority = models.PriorityNormal
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = ts
	}
	r.active[id] = sess
	r.mu.Unlock()

	// 确保收到该会话的后续消息
	r.sender.JoinRoom(id)
}

// 会话被其他客服接走：从等待列表移除即可
func (r *Reconciler) handleSessionTaken(e models.Event) {
	ev, ok := e.(models.SessionTakenEvent)
	if !ok {
		return
	}
	id := models.NormalizeSessionID(ev.SessionID.String())
	r.mu.Lock()
	r.removeWaitingLocked(id)
	r.mu.Unlock()
	r.notify("info", "session taken by another agent")
}

func (r *Reconciler) handleSessionCancelled(e models.Event) {
	ev, ok := e.(models.SessionCancelledEvent)
	if !ok {
		return
	}
	id := models.NormalizeSessionID(ev.SessionID.String())
	r.mu.Lock()
	r.removeWaitingLocked(id)
	// 用户在接受确认窗口内取消：丢弃待确认项，避免之后把已取消的会话恢复回等待列表
	if p, exists := r.pending[id]; exists {
		p.timer.Stop()
		delete(r.pending, id)
	}
	if r.focused == id {
		r.focused = ""
	}
	r.mu.Unlock()
	r.notify("warning", "user cancelled waiting")
}

func (r *Reconciler) handleSessionRejected(e models.Event) {
	ev, ok := e.(models.SessionRejectedEvent)
	if !ok {
		return
	}
	id := models.NormalizeSessionID(ev.SessionID.String())
	r.mu.Lock()
	r.removeWaitingLocked(id)
	r.mu.Unlock()
}

func (r *Reconciler) handleSessionEnded(e models.Event) {
	ev, ok := e.(models.SessionEndedEvent)
	if !ok {
		return
	}
	id := models.NormalizeSessionID(ev.SessionID.String())
	r.mu.Lock()
	if s, exists := r.active[id]; exists && s.Status.CanTransitionTo(models.SessionEnded) {
		s.Status = models.SessionEnded
		now := time.Now()
		s.EndedAt = &now
		s.UpdatedAt = now
		r.active[id] = s
	}
	if r.focused == id {
		r.focused = ""
	}
	delete(r.unread, id)
	r.mu.Unlock()
	r.notify("info", "session ended")
}

// 用户侧：会话建立（被客服接受或直连）
func (r *Reconciler) handleSessionStarted(e models.Event) {
	ev, ok := e.(models.SessionStartedEvent)
	if !ok {
		return
	}
	id := models.NormalizeSessionID(ev.SessionID.String())
	if id == "" {
		return
	}
	r.mu.Lock()
	if _, exists := r.active[id]; !exists {
		r.active[id] = models.Session{
			SessionID: id,
			UserID:    ev.UserID,
			AgentID:   ev.AgentID,
			Username:  ev.Username,
			Status:    models.SessionActive,
			Priority:  models.PriorityNormal,
			CreatedAt: time.Now(),
		}
	}
	r.mu.Unlock()
	r.sender.JoinRoom(id)
}

func (r *Reconciler) handleNewMessage(e models.Event) {
	ev, ok := e.(models.NewMessageEvent)
	if !ok {
		return
	}
	id := models.NormalizeSessionID(ev.SessionID.String())
	if id == "" {
		return
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := models.Message{
		ID:         ev.ID,
		SessionID:  id,
		SenderType: ev.SenderType,
		SenderID:   ev.SenderID,
		SenderName: ev.SenderName,
		Type:       ev.Type,
		Content:    ev.Content,
		FileData:   ev.FileData,
		CreatedAt:  ts,
	}

	r.mu.Lock()
	// 自己发送的消息回显：与本地乐观消息合并而不是追加
	if msg.SenderType == models.SenderType(r.identity.UserType()) {
		if r.reconcileEchoLocked(id, msg) {
			r.mu.Unlock()
			return
		}
	}
	r.messages[id] = append(r.messages[id], msg)

	if r.focused == id {
		// 正在查看的会话不计未读，立即回执已读
		r.mu.Unlock()
		if ev.ID != 0 {
			r.sender.Emit(models.OpMarkRead, map[string]int64{"messageId": ev.ID})
		}
		return
	}
	r.unread[id]++
	r.mu.Unlock()
}

// reconcileEchoLocked 从尾部找同内容的未确认本地消息，命中则原地替换
func (r *Reconciler) reconcileEchoLocked(sessionID string, echo models.Message) bool {
	msgs := r.messages[sessionID]
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if !m.Local {
			continue
		}
		if m.Content != echo.Content || m.Type != echo.Type {
			continue
		}
		if echo.CreatedAt.Sub(m.CreatedAt) > echoWindow {
			break
		}
		echo.Local = false
		msgs[i] = echo
		return true
	}
	return false
}

func (r *Reconciler) handleAgentOnline(e models.Event) {
	ev, ok := e.(models.AgentOnlineEvent)
	if !ok {
		return
	}
	r.mu.Lock()
	a := r.agents[ev.AgentID]
	a.ID = ev.AgentID
	if ev.Username != "" {
		a.Username = ev.Username
	}
	a.Status = models.AgentOnline
	r.agents[ev.AgentID] = a
	r.mu.Unlock()
}

func (r *Reconciler) handleAgentOffline(e models.Event) {
	ev, ok := e.(models.AgentOfflineEvent)
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.agents, ev.AgentID)
	r.mu.Unlock()
}

// 状态变更确认：更新本客服状态，并同步到花名册里自己的条目
func (r *Reconciler) handleStatusUpdated(e models.Event) {
	ev, ok := e.(models.StatusUpdatedEvent)
	if !ok || ev.Status == "" {
		return
	}
	selfID := r.identity.UserID()
	r.mu.Lock()
	r.ownStatus = ev.Status
	if a, exists := r.agents[selfID]; exists {
		a.Status = ev.Status
		r.agents[selfID] = a
	}
	r.mu.Unlock()
}

// 协议错误：只有错误里的会话ID与待确认的接受操作精确匹配时才回滚恢复，
// 其他会话的错误绝不动待确认项
func (r *Reconciler) handleError(e models.Event) {
	ev, ok := e.(models.ErrorEvent)
	if !ok {
		return
	}
	if ev.Message != "" {
		r.notify("error", ev.Message)
	}
	id := models.NormalizeSessionID(ev.SessionID.String())
	if id == "" {
		return
	}
	r.mu.Lock()
	_, exists := r.pending[id]
	r.mu.Unlock()
	if exists {
		r.restorePending(id, "server rejected accept")
	}
}

// restorePending 把待确认的接受操作回滚到等待列表（丢失竞争或超时）
func (r *Reconciler) restorePending(sessionID, reason string) {
	r.mu.Lock()
	p, exists := r.pending[sessionID]
	if !exists {
		r.mu.Unlock()
		return
	}
	p.timer.Stop()
	delete(r.pending, sessionID)
	snap := p.snapshot
	cur, ok := r.waiting[snap.UserID]
	if !ok || snap.Timestamp().After(cur.Timestamp()) {
		r.waiting[snap.UserID] = snap
	}
	r.mu.Unlock()
	log.Printf("reconcile: restoring session %s to waiting list: %s", sessionID, reason)
	r.notify("warning", "accept failed, session returned to waiting list")
}

// removeWaitingLocked 按会话ID从等待列表移除（调用方持锁）
func (r *Reconciler) removeWaitingLocked(sessionID string) {
	for uid, s := range r.waiting {
		if models.NormalizeSessionID(s.SessionID) == sessionID {
			delete(r.waiting, uid)
		}
	}
}
