package connection

import (
	"encoding/json"
	"log"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"LiteChat/config"
	"LiteChat/events"
	"LiteChat/models"
)

const (
	writeWait = 10 * time.Second // 单次写超时
	readWait  = 60 * time.Second // 读超时，收到 pong 或任意帧后重置
	pingEvery = 54 * time.Second // 心跳间隔（须小于 readWait）
	sendBuf   = 256              // 发送队列缓冲
)

// 上行/下行信封
type frame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type rawFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Manager 持有唯一的通道实例：负责连接/断开、指数退避重连、
// 连接冷却与防重入守卫、以及跨重连存活并重放的房间集合。
// 连接失败不向调用方抛错，统一通过事件路由器广播连接状态变化
type Manager struct {
	id       string // 客户端实例标识
	socketURL string
	cfg      config.ConnectConfig
	router   *events.Router
	identity *Identity
	outbox   *Outbox
	dialer   *websocket.Dialer

	mu               sync.Mutex
	phase            models.Phase
	conn             *websocket.Conn
	send             chan frame
	done             chan struct{} // 当前连接的关闭信号
	token            string
	attempt          int
	rooms            map[string]struct{}
	lastConnectAt    time.Time
	connectStartedAt time.Time
	reconnectTimer   *time.Timer
	gen              int // 连接代次，用于作废过期协程的回调
}

func NewManager(socketURL string, cfg config.ConnectConfig, router *events.Router) *Manager {
	m := &Manager{
		id:        uuid.New().String(),
		socketURL: socketURL,
		cfg:       cfg,
		router:    router,
		identity:  &Identity{},
		rooms:     make(map[string]struct{}),
		dialer: &websocket.Dialer{
			HandshakeTimeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
	m.outbox = newOutbox(router, m.trySend)
	return m
}

func (m *Manager) ID() string { return m.id }

func (m *Manager) Identity() *Identity { return m.identity }

// State 返回连接状态的只读快照
func (m *Manager) State() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := make([]string, 0, len(m.rooms))
	for r := range m.rooms {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return models.ConnectionState{
		Phase:            m.phase,
		ReconnectAttempt: m.attempt,
		Rooms:            rooms,
	}
}

func (m *Manager) Phase() models.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Manager) IsConnected() bool {
	return m.Phase() == models.PhaseConnected
}

// Connect 建立或复用通道。幂等：凭证不变且已连接/正在连接时直接复用。
// isInitial 为 true 表示进程启动时的首次连接，跳过冷却限制。
// 连接失败不返回错误，观察方通过 connect_error / disconnect 事件感知
func (m *Manager) Connect(token string, isInitial bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()

	if (m.phase == models.PhaseConnected || m.phase == models.PhaseConnecting) && m.token == token {
		// 防重入守卫的自愈：connecting 停留超过连接超时说明上一次尝试
		// 已经失败但解锁信号丢了，强制清理而不是永久卡死后续连接
		stale := m.phase == models.PhaseConnecting &&
			now.Sub(m.connectStartedAt) > time.Duration(m.cfg.Timeout)*time.Second
		if !stale {
			return
		}
		log.Printf("connection: stale connecting state (started %s ago), resetting guard",
			now.Sub(m.connectStartedAt).Round(time.Second))
		m.teardownLocked()
	}

	// 冷却：已有连接记录且距上次连接太近时不再发起（初始连接除外）。
	// 必须先于凭证变更的拆除判断，否则冷却期内换凭证会拆掉健康连接
	// 又不排定重连，卡死在 backoff
	if !isInitial && !m.lastConnectAt.IsZero() &&
		now.Sub(m.lastConnectAt) < time.Duration(m.cfg.Cooldown)*time.Second {
		log.Printf("connection: cooldown in effect, connect suppressed")
		return
	}

	// 凭证变更：断开旧连接后用新凭证重连
	if m.conn != nil && m.token != token {
		log.Printf("connection: token changed, reconnecting")
		m.teardownLocked()
	}

	m.attempt = 0
	m.startAttemptLocked(token)
}

// Disconnect 主动断开：取消排定的重连，拆除连接，状态回到 idle。
// 主动断开绝不触发退避重连
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.teardownLocked()
	m.token = ""
	m.attempt = 0
	m.rooms = make(map[string]struct{})
	m.identity.clear()
	m.setPhaseLocked(models.PhaseIdle)
	m.mu.Unlock()

	m.router.Dispatch(models.DisconnectedEvent{Reason: "client disconnect", Intentional: true})
}

// Emit 发送一帧：已连接则直接入发送队列，否则进 Outbox 等下次连接
func (m *Manager) Emit(event string, payload interface{}) {
	f := frame{Type: event, Payload: payload}
	if m.trySend(f) {
		return
	}
	m.outbox.Add(f)
}

// JoinRoom 加入会话房间并登记到房间集合；集合跨重连存活，重连后重放。
// 服务端的 join 是幂等的，重复加入无副作用
func (m *Manager) JoinRoom(sessionID string) {
	sessionID = models.NormalizeSessionID(sessionID)
	if sessionID == "" {
		return
	}
	m.mu.Lock()
	m.rooms[sessionID] = struct{}{}
	m.mu.Unlock()
	m.Emit(models.OpJoinSession, map[string]string{"sessionId": sessionID})
}

// LeaveRoom 只从集合里移除，后端在断开时自行清理房间成员
func (m *Manager) LeaveRoom(sessionID string) {
	sessionID = models.NormalizeSessionID(sessionID)
	m.mu.Lock()
	delete(m.rooms, sessionID)
	m.mu.Unlock()
}

// Ping 发送应用层心跳（连通性自检）
func (m *Manager) Ping() {
	m.Emit(models.OpPing, map[string]int64{"timestamp": time.Now().UnixMilli()})
}

// OutboxLen 当前排队等待投递的操作数
func (m *Manager) OutboxLen() int {
	return m.outbox.Len()
}

// ---- 内部 ----

// trySend 在已连接时把帧写入发送队列，成功返回 true
func (m *Manager) trySend(f frame) bool {
	m.mu.Lock()
	if m.phase != models.PhaseConnected || m.send == nil {
		m.mu.Unlock()
		return false
	}
	send := m.send
	m.mu.Unlock()

	select {
	case send <- f:
		return true
	default:
		log.Printf("connection: send buffer full, dropping %s", f.Type)
		return false
	}
}

// startAttemptLocked 发起一次连接尝试（调用方持锁）
func (m *Manager) startAttemptLocked(token string) {
	now := time.Now()
	m.setPhaseLocked(models.PhaseConnecting)
	m.connectStartedAt = now
	m.lastConnectAt = now
	m.token = token
	m.identity.SetToken(token)
	m.gen++
	go m.dial(m.gen, token)
}

// dial 在独立协程中完成握手，调用方（Connect）从不阻塞
func (m *Manager) dial(gen int, token string) {
	target, err := attachToken(m.socketURL, token)
	if err != nil {
		m.handleDialError(gen, 0, err)
		return
	}

	conn, resp, err := m.dialer.Dial(target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		m.handleDialError(gen, status, err)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		// 过期的连接尝试（期间发生了 Disconnect 或新的 Connect）
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.send = make(chan frame, sendBuf)
	m.done = make(chan struct{})
	m.attempt = 0
	m.setPhaseLocked(models.PhaseConnected)
	send, done := m.send, m.done
	m.mu.Unlock()

	go m.writePump(conn, send, done)
	go m.readPump(gen, conn)

	// 先重新声明身份、重放房间，再广播 connect（Outbox 冲刷挂在 connect 上，
	// 保证排队操作在登录和入房之后投递）
	m.replayIdentity(send)
	m.replayRooms(send)
	m.router.Dispatch(models.ConnectedEvent{})
}

func (m *Manager) replayIdentity(send chan frame) {
	if f, ok := m.identity.loginFrame(); ok {
		select {
		case send <- f:
		default:
			log.Printf("connection: send buffer full, login replay dropped")
		}
	}
}

func (m *Manager) replayRooms(send chan frame) {
	m.mu.Lock()
	rooms := make([]string, 0, len(m.rooms))
	for r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()
	for _, room := range rooms {
		f := frame{Type: models.OpJoinSession, Payload: map[string]string{"sessionId": room}}
		select {
		case send <- f:
		default:
			log.Printf("connection: send buffer full, room replay dropped: %s", room)
		}
	}
	if len(rooms) > 0 {
		log.Printf("connection: replayed %d room(s)", len(rooms))
	}
}

func (m *Manager) handleDialError(gen int, status int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	attempt := m.attempt
	m.mu.Unlock()

	kind := classifyDialError(status, err)
	log.Printf("connection: connect failed (%s): %v", kind, err)
	m.router.Dispatch(models.ConnectErrorEvent{Kind: kind, Reason: err.Error(), Attempt: attempt})

	if kind == models.ConnectErrAuth {
		// 身份错误是终态：停止重试，等待新的凭证
		m.mu.Lock()
		m.setPhaseLocked(models.PhaseDisconnected)
		m.mu.Unlock()
		m.router.Dispatch(models.DisconnectedEvent{Reason: "authentication rejected"})
		return
	}
	m.scheduleReconnect()
}

// readPump 读取下行帧并同步分发；同一通道的事件处理器之间不会并发执行
func (m *Manager) readPump(gen int, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		var rf rawFrame
		if err := conn.ReadJSON(&rf); err != nil {
			m.handleConnDrop(gen, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(readWait))

		ev, err := events.Decode(rf.Type, rf.Payload)
		if err != nil {
			log.Printf("connection: dropping frame: %v", err)
			continue
		}
		m.router.Dispatch(ev)
	}
}

func (m *Manager) writePump(conn *websocket.Conn, send chan frame, done chan struct{}) {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case f := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(f); err != nil {
				log.Printf("connection: write error: %v", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleConnDrop 处理非主动断开：广播断开事件并进入退避重连。
// 服务端以正常关闭码关闭（明确不再重试）时不触发退避
func (m *Manager) handleConnDrop(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.teardownLocked()
	intentional := websocket.IsCloseError(err, websocket.CloseNormalClosure)
	if intentional {
		m.setPhaseLocked(models.PhaseIdle)
	}
	m.mu.Unlock()

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	log.Printf("connection: channel dropped: %s", reason)
	m.router.Dispatch(models.DisconnectedEvent{Reason: reason, Intentional: intentional})
	if !intentional {
		m.scheduleReconnect()
	}
}

// scheduleReconnect 按指数退避排定下一次重连：
// delay = min(base * 2^(attempt-1), cap)，次数封顶后进入终态 disconnected
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.phase == models.PhaseIdle || m.phase == models.PhaseDisconnected {
		// 主动断开或已终止，不再排定
		m.mu.Unlock()
		return
	}
	if m.token == "" {
		m.setPhaseLocked(models.PhaseIdle)
		m.mu.Unlock()
		return
	}
	if m.attempt >= m.cfg.MaxAttempts {
		m.setPhaseLocked(models.PhaseDisconnected)
		m.mu.Unlock()
		log.Printf("connection: max reconnect attempts (%d) reached, giving up", m.cfg.MaxAttempts)
		m.router.Dispatch(models.DisconnectedEvent{Reason: "max reconnect attempts reached"})
		return
	}
	m.attempt++
	attempt := m.attempt
	token := m.token
	delay := backoffDelay(m.cfg, attempt)
	m.setPhaseLocked(models.PhaseBackoff)
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.phase != models.PhaseBackoff {
			// 期间发生了 Disconnect 或新的 Connect
			return
		}
		m.startAttemptLocked(token)
	})
	m.mu.Unlock()
	log.Printf("connection: reconnect attempt %d scheduled in %s", attempt, delay)
}

// teardownLocked 拆除当前连接（调用方持锁），作废在途协程
func (m *Manager) teardownLocked() {
	m.gen++
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	m.send = nil
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if m.phase == models.PhaseConnected || m.phase == models.PhaseConnecting {
		m.setPhaseLocked(models.PhaseBackoff)
	}
}

// setPhaseLocked 应用状态机迁移，非法迁移记录告警（调用方持锁）
func (m *Manager) setPhaseLocked(next models.Phase) {
	if m.phase == next {
		return
	}
	if !validPhaseTransition(m.phase, next) {
		log.Printf("connection: unexpected phase transition %s -> %s", m.phase, next)
	}
	m.phase = next
}

// validPhaseTransition 列出状态机允许的迁移；
// 特别地 disconnected/idle 到 connected 必须经过 connecting
func validPhaseTransition(from, to models.Phase) bool {
	switch from {
	case models.PhaseIdle:
		return to == models.PhaseConnecting
	case models.PhaseConnecting:
		return to == models.PhaseConnected || to == models.PhaseBackoff ||
			to == models.PhaseDisconnected || to == models.PhaseIdle
	case models.PhaseConnected:
		return to == models.PhaseBackoff || to == models.PhaseIdle ||
			to == models.PhaseConnecting
	case models.PhaseBackoff:
		return to == models.PhaseConnecting || to == models.PhaseIdle ||
			to == models.PhaseDisconnected
	case models.PhaseDisconnected:
		return to == models.PhaseConnecting || to == models.PhaseIdle
	}
	return false
}

// backoffDelay 计算第 attempt 次重连的延迟
func backoffDelay(cfg config.ConnectConfig, attempt int) time.Duration {
	base := time.Duration(cfg.BaseDelay) * time.Second
	max := time.Duration(cfg.MaxDelay) * time.Second
	if attempt < 1 {
		attempt = 1
	}
	d := base << uint(attempt-1)
	if d > max || d <= 0 {
		return max
	}
	return d
}

// classifyDialError 区分传输/超时/认证三类连接失败
func classifyDialError(status int, err error) models.ConnectErrorKind {
	if status == 401 || status == 403 {
		return models.ConnectErrAuth
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return models.ConnectErrTimeout
	}
	return models.ConnectErrTransport
}

// attachToken 把凭证挂到握手 URL 的 token 查询参数上（后端兼容该形式）
func attachToken(socketURL, token string) (string, error) {
	u, err := url.Parse(socketURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
