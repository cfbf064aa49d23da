package api

import (
	"context"
	"log"
	"sync"
	"time"

	"LiteChat/events"
	"LiteChat/models"
	"LiteChat/reconcile"
)

// Poller 周期拉取 REST 快照并灌入协调器，作为推送通道的兜底：
// 断线期间漏掉的广播靠这里补齐。连接恢复时立即补拉一次
type Poller struct {
	client     *Client
	reconciler *reconcile.Reconciler
	interval   time.Duration
	agentMode  func() bool // 客服端才拉等待列表和在线名单

	mu      sync.Mutex
	cancel  context.CancelFunc
	resync  chan struct{}
	connSub events.HandlerID
}

func NewPoller(client *Client, rec *reconcile.Reconciler, interval time.Duration, agentMode func() bool) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if agentMode == nil {
		agentMode = func() bool { return false }
	}
	return &Poller{
		client:     client,
		reconciler: rec,
		interval:   interval,
		agentMode:  agentMode,
		resync:     make(chan struct{}, 1),
	}
}

// Start 启动轮询循环并订阅连接恢复事件。重复调用无效果
func (p *Poller) Start(router *events.Router) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.connSub = router.On(models.EvConnect, func(models.Event) {
		p.Resync()
	})
	go p.loop(ctx)
}

// Stop 停止轮询
func (p *Poller) Stop(router *events.Router) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
	router.Off(models.EvConnect, p.connSub)
}

// Resync 请求立刻补拉一次快照（非阻塞，合并重复请求）
func (p *Poller) Resync() {
	select {
	case p.resync <- struct{}{}:
	default:
	}
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.syncOnce(ctx)
		case <-p.resync:
			p.syncOnce(ctx)
		}
	}
}

func (p *Poller) syncOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	sessions, err := p.client.MySessions(ctx)
	if err != nil {
		log.Printf("poller: fetch sessions failed: %v", err)
	} else {
		p.reconciler.ApplySessionsSnapshot(sessions)
	}

	if !p.agentMode() {
		return
	}
	waiting, err := p.client.WaitingSessions(ctx)
	if err != nil {
		log.Printf("poller: fetch waiting sessions failed: %v", err)
	} else {
		p.reconciler.ApplyWaitingSnapshot(waiting)
	}
	agents, err := p.client.OnlineAgents(ctx)
	if err != nil {
		log.Printf("poller: fetch online agents failed: %v", err)
	} else {
		p.reconciler.ApplyAgentsSnapshot(agents)
	}
}
