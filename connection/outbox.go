package connection

import (
	"log"
	"sync"

	"LiteChat/events"
	"LiteChat/models"
)

// Outbox 在通道短暂断开时暂存上行操作，待下次连接成功后按 FIFO 顺序
// 一次性全部投递。投递前先清空队列，容忍处理过程中继续入队的操作。
// 被后续状态变化淘汰的排队操作仍照常投递（协议不做投机取消）
type Outbox struct {
	router *events.Router
	send   func(frame) bool // 已连接时直接投递，失败返回 false

	mu    sync.Mutex
	queue []frame
	armed bool
}

func newOutbox(router *events.Router, send func(frame) bool) *Outbox {
	return &Outbox{
		router: router,
		send:   send,
	}
}

// Add 入队一帧，并在首次入队时挂一个一次性的连接成功监听。
// Once 保证每次连接至多触发一次冲刷
func (o *Outbox) Add(f frame) {
	o.mu.Lock()
	o.queue = append(o.queue, f)
	arm := !o.armed
	if arm {
		o.armed = true
	}
	n := len(o.queue)
	o.mu.Unlock()

	if arm {
		o.router.Once(models.EvConnect, func(models.Event) {
			o.flush()
		})
	}
	log.Printf("outbox: queued %s (%d pending)", f.Type, n)
}

func (o *Outbox) flush() {
	o.mu.Lock()
	q := o.queue
	o.queue = nil // 先清空再投递
	o.armed = false
	o.mu.Unlock()

	if len(q) == 0 {
		return
	}
	log.Printf("outbox: flushing %d queued operations", len(q))
	for _, f := range q {
		if !o.send(f) {
			// 冲刷途中又断开，重新排队等下一次连接
			o.Add(f)
		}
	}
}

// Len 当前排队的操作数
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}
