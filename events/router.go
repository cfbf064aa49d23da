package events

import (
	"log"
	"sync"

	"LiteChat/models"
)

// Handler 处理一个已解码的下行事件
type Handler func(e models.Event)

// HandlerID 标识一次注册，供精确注销
type HandlerID uint64

type entry struct {
	id HandlerID
	fn Handler
}

// Router 是原始通道事件之上的类型化发布/订阅门面。
// 多个独立消费方可以对同一事件名各自注册/注销，互不影响；
// 分发在通道读协程上同步执行，按注册顺序调用
type Router struct {
	mu       sync.Mutex
	nextID   HandlerID
	handlers map[string][]entry
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[string][]entry),
	}
}

// On 注册事件处理器，返回用于 Off 的句柄
func (r *Router) On(event string, fn Handler) HandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.handlers[event] = append(r.handlers[event], entry{id: id, fn: fn})
	return id
}

// Off 注销指定处理器；不传 id 时移除该事件名下的全部处理器。
// 移除某个消费方的处理器绝不影响其他消费方的注册
func (r *Router) Off(event string, ids ...HandlerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(ids) == 0 {
		delete(r.handlers, event)
		return
	}
	remove := make(map[HandlerID]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	kept := r.handlers[event][:0]
	for _, en := range r.handlers[event] {
		if !remove[en.id] {
			kept = append(kept, en)
		}
	}
	if len(kept) == 0 {
		delete(r.handlers, event)
	} else {
		r.handlers[event] = kept
	}
}

// Once 注册一次性处理器，首次触发后自动注销
func (r *Router) Once(event string, fn Handler) HandlerID {
	var id HandlerID
	var once sync.Once
	id = r.On(event, func(e models.Event) {
		once.Do(func() {
			r.Off(event, id)
			fn(e)
		})
	})
	return id
}

// Dispatch 按注册顺序同步调用处理器。
// 单个处理器 panic 不拖垮整个分发循环
func (r *Router) Dispatch(e models.Event) {
	r.mu.Lock()
	list := make([]entry, len(r.handlers[e.EventName()]))
	copy(list, r.handlers[e.EventName()])
	r.mu.Unlock()

	for _, en := range list {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("event handler panic on %q: %v", e.EventName(), rec)
				}
			}()
			en.fn(e)
		}()
	}
}

// HandlerCount 返回某事件名下的处理器数量（测试与调试用）
func (r *Router) HandlerCount(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[event])
}
