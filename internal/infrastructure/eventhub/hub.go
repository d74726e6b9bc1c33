// Package eventhub 提供按任务ID分发事件的内存pub/sub。
//
// 约定:
//   - Publish 不阻塞;订阅方使用带缓冲channel。
//   - 订阅时先收到snapshot帧再收到后续增量,二者在hub锁内衔接,不存在丢帧窗口。
//   - 缓冲溢出的慢订阅者会被关闭而不是静默丢帧,保证已送达序列严格有序且不重复。
//   - 终止事件送达后hub关闭该任务的所有订阅流。
package eventhub

import (
	"sync"
	"sync/atomic"

	"github.com/userfetch/userfetch/internal/domain/entities"
	"github.com/userfetch/userfetch/pkg/logger"
)

// DefaultBuffer 订阅channel默认缓冲,须容纳整个日志环
const DefaultBuffer = entities.MaxTaskLogs + 64

type subscriber struct {
	ch     chan entities.TaskEvent
	closed bool
}

// Hub 任务事件分发器
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[uint64]*subscriber
	seq  atomic.Uint64
}

// New 创建事件分发器
func New() *Hub {
	return &Hub{subs: make(map[string]map[uint64]*subscriber)}
}

// Subscribe 订阅任务事件流。
// snapshot 在hub锁内调用并作为首帧入队,与后续Publish串行,
// 晚加入的订阅者由此重建完整状态而不漏事件。
func (h *Hub) Subscribe(taskID string, snapshot func() (entities.TaskEvent, error)) (<-chan entities.TaskEvent, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	first, err := snapshot()
	if err != nil {
		return nil, nil, err
	}

	sub := &subscriber{ch: make(chan entities.TaskEvent, DefaultBuffer)}
	sub.ch <- first

	id := h.seq.Add(1)
	if h.subs[taskID] == nil {
		h.subs[taskID] = make(map[uint64]*subscriber)
	}
	h.subs[taskID][id] = sub

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.removeLocked(taskID, id)
		})
	}
	return sub.ch, unsubscribe, nil
}

// Publish 向任务的所有订阅者分发事件。
// 无订阅者时为空操作;终止事件送达后关闭该任务的全部订阅流。
func (h *Hub) Publish(event entities.TaskEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[event.TaskID]
	if len(subs) == 0 {
		return
	}

	for id, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			// 缓冲耗尽说明订阅方已停止消费,关闭而不是乱序丢帧
			logger.Warn("dropping lagged subscriber", "task_id", event.TaskID)
			h.removeLocked(event.TaskID, id)
		}
	}

	if event.Terminal() {
		for id := range subs {
			h.removeLocked(event.TaskID, id)
		}
	}
}

// SubscriberCount 返回任务当前订阅数,用于测试与诊断
func (h *Hub) SubscriberCount(taskID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[taskID])
}

// removeLocked 摘除订阅并关闭channel,调用方必须持有锁
func (h *Hub) removeLocked(taskID string, id uint64) {
	subs := h.subs[taskID]
	sub, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.subs, taskID)
	}
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}
