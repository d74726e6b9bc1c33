package entities

import "time"

// EventType 任务事件类型
type EventType string

const (
	EventSnapshot            EventType = "snapshot"              // 订阅时的全量状态
	EventLog                 EventType = "log"                   // 日志增量
	EventTaskStarted         EventType = "task_started"          // pending → running
	EventTaskCompleted       EventType = "task_completed"        // → success
	EventTaskFailed          EventType = "task_failed"           // → failed
	EventTaskCancelled       EventType = "task_cancelled"        // → cancelled
	EventTaskCancelRequested EventType = "task_cancel_requested" // 取消标记已设置
	EventError               EventType = "error"                 // 连接级错误
)

// TaskEvent 任务事件,按类型只携带对应载荷字段
type TaskEvent struct {
	TaskID    string    `json:"task_id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`

	Task   *Task       `json:"task,omitempty"`   // 仅 snapshot
	Log    *LogEntry   `json:"log,omitempty"`    // 仅 log
	Status TaskStatus  `json:"status,omitempty"` // 状态变更事件
	Result *TaskResult `json:"result,omitempty"` // 仅终止事件
}

// Terminal 是否为终止事件(发出后可关闭订阅流)
func (e TaskEvent) Terminal() bool {
	switch e.Type {
	case EventTaskCompleted, EventTaskFailed, EventTaskCancelled:
		return true
	}
	return false
}

// NewSnapshotEvent 构造快照事件
func NewSnapshotEvent(task *Task) TaskEvent {
	return TaskEvent{
		TaskID:    task.ID,
		Type:      EventSnapshot,
		Timestamp: time.Now().UTC(),
		Status:    task.Status,
		Task:      task,
	}
}

// NewLogEvent 构造日志事件
func NewLogEvent(taskID string, entry LogEntry) TaskEvent {
	return TaskEvent{
		TaskID:    taskID,
		Type:      EventLog,
		Timestamp: entry.Timestamp,
		Message:   entry.Message,
		Log:       &entry,
	}
}

// NewStatusEvent 构造状态变更事件
func NewStatusEvent(task *Task, eventType EventType, message string) TaskEvent {
	event := TaskEvent{
		TaskID:    task.ID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Message:   message,
		Status:    task.Status,
	}
	if event.Terminal() {
		event.Result = task.Result
	}
	return event
}

// NewErrorEvent 构造连接级错误事件
func NewErrorEvent(taskID, message string) TaskEvent {
	return TaskEvent{
		TaskID:    taskID,
		Type:      EventError,
		Timestamp: time.Now().UTC(),
		Message:   message,
	}
}
