package entities

import "time"

// TaskStatus 采集任务状态枚举
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // 等待执行槽位
	TaskStatusRunning   TaskStatus = "running"   // 执行中
	TaskStatusSuccess   TaskStatus = "success"   // 执行成功
	TaskStatusFailed    TaskStatus = "failed"    // 执行失败
	TaskStatusCancelled TaskStatus = "cancelled" // 已取消
)

// IsTerminal 是否为终止状态
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSuccess, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo 校验状态机边是否合法
// pending → running | cancelled
// running → success | failed | cancelled
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusRunning || next == TaskStatusCancelled
	case TaskStatusRunning:
		return next == TaskStatusSuccess || next == TaskStatusFailed || next == TaskStatusCancelled
	}
	return false
}

// MaxTaskLogs 单任务日志环形缓冲上限,超出时淘汰最旧条目
const MaxTaskLogs = 1000

// LogEntry 任务日志条目
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// UserStat 单用户采集统计
type UserStat struct {
	Nickname string `json:"nickname"`
	Success  bool   `json:"success"`
	New      int    `json:"new"`
	Skipped  int    `json:"skipped"`
	Status   string `json:"status"`
}

// TaskResult 任务聚合结果,仅终止状态下填充
type TaskResult struct {
	Total        int        `json:"total"`
	Success      int        `json:"success"`
	Failed       int        `json:"failed"`
	TotalNew     int        `json:"total_new"`
	TotalSkipped int        `json:"total_skipped"`
	Users        []UserStat `json:"users"`
}

// Task 一次采集任务
type Task struct {
	ID              string             `json:"id"`
	Status          TaskStatus         `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	EndedAt         *time.Time         `json:"ended_at,omitempty"`
	Error           string             `json:"error,omitempty"`
	Settings        DownloaderSettings `json:"settings"` // 提交时的配置快照
	UserList        []UserTarget       `json:"user_list"`
	Result          *TaskResult        `json:"result,omitempty"`
	Logs            []LogEntry         `json:"logs"`
	CancelRequested bool               `json:"cancel_requested"`
}

// AppendLog 追加日志并维持环形上限(FIFO淘汰)
func (t *Task) AppendLog(entry LogEntry) {
	t.Logs = append(t.Logs, entry)
	if len(t.Logs) > MaxTaskLogs {
		t.Logs = t.Logs[len(t.Logs)-MaxTaskLogs:]
	}
}

// Clone 深拷贝任务,用于快照读
func (t *Task) Clone() *Task {
	cp := *t
	if t.StartedAt != nil {
		started := *t.StartedAt
		cp.StartedAt = &started
	}
	if t.EndedAt != nil {
		ended := *t.EndedAt
		cp.EndedAt = &ended
	}
	cp.UserList = append([]UserTarget(nil), t.UserList...)
	cp.Logs = append([]LogEntry(nil), t.Logs...)
	cp.Settings.UserList = append([]UserTarget(nil), t.Settings.UserList...)
	if t.Result != nil {
		result := *t.Result
		result.Users = append([]UserStat(nil), t.Result.Users...)
		cp.Result = &result
	}
	return &cp
}
