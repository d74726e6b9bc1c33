package contracts

import (
	"context"
	"time"

	"github.com/userfetch/userfetch/internal/domain/entities"
)

// TaskCreateRequest 创建任务请求;user_list为空时回落到全局配置
type TaskCreateRequest struct {
	UserList []entities.UserTarget `json:"user_list,omitempty"`
}

// TaskResponse 任务响应统一格式
type TaskResponse struct {
	ID        string                `json:"id"`
	Status    entities.TaskStatus   `json:"status"`
	CreatedAt time.Time             `json:"created_at"`
	StartedAt *time.Time            `json:"started_at,omitempty"`
	EndedAt   *time.Time            `json:"ended_at,omitempty"`
	Error     string                `json:"error,omitempty"`
	UserList  []entities.UserTarget `json:"user_list"`
	Result    *entities.TaskResult  `json:"result,omitempty"`
	LogCount  int                   `json:"log_count"`
}

// TaskListRequest 任务列表查询参数
type TaskListRequest struct {
	Offset int `form:"offset" json:"offset,omitempty"`
	Limit  int `form:"limit" json:"limit,omitempty"`
}

// TaskListResponse 任务列表响应
type TaskListResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Total  int            `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

// TaskLogsResponse 任务日志响应
type TaskLogsResponse struct {
	TaskID string              `json:"task_id"`
	Logs   []entities.LogEntry `json:"logs"`
}

// TaskService 任务生命周期管理
type TaskService interface {
	CreateTask(ctx context.Context, req TaskCreateRequest) (*TaskResponse, error)
	GetTask(ctx context.Context, id string) (*TaskResponse, error)
	GetTaskLogs(ctx context.Context, id string) (*TaskLogsResponse, error)
	ListTasks(ctx context.Context, req TaskListRequest) (*TaskListResponse, error)
	CancelTask(ctx context.Context, id string) (*TaskResponse, error)

	// Subscribe 订阅任务事件流,首帧为当前状态快照
	Subscribe(taskID string) (<-chan entities.TaskEvent, func(), error)
}

// ToTaskResponse 转换领域实体为响应DTO
func ToTaskResponse(task *entities.Task) TaskResponse {
	return TaskResponse{
		ID:        task.ID,
		Status:    task.Status,
		CreatedAt: task.CreatedAt,
		StartedAt: task.StartedAt,
		EndedAt:   task.EndedAt,
		Error:     task.Error,
		UserList:  task.UserList,
		Result:    task.Result,
		LogCount:  len(task.Logs),
	}
}
