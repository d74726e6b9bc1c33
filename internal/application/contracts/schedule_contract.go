package contracts

import (
	"context"
	"time"

	"github.com/userfetch/userfetch/internal/domain/entities"
)

// ScheduleCreateRequest 创建定时计划请求
type ScheduleCreateRequest struct {
	Name     string                `json:"name" binding:"required"`
	CronExpr string                `json:"cron_expr" binding:"required"`
	Enabled  bool                  `json:"enabled"`
	UserList []entities.UserTarget `json:"user_list,omitempty"`
}

// ScheduleUpdateRequest 更新定时计划请求,nil字段不变更
type ScheduleUpdateRequest struct {
	Name     *string                `json:"name,omitempty"`
	CronExpr *string                `json:"cron_expr,omitempty"`
	Enabled  *bool                  `json:"enabled,omitempty"`
	UserList *[]entities.UserTarget `json:"user_list,omitempty"`
}

// ScheduleResponse 定时计划响应
type ScheduleResponse struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	CronExpr   string                `json:"cron_expr"`
	Enabled    bool                  `json:"enabled"`
	UserList   []entities.UserTarget `json:"user_list"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
	LastRunAt  *time.Time            `json:"last_run_at,omitempty"`
	LastTaskID string                `json:"last_task_id,omitempty"`
	NextRunAt  *time.Time            `json:"next_run_at,omitempty"`
}

// ScheduleRunResponse 立即执行响应
type ScheduleRunResponse struct {
	ScheduleID string `json:"schedule_id"`
	TaskID     string `json:"task_id"`
}

// ScheduleService 定时计划管理
type ScheduleService interface {
	CreateSchedule(ctx context.Context, req ScheduleCreateRequest) (*ScheduleResponse, error)
	GetSchedule(ctx context.Context, id string) (*ScheduleResponse, error)
	ListSchedules(ctx context.Context) ([]ScheduleResponse, error)
	UpdateSchedule(ctx context.Context, id string, req ScheduleUpdateRequest) (*ScheduleResponse, error)
	DeleteSchedule(ctx context.Context, id string) error
	ToggleSchedule(ctx context.Context, id string) (*ScheduleResponse, error)
	RunNow(ctx context.Context, id string) (*ScheduleRunResponse, error)
}

// ToScheduleResponse 转换领域实体为响应DTO
func ToScheduleResponse(s *entities.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:         s.ID,
		Name:       s.Name,
		CronExpr:   s.CronExpr,
		Enabled:    s.Enabled,
		UserList:   s.UserList,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
		LastRunAt:  s.LastRunAt,
		LastTaskID: s.LastTaskID,
		NextRunAt:  s.NextRunAt,
	}
}
