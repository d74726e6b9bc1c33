package entities

import "time"

// Schedule 定时触发器,到期后生成采集任务
type Schedule struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Enabled    bool         `json:"enabled"`
	CronExpr   string       `json:"cron_expr"` // 标准5字段cron表达式
	UserList   []UserTarget `json:"user_list"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	LastRunAt  *time.Time   `json:"last_run_at,omitempty"`
	LastTaskID string       `json:"last_task_id,omitempty"`
	NextRunAt  *time.Time   `json:"next_run_at,omitempty"` // 禁用时为空
}

// Due 判断在now时刻是否到期
func (s *Schedule) Due(now time.Time) bool {
	return s.Enabled && s.NextRunAt != nil && !s.NextRunAt.After(now)
}

// Clone 深拷贝
func (s *Schedule) Clone() *Schedule {
	cp := *s
	cp.UserList = append([]UserTarget(nil), s.UserList...)
	if s.LastRunAt != nil {
		last := *s.LastRunAt
		cp.LastRunAt = &last
	}
	if s.NextRunAt != nil {
		next := *s.NextRunAt
		cp.NextRunAt = &next
	}
	return &cp
}
