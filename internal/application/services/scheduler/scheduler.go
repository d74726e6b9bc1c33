// Package scheduler 按cron表达式定时触发采集任务。
// 到期判定基于持久化的next_run_at,触发采用先推进后执行的顺序:
// 新的next_run_at先落库,再提交任务,进程中途崩溃也不会重复触发。
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/userfetch/userfetch/internal/application/contracts"
	"github.com/userfetch/userfetch/internal/domain/entities"
	"github.com/userfetch/userfetch/internal/infrastructure/repository"
	"github.com/userfetch/userfetch/internal/shared/errors"
	"github.com/userfetch/userfetch/pkg/cronx"
	"github.com/userfetch/userfetch/pkg/logger"
)

// DefaultTickInterval 到期扫描周期
const DefaultTickInterval = 30 * time.Second

// Scheduler 定时计划服务
type Scheduler struct {
	repo  *repository.ScheduleRepository
	tasks contracts.TaskService
	tick  time.Duration

	mu        sync.Mutex
	schedules map[string]*entities.Schedule

	stop chan struct{}
	done chan struct{}
	now  func() time.Time
}

var _ contracts.ScheduleService = (*Scheduler)(nil)

// New 创建调度器并加载全部计划。
// 启用中的计划在启动时重算next_run_at,停机期间积压的触发不补跑。
func New(repo *repository.ScheduleRepository, tasks contracts.TaskService, tick time.Duration) (*Scheduler, error) {
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	s := &Scheduler{
		repo:      repo,
		tasks:     tasks,
		tick:      tick,
		schedules: make(map[string]*entities.Schedule),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		now:       time.Now,
	}

	records, err := repo.LoadAll(context.Background())
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.Enabled {
			next, err := cronx.Next(record.CronExpr, s.now().UTC())
			if err != nil {
				logger.Warn("schedule has invalid cron expression, disabling",
					"schedule_id", record.ID, "cron", record.CronExpr)
				record.Enabled = false
				record.NextRunAt = nil
			} else {
				record.NextRunAt = &next
			}
			if err := repo.Upsert(context.Background(), record); err != nil {
				return nil, err
			}
		}
		s.schedules[record.ID] = record
	}

	return s, nil
}

// Start 启动到期扫描循环
func (s *Scheduler) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.checkDue()
			}
		}
	}()
}

// Stop 停止扫描循环并等待退出
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// checkDue 扫描到期计划并逐个触发,单个计划出错不影响其余
func (s *Scheduler) checkDue() {
	now := s.now().UTC()

	s.mu.Lock()
	due := make([]*entities.Schedule, 0)
	for _, record := range s.schedules {
		if record.Due(now) {
			due = append(due, record)
		}
	}
	s.mu.Unlock()

	for _, record := range due {
		if err := s.fire(record); err != nil {
			logger.Error("schedule trigger failed",
				"schedule_id", record.ID, "name", record.Name, "error", err)
		}
	}
}

// fire 触发单个计划: 先推进并持久化next_run_at,再提交任务
func (s *Scheduler) fire(record *entities.Schedule) error {
	ctx := context.Background()

	s.mu.Lock()
	next, err := cronx.Next(record.CronExpr, s.now().UTC())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	record.NextRunAt = &next
	record.UpdatedAt = s.now().UTC()
	if err := s.repo.Upsert(ctx, record); err != nil {
		s.mu.Unlock()
		return err
	}
	userList := append([]entities.UserTarget(nil), record.UserList...)
	s.mu.Unlock()

	task, err := s.tasks.CreateTask(ctx, contracts.TaskCreateRequest{UserList: userList})
	if err != nil {
		return err
	}

	s.mu.Lock()
	now := s.now().UTC()
	record.LastRunAt = &now
	record.LastTaskID = task.ID
	record.UpdatedAt = now
	err = s.repo.Upsert(ctx, record)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	logger.Info("schedule triggered task",
		"schedule_id", record.ID, "name", record.Name, "task_id", task.ID)
	return nil
}

// CreateSchedule 实现 contracts.ScheduleService
func (s *Scheduler) CreateSchedule(ctx context.Context, req contracts.ScheduleCreateRequest) (*contracts.ScheduleResponse, error) {
	if req.Name == "" {
		return nil, errors.New(errors.ErrorCodeInvalidRequest, "计划名称不能为空")
	}
	if err := cronx.Validate(req.CronExpr); err != nil {
		return nil, errors.New(errors.ErrorCodeInvalidRequest,
			fmt.Sprintf("无效的 Cron 表达式: %s", req.CronExpr))
	}

	now := s.now().UTC()
	record := &entities.Schedule{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Enabled:   req.Enabled,
		CronExpr:  req.CronExpr,
		UserList:  entities.NormalizeUserList(req.UserList),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if record.Enabled {
		next, err := cronx.Next(record.CronExpr, now)
		if err != nil {
			return nil, errors.Wrap(errors.ErrorCodeInvalidRequest, "无法计算下次执行时间", err)
		}
		record.NextRunAt = &next
	}

	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, errors.Wrap(errors.ErrorCodeInternalError, "计划持久化失败", err)
	}

	s.mu.Lock()
	s.schedules[record.ID] = record
	resp := contracts.ToScheduleResponse(record.Clone())
	s.mu.Unlock()

	logger.Info("schedule created", "schedule_id", record.ID, "name", record.Name, "cron", record.CronExpr)
	return &resp, nil
}

// GetSchedule 实现 contracts.ScheduleService
func (s *Scheduler) GetSchedule(ctx context.Context, id string) (*contracts.ScheduleResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.schedules[id]
	if !ok {
		return nil, errors.New(errors.ErrorCodeNotFound, "计划不存在")
	}
	resp := contracts.ToScheduleResponse(record.Clone())
	return &resp, nil
}

// ListSchedules 实现 contracts.ScheduleService,按创建时间倒序
func (s *Scheduler) ListSchedules(ctx context.Context) ([]contracts.ScheduleResponse, error) {
	s.mu.Lock()
	records := make([]*entities.Schedule, 0, len(s.schedules))
	for _, record := range s.schedules {
		records = append(records, record.Clone())
	}
	s.mu.Unlock()

	sortByCreatedDesc(records)

	out := make([]contracts.ScheduleResponse, 0, len(records))
	for _, record := range records {
		out = append(out, contracts.ToScheduleResponse(record))
	}
	return out, nil
}

// UpdateSchedule 实现 contracts.ScheduleService。
// 任何变更后启用中的计划都会重算next_run_at。
func (s *Scheduler) UpdateSchedule(ctx context.Context, id string, req contracts.ScheduleUpdateRequest) (*contracts.ScheduleResponse, error) {
	if req.CronExpr != nil {
		if err := cronx.Validate(*req.CronExpr); err != nil {
			return nil, errors.New(errors.ErrorCodeInvalidRequest,
				fmt.Sprintf("无效的 Cron 表达式: %s", *req.CronExpr))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.schedules[id]
	if !ok {
		return nil, errors.New(errors.ErrorCodeNotFound, "计划不存在")
	}

	if req.Name != nil {
		record.Name = *req.Name
	}
	if req.CronExpr != nil {
		record.CronExpr = *req.CronExpr
	}
	if req.UserList != nil {
		record.UserList = entities.NormalizeUserList(*req.UserList)
	}
	if req.Enabled != nil {
		record.Enabled = *req.Enabled
	}

	if err := s.recomputeLocked(record); err != nil {
		return nil, err
	}
	record.UpdatedAt = s.now().UTC()

	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, errors.Wrap(errors.ErrorCodeInternalError, "计划持久化失败", err)
	}
	resp := contracts.ToScheduleResponse(record.Clone())
	return &resp, nil
}

// DeleteSchedule 实现 contracts.ScheduleService
func (s *Scheduler) DeleteSchedule(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.schedules[id]
	if ok {
		delete(s.schedules, id)
	}
	s.mu.Unlock()

	if !ok {
		return errors.New(errors.ErrorCodeNotFound, "计划不存在")
	}
	if err := s.repo.Delete(ctx, id); err != nil && err != repository.ErrNotFound {
		return errors.Wrap(errors.ErrorCodeInternalError, "计划删除失败", err)
	}
	return nil
}

// ToggleSchedule 实现 contracts.ScheduleService
func (s *Scheduler) ToggleSchedule(ctx context.Context, id string) (*contracts.ScheduleResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.schedules[id]
	if !ok {
		return nil, errors.New(errors.ErrorCodeNotFound, "计划不存在")
	}

	record.Enabled = !record.Enabled
	if err := s.recomputeLocked(record); err != nil {
		return nil, err
	}
	record.UpdatedAt = s.now().UTC()

	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, errors.Wrap(errors.ErrorCodeInternalError, "计划持久化失败", err)
	}
	resp := contracts.ToScheduleResponse(record.Clone())
	return &resp, nil
}

// RunNow 实现 contracts.ScheduleService。
// 仅记录触发结果,不改动next_run_at,既有节奏保持不变。
func (s *Scheduler) RunNow(ctx context.Context, id string) (*contracts.ScheduleRunResponse, error) {
	s.mu.Lock()
	record, ok := s.schedules[id]
	var userList []entities.UserTarget
	if ok {
		userList = append([]entities.UserTarget(nil), record.UserList...)
	}
	s.mu.Unlock()

	if !ok {
		return nil, errors.New(errors.ErrorCodeNotFound, "计划不存在")
	}

	task, err := s.tasks.CreateTask(ctx, contracts.TaskCreateRequest{UserList: userList})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	now := s.now().UTC()
	record.LastRunAt = &now
	record.LastTaskID = task.ID
	record.UpdatedAt = now
	upsertErr := s.repo.Upsert(ctx, record)
	s.mu.Unlock()
	if upsertErr != nil {
		return nil, errors.Wrap(errors.ErrorCodeInternalError, "计划持久化失败", upsertErr)
	}

	return &contracts.ScheduleRunResponse{ScheduleID: id, TaskID: task.ID}, nil
}

// recomputeLocked 启用时重算next_run_at,禁用时清空
func (s *Scheduler) recomputeLocked(record *entities.Schedule) error {
	if !record.Enabled {
		record.NextRunAt = nil
		return nil
	}
	next, err := cronx.Next(record.CronExpr, s.now().UTC())
	if err != nil {
		return errors.Wrap(errors.ErrorCodeInvalidRequest, "无法计算下次执行时间", err)
	}
	record.NextRunAt = &next
	return nil
}

func sortByCreatedDesc(records []*entities.Schedule) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
