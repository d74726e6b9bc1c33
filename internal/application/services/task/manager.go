// Package task 实现采集任务的生命周期管理与执行。
// Manager负责准入与状态流转,runner负责逐用户抓取。
// 任务的每次变更都遵循同一提交路径: 改内存 → 写库 → 发事件,
// 全程持有该任务的写锁,保证事件顺序与注册表可见性一致。
package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/userfetch/userfetch/internal/application/contracts"
	"github.com/userfetch/userfetch/internal/domain/entities"
	"github.com/userfetch/userfetch/internal/infrastructure/eventhub"
	"github.com/userfetch/userfetch/internal/infrastructure/fetcher"
	"github.com/userfetch/userfetch/internal/infrastructure/repository"
	"github.com/userfetch/userfetch/internal/shared/errors"
	"github.com/userfetch/userfetch/pkg/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// taskState 活跃任务的内存态
type taskState struct {
	mu         sync.Mutex
	task       *entities.Task
	cancel     chan struct{}
	cancelOnce sync.Once
}

func (s *taskState) requestCancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

// Manager 任务管理器
type Manager struct {
	repo     *repository.TaskRepository
	hub      *eventhub.Hub
	settings contracts.SettingsService
	fetch    fetcher.Fetcher

	mu      sync.Mutex
	states  map[string]*taskState // 仅保存未终止任务
	pending []string              // FIFO准入队列
	running int

	wg sync.WaitGroup
}

var _ contracts.TaskService = (*Manager)(nil)

// NewManager 创建任务管理器并执行崩溃恢复:
// 上次进程退出时仍处于pending/running的任务标记为failed。
func NewManager(repo *repository.TaskRepository, hub *eventhub.Hub, settings contracts.SettingsService, fetch fetcher.Fetcher) (*Manager, error) {
	m := &Manager{
		repo:     repo,
		hub:      hub,
		settings: settings,
		fetch:    fetch,
		states:   make(map[string]*taskState),
	}

	stale, err := repo.LoadAll(context.Background())
	if err != nil {
		return nil, err
	}
	for _, t := range stale {
		if t.Status.IsTerminal() {
			continue
		}
		now := time.Now().UTC()
		t.Status = entities.TaskStatusFailed
		t.Error = "任务因服务重启而中断"
		t.EndedAt = &now
		t.AppendLog(entities.LogEntry{Timestamp: now, Level: "error", Message: t.Error})
		if err := repo.Upsert(context.Background(), t); err != nil {
			return nil, err
		}
		logger.Warn("stale task marked failed on startup", "task_id", t.ID)
	}

	return m, nil
}

// CreateTask 实现 contracts.TaskService。
// 请求未带用户列表时回落到全局配置的用户列表。
func (m *Manager) CreateTask(ctx context.Context, req contracts.TaskCreateRequest) (*contracts.TaskResponse, error) {
	settings, err := m.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	userList := entities.NormalizeUserList(req.UserList)
	if len(userList) == 0 {
		userList = settings.UserList
	}
	if len(userList) == 0 {
		return nil, errors.New(errors.ErrorCodeInvalidRequest, "用户列表为空，请先在设置中配置采集用户")
	}

	now := time.Now().UTC()
	t := &entities.Task{
		ID:        uuid.NewString(),
		Status:    entities.TaskStatusPending,
		CreatedAt: now,
		Settings:  settings,
		UserList:  userList,
		Logs:      []entities.LogEntry{},
	}
	t.AppendLog(entities.LogEntry{Timestamp: now, Level: "info", Message: "任务已创建，等待执行"})

	// 先登记内存态再落库: 注册表里只有终止任务可能缺少内存态
	state := &taskState{task: t, cancel: make(chan struct{})}
	m.mu.Lock()
	m.states[t.ID] = state
	m.mu.Unlock()

	if err := m.repo.Upsert(ctx, t); err != nil {
		m.mu.Lock()
		delete(m.states, t.ID)
		m.mu.Unlock()
		return nil, errors.Wrap(errors.ErrorCodeInternalError, "任务持久化失败", err)
	}

	m.mu.Lock()
	m.pending = append(m.pending, t.ID)
	m.mu.Unlock()

	logger.Info("task created", "task_id", t.ID, "users", len(userList))
	m.dispatch()

	resp := contracts.ToTaskResponse(t)
	return &resp, nil
}

// dispatch 按FIFO顺序准入等待任务。
// 并发上限在每次准入前重读配置,调大后立即生效。
func (m *Manager) dispatch() {
	for {
		settings, err := m.settings.Current(context.Background())
		if err != nil {
			logger.Error("failed to read settings during dispatch", "error", err)
			return
		}
		maxTasks := settings.MaxTasks
		if maxTasks < 1 {
			maxTasks = 1
		}

		m.mu.Lock()
		if m.running >= maxTasks || len(m.pending) == 0 {
			m.mu.Unlock()
			return
		}
		id := m.pending[0]
		m.pending = m.pending[1:]
		state := m.states[id]
		if state == nil {
			// 排队期间被取消
			m.mu.Unlock()
			continue
		}
		m.running++
		m.mu.Unlock()

		m.wg.Add(1)
		go func(state *taskState) {
			defer m.wg.Done()
			m.run(state)
			m.finish(state.task.ID)
		}(state)
	}
}

// finish 释放执行槽位并移出活跃表,随后尝试准入下一个任务
func (m *Manager) finish(taskID string) {
	m.mu.Lock()
	m.running--
	delete(m.states, taskID)
	m.mu.Unlock()
	m.dispatch()
}

// GetTask 实现 contracts.TaskService
func (m *Manager) GetTask(ctx context.Context, id string) (*contracts.TaskResponse, error) {
	t, err := m.snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := contracts.ToTaskResponse(t)
	return &resp, nil
}

// GetTaskLogs 实现 contracts.TaskService
func (m *Manager) GetTaskLogs(ctx context.Context, id string) (*contracts.TaskLogsResponse, error) {
	t, err := m.snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return &contracts.TaskLogsResponse{TaskID: t.ID, Logs: t.Logs}, nil
}

// ListTasks 实现 contracts.TaskService,按创建时间倒序分页
func (m *Manager) ListTasks(ctx context.Context, req contracts.TaskListRequest) (*contracts.TaskListResponse, error) {
	offset := req.Offset
	limit := req.Limit
	if offset < 0 {
		return nil, errors.New(errors.ErrorCodeInvalidRequest, "offset 不能为负数")
	}
	if limit == 0 {
		limit = defaultListLimit
	}
	if limit < 1 || limit > maxListLimit {
		return nil, errors.New(errors.ErrorCodeInvalidRequest,
			fmt.Sprintf("limit 必须在 1 到 %d 之间", maxListLimit))
	}

	tasks, total, err := m.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorCodeInternalError, "任务列表查询失败", err)
	}

	items := make([]contracts.TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, contracts.ToTaskResponse(t))
	}
	return &contracts.TaskListResponse{Tasks: items, Total: total, Offset: offset, Limit: limit}, nil
}

// CancelTask 实现 contracts.TaskService。
// pending任务直接终止;running任务置取消标记,由执行器在用户边界停止;
// 已终止任务返回CONFLICT。
func (m *Manager) CancelTask(ctx context.Context, id string) (*contracts.TaskResponse, error) {
	m.mu.Lock()
	state := m.states[id]
	m.mu.Unlock()

	if state == nil {
		t, err := m.loadStored(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, errors.WithDetails(errors.ErrorCodeAlreadyTerminal,
			"任务已结束，无法取消",
			map[string]interface{}{"status": string(t.Status)})
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	t := state.task
	switch {
	case t.Status.IsTerminal():
		return nil, errors.WithDetails(errors.ErrorCodeAlreadyTerminal,
			"任务已结束，无法取消",
			map[string]interface{}{"status": string(t.Status)})

	case t.Status == entities.TaskStatusPending:
		now := time.Now().UTC()
		t.Status = entities.TaskStatusCancelled
		t.EndedAt = &now
		t.CancelRequested = true
		state.requestCancel()
		logEvent := m.appendLogLocked(t, "info", "任务已取消")
		m.commitLocked(ctx, t, logEvent,
			entities.NewStatusEvent(t, entities.EventTaskCancelled, "任务已取消"))

		m.mu.Lock()
		delete(m.states, id)
		m.mu.Unlock()

	case !t.CancelRequested:
		t.CancelRequested = true
		state.requestCancel()
		logEvent := m.appendLogLocked(t, "info", "收到取消请求，等待当前用户处理完成")
		m.commitLocked(ctx, t, logEvent,
			entities.NewStatusEvent(t, entities.EventTaskCancelRequested, "收到取消请求"))
	}

	resp := contracts.ToTaskResponse(t.Clone())
	return &resp, nil
}

// Subscribe 实现 contracts.TaskService。
// 快照在持有任务写锁期间注册进事件总线,订阅后不会漏掉任何增量。
func (m *Manager) Subscribe(taskID string) (<-chan entities.TaskEvent, func(), error) {
	m.mu.Lock()
	state := m.states[taskID]
	m.mu.Unlock()

	if state == nil {
		t, err := m.loadStored(context.Background(), taskID)
		if err != nil {
			return nil, nil, err
		}
		return terminalStream(t), func() {}, nil
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.task.Status.IsTerminal() {
		return terminalStream(state.task.Clone()), func() {}, nil
	}

	snapshot := state.task.Clone()
	return m.hub.Subscribe(taskID, func() (entities.TaskEvent, error) {
		return entities.NewSnapshotEvent(snapshot), nil
	})
}

// terminalStream 已终止任务的订阅流: 仅快照一帧,随即关闭
func terminalStream(t *entities.Task) <-chan entities.TaskEvent {
	ch := make(chan entities.TaskEvent, 1)
	ch <- entities.NewSnapshotEvent(t)
	close(ch)
	return ch
}

// snapshot 读取任务当前状态: 活跃任务读内存,其余读注册表
func (m *Manager) snapshot(ctx context.Context, id string) (*entities.Task, error) {
	m.mu.Lock()
	state := m.states[id]
	m.mu.Unlock()

	if state != nil {
		state.mu.Lock()
		defer state.mu.Unlock()
		return state.task.Clone(), nil
	}
	return m.loadStored(ctx, id)
}

func (m *Manager) loadStored(ctx context.Context, id string) (*entities.Task, error) {
	t, err := m.repo.GetByID(ctx, id)
	if err == repository.ErrNotFound {
		return nil, errors.New(errors.ErrorCodeNotFound, "任务不存在")
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrorCodeInternalError, "任务查询失败", err)
	}
	return t, nil
}

// appendLogLocked 追加任务日志并返回对应事件,调用方须持有任务锁
func (m *Manager) appendLogLocked(t *entities.Task, level, message string) entities.TaskEvent {
	entry := entities.LogEntry{Timestamp: time.Now().UTC(), Level: level, Message: message}
	t.AppendLog(entry)
	return entities.NewLogEvent(t.ID, entry)
}

// commitLocked 统一提交路径: 先持久化再发事件,调用方须持有任务锁
func (m *Manager) commitLocked(ctx context.Context, t *entities.Task, events ...entities.TaskEvent) {
	if err := m.repo.Upsert(ctx, t); err != nil {
		logger.Error("task persist failed", "task_id", t.ID, "error", err)
	}
	for _, event := range events {
		m.hub.Publish(event)
	}
}

// Shutdown 等待全部执行中的任务退出
func (m *Manager) Shutdown() {
	m.wg.Wait()
}
