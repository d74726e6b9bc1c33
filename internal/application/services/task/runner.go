package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/userfetch/userfetch/internal/domain/entities"
	"github.com/userfetch/userfetch/internal/infrastructure/fetcher"
	"github.com/userfetch/userfetch/pkg/logger"
)

// run 执行单个任务: 逐用户采集,失败按配置重试,
// 用户之间与重试之间响应取消。只在致命错误时以failed收尾,
// 个别用户失败仅记入统计。
func (m *Manager) run(state *taskState) {
	state.mu.Lock()
	t := state.task
	if !t.Status.CanTransitionTo(entities.TaskStatusRunning) {
		state.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	t.Status = entities.TaskStatusRunning
	t.StartedAt = &now
	logEvent := m.appendLogLocked(t, "info",
		fmt.Sprintf("任务开始执行，共 %d 个用户", len(t.UserList)))
	m.commitLocked(context.Background(), t, logEvent,
		entities.NewStatusEvent(t, entities.EventTaskStarted, "任务开始执行"))

	settings := t.Settings
	users := append([]entities.UserTarget(nil), t.UserList...)
	state.mu.Unlock()

	logger.Info("task started", "task_id", t.ID, "users", len(users))

	if err := ensureWritableDir(settings.DownloadPath); err != nil {
		m.finalize(state, entities.TaskStatusFailed,
			fmt.Sprintf("下载目录不可写: %v", err), nil)
		return
	}

	result := &entities.TaskResult{
		Total: len(users),
		Users: make([]entities.UserStat, 0, len(users)),
	}

	timeout := time.Duration(settings.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxAttempts := settings.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for _, user := range users {
		if cancelled(state.cancel) {
			m.finalize(state, entities.TaskStatusCancelled, "", result)
			return
		}

		display := user.Name
		if display == "" {
			display = user.URL
		}
		m.emitLog(state, "info", fmt.Sprintf("开始采集用户 %s", display))

		fetched, err := m.fetchWithRetry(state, user, settings, timeout, maxAttempts)
		if cancelled(state.cancel) && fetched == nil {
			// 取消打断了重试循环,当前用户不计入失败
			m.finalize(state, entities.TaskStatusCancelled, "", result)
			return
		}

		stat := entities.UserStat{Nickname: display}
		if err != nil {
			stat.Status = "❌"
			result.Failed++
			m.emitLog(state, "error", fmt.Sprintf("用户 %s 采集失败: %v", display, err))
		} else {
			stat.Success = true
			stat.Status = "✅"
			stat.New = fetched.New
			stat.Skipped = fetched.Skipped
			result.Success++
			result.TotalNew += fetched.New
			result.TotalSkipped += fetched.Skipped
			m.emitLog(state, "info",
				fmt.Sprintf("用户 %s 采集完成，新增 %d，跳过 %d", display, fetched.New, fetched.Skipped))
		}
		result.Users = append(result.Users, stat)
	}

	if cancelled(state.cancel) {
		m.finalize(state, entities.TaskStatusCancelled, "", result)
		return
	}
	m.finalize(state, entities.TaskStatusSuccess, "", result)
}

// fetchWithRetry 有限次重试抓取单个用户,每次尝试独立超时
func (m *Manager) fetchWithRetry(state *taskState, user entities.UserTarget, settings entities.DownloaderSettings, timeout time.Duration, maxAttempts int) (result *fetcher.UserResult, err error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if cancelled(state.cancel) {
			return nil, context.Canceled
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		fetched, fetchErr := m.fetch.FetchUser(ctx, user, settings)
		cancel()

		if fetchErr == nil {
			return fetched, nil
		}
		err = fetchErr

		if attempt < maxAttempts {
			m.emitLog(state, "warn",
				fmt.Sprintf("第 %d/%d 次尝试失败: %v", attempt, maxAttempts, fetchErr))
		}
	}
	return nil, err
}

// finalize 以给定终止状态收尾并发出终止事件
func (m *Manager) finalize(state *taskState, status entities.TaskStatus, errMsg string, result *entities.TaskResult) {
	state.mu.Lock()
	defer state.mu.Unlock()

	t := state.task
	if !t.Status.CanTransitionTo(status) {
		return
	}

	// 取消收尾时total只计实际处理过的用户
	if status == entities.TaskStatusCancelled && result != nil {
		result.Total = len(result.Users)
	}

	now := time.Now().UTC()
	t.EndedAt = &now
	t.Result = result
	t.Error = errMsg

	var eventType entities.EventType
	var message string
	switch status {
	case entities.TaskStatusCancelled:
		eventType = entities.EventTaskCancelled
		message = "任务已取消"
	case entities.TaskStatusFailed:
		eventType = entities.EventTaskFailed
		message = fmt.Sprintf("任务失败: %s", errMsg)
	default:
		status = entities.TaskStatusSuccess
		eventType = entities.EventTaskCompleted
		if result != nil {
			message = fmt.Sprintf("任务完成，成功 %d，失败 %d，新增 %d",
				result.Success, result.Failed, result.TotalNew)
		} else {
			message = "任务完成"
		}
	}
	t.Status = status

	logEvent := m.appendLogLocked(t, levelFor(status), message)
	m.commitLocked(context.Background(), t, logEvent,
		entities.NewStatusEvent(t, eventType, message))

	logger.Info("task finished", "task_id", t.ID, "status", string(status))
}

// emitLog 追加任务日志并广播
func (m *Manager) emitLog(state *taskState, level, message string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	event := m.appendLogLocked(state.task, level, message)
	m.commitLocked(context.Background(), state.task, event)
}

func levelFor(status entities.TaskStatus) string {
	if status == entities.TaskStatusFailed {
		return "error"
	}
	return "info"
}

func cancelled(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// ensureWritableDir 校验下载目录可写,必要时创建
func ensureWritableDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("目录未配置")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".write_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0600); err != nil {
		return err
	}
	return os.Remove(probe)
}
