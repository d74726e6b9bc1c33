package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/userfetch/userfetch/internal/application/contracts"
	"github.com/userfetch/userfetch/internal/domain/entities"
	"github.com/userfetch/userfetch/internal/infrastructure/repository"
	"github.com/userfetch/userfetch/internal/shared/errors"
)

// stubTasks 记录提交的任务,可按需注入失败
type stubTasks struct {
	mu      sync.Mutex
	created []contracts.TaskCreateRequest
	failFor string // 用户名匹配时提交失败
	seq     int
}

func (f *stubTasks) CreateTask(ctx context.Context, req contracts.TaskCreateRequest) (*contracts.TaskResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failFor != "" {
		for _, u := range req.UserList {
			if u.Name == f.failFor {
				return nil, fmt.Errorf("submit rejected")
			}
		}
	}
	f.seq++
	f.created = append(f.created, req)
	return &contracts.TaskResponse{
		ID:     fmt.Sprintf("task-%d", f.seq),
		Status: entities.TaskStatusPending,
	}, nil
}

func (f *stubTasks) GetTask(ctx context.Context, id string) (*contracts.TaskResponse, error) {
	return nil, errors.New(errors.ErrorCodeNotFound, "任务不存在")
}

func (f *stubTasks) GetTaskLogs(ctx context.Context, id string) (*contracts.TaskLogsResponse, error) {
	return nil, errors.New(errors.ErrorCodeNotFound, "任务不存在")
}

func (f *stubTasks) ListTasks(ctx context.Context, req contracts.TaskListRequest) (*contracts.TaskListResponse, error) {
	return &contracts.TaskListResponse{}, nil
}

func (f *stubTasks) CancelTask(ctx context.Context, id string) (*contracts.TaskResponse, error) {
	return nil, errors.New(errors.ErrorCodeNotFound, "任务不存在")
}

func (f *stubTasks) Subscribe(taskID string) (<-chan entities.TaskEvent, func(), error) {
	return nil, nil, errors.New(errors.ErrorCodeNotFound, "任务不存在")
}

func (f *stubTasks) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func newTestScheduler(t *testing.T) (*Scheduler, *stubTasks, *repository.ScheduleRepository) {
	t.Helper()
	db, err := repository.Open(filepath.Join(t.TempDir(), "schedules.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	repo, err := repository.NewScheduleRepository(db)
	if err != nil {
		t.Fatal(err)
	}

	tasks := &stubTasks{}
	s, err := New(repo, tasks, time.Hour) // tick手动驱动,间隔无关紧要
	if err != nil {
		t.Fatal(err)
	}
	return s, tasks, repo
}

func createEnabled(t *testing.T, s *Scheduler, name, cron string) *contracts.ScheduleResponse {
	t.Helper()
	resp, err := s.CreateSchedule(context.Background(), contracts.ScheduleCreateRequest{
		Name:     name,
		CronExpr: cron,
		Enabled:  true,
		UserList: []entities.UserTarget{{Name: name, URL: "https://example.com/u/" + name}},
	})
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	return resp
}

func TestCreateComputesNextRun(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	resp := createEnabled(t, s, "每分钟", "* * * * *")
	if resp.NextRunAt == nil {
		t.Fatal("enabled schedule must carry next_run_at")
	}
	if !resp.NextRunAt.After(time.Now().Add(-time.Second)) {
		t.Errorf("next_run_at not in the future: %v", resp.NextRunAt)
	}
}

func TestInvalidCronRejected(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	_, err := s.CreateSchedule(context.Background(), contracts.ScheduleCreateRequest{
		Name:     "坏表达式",
		CronExpr: "61 * * * *",
		Enabled:  true,
	})
	if errors.CodeOf(err) != errors.ErrorCodeInvalidRequest {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestFireAndAdvance(t *testing.T) {
	s, tasks, _ := newTestScheduler(t)

	base := time.Date(2024, 6, 1, 10, 0, 30, 0, time.UTC)
	s.now = func() time.Time { return base }

	resp := createEnabled(t, s, "甲", "* * * * *")
	firstNext := *resp.NextRunAt

	// 到期前不触发
	s.checkDue()
	if tasks.count() != 0 {
		t.Fatal("fired before due time")
	}

	// 越过到期时刻
	base = firstNext.Add(time.Second)
	s.checkDue()
	if tasks.count() != 1 {
		t.Fatalf("expected 1 task, got %d", tasks.count())
	}

	after, err := s.GetSchedule(context.Background(), resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.NextRunAt == nil || !after.NextRunAt.After(firstNext) {
		t.Errorf("next_run_at must advance strictly: %v -> %v", firstNext, after.NextRunAt)
	}
	if after.LastTaskID != "task-1" {
		t.Errorf("last_task_id not recorded: %s", after.LastTaskID)
	}
	if after.LastRunAt == nil {
		t.Error("last_run_at not recorded")
	}

	// 同一到期点不重复触发
	s.checkDue()
	if tasks.count() != 1 {
		t.Error("schedule fired twice for the same due point")
	}
}

func TestNextRunStrictlyIncreasesAcrossFires(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	base := time.Date(2024, 6, 1, 0, 0, 30, 0, time.UTC)
	s.now = func() time.Time { return base }

	resp := createEnabled(t, s, "乙", "* * * * *")
	prev := *resp.NextRunAt

	for i := 0; i < 5; i++ {
		base = prev.Add(time.Second)
		s.checkDue()

		cur, err := s.GetSchedule(context.Background(), resp.ID)
		if err != nil {
			t.Fatal(err)
		}
		if cur.NextRunAt == nil || !cur.NextRunAt.After(prev) {
			t.Fatalf("fire %d: next_run_at %v not after %v", i, cur.NextRunAt, prev)
		}
		prev = *cur.NextRunAt
	}
}

func TestRunNowLeavesCadenceUntouched(t *testing.T) {
	s, tasks, _ := newTestScheduler(t)

	resp := createEnabled(t, s, "丙", "0 2 * * *")
	before := *resp.NextRunAt

	run, err := s.RunNow(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if run.TaskID == "" || tasks.count() != 1 {
		t.Fatalf("run-now did not submit a task: %+v", run)
	}

	after, err := s.GetSchedule(context.Background(), resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.NextRunAt == nil || !after.NextRunAt.Equal(before) {
		t.Errorf("run-now must not move next_run_at: %v -> %v", before, after.NextRunAt)
	}
	if after.LastTaskID != run.TaskID {
		t.Errorf("last_task_id not recorded: %s", after.LastTaskID)
	}
}

func TestPerScheduleErrorIsolation(t *testing.T) {
	s, tasks, _ := newTestScheduler(t)
	tasks.failFor = "故障计划"

	base := time.Date(2024, 6, 1, 10, 0, 30, 0, time.UTC)
	s.now = func() time.Time { return base }

	bad := createEnabled(t, s, "故障计划", "* * * * *")
	good := createEnabled(t, s, "正常计划", "* * * * *")

	base = base.Add(time.Minute)
	s.checkDue()

	if tasks.count() != 1 {
		t.Fatalf("healthy schedule should still fire, got %d tasks", tasks.count())
	}

	goodAfter, _ := s.GetSchedule(context.Background(), good.ID)
	if goodAfter.LastTaskID == "" {
		t.Error("healthy schedule did not record its task")
	}
	badAfter, _ := s.GetSchedule(context.Background(), bad.ID)
	if badAfter.LastTaskID != "" {
		t.Error("failed schedule must not record a task id")
	}
	// 失败计划的节奏仍然推进,避免每个tick重试风暴
	if badAfter.NextRunAt == nil || !badAfter.NextRunAt.After(base) {
		t.Errorf("failed schedule next_run_at not advanced: %v", badAfter.NextRunAt)
	}
}

func TestToggleRecomputesAndClears(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ctx := context.Background()

	resp := createEnabled(t, s, "丁", "0 2 * * *")

	disabled, err := s.ToggleSchedule(ctx, resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if disabled.Enabled || disabled.NextRunAt != nil {
		t.Errorf("disable must clear next_run_at: %+v", disabled)
	}

	enabled, err := s.ToggleSchedule(ctx, resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !enabled.Enabled || enabled.NextRunAt == nil {
		t.Errorf("enable must recompute next_run_at: %+v", enabled)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	s, _, repo := newTestScheduler(t)
	ctx := context.Background()

	resp := createEnabled(t, s, "戊", "0 2 * * *")

	newName := "戊改"
	newCron := "30 3 * * *"
	updated, err := s.UpdateSchedule(ctx, resp.ID, contracts.ScheduleUpdateRequest{
		Name:     &newName,
		CronExpr: &newCron,
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != newName || updated.CronExpr != newCron {
		t.Errorf("update not applied: %+v", updated)
	}

	badCron := "not-cron"
	if _, err := s.UpdateSchedule(ctx, resp.ID, contracts.ScheduleUpdateRequest{CronExpr: &badCron}); errors.CodeOf(err) != errors.ErrorCodeInvalidRequest {
		t.Errorf("invalid cron in update should be rejected, got %v", err)
	}

	if err := s.DeleteSchedule(ctx, resp.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSchedule(ctx, resp.ID); errors.CodeOf(err) != errors.ErrorCodeNotFound {
		t.Errorf("deleted schedule still visible: %v", err)
	}
	if _, err := repo.GetByID(ctx, resp.ID); err != repository.ErrNotFound {
		t.Errorf("deleted schedule still persisted: %v", err)
	}

	if err := s.DeleteSchedule(ctx, resp.ID); errors.CodeOf(err) != errors.ErrorCodeNotFound {
		t.Errorf("double delete should be NOT_FOUND, got %v", err)
	}
}

func TestSchedulesReloadedOnStartup(t *testing.T) {
	db, err := repository.Open(filepath.Join(t.TempDir(), "schedules.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	repo, err := repository.NewScheduleRepository(db)
	if err != nil {
		t.Fatal(err)
	}

	first, err := New(repo, &stubTasks{}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := first.CreateSchedule(context.Background(), contracts.ScheduleCreateRequest{
		Name:     "重启后仍在",
		CronExpr: "0 2 * * *",
		Enabled:  true,
	})
	if err != nil {
		t.Fatal(err)
	}

	second, err := New(repo, &stubTasks{}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	reloaded, err := second.GetSchedule(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("schedule lost across restart: %v", err)
	}
	if reloaded.NextRunAt == nil {
		t.Error("enabled schedule should have next_run_at recomputed at startup")
	}
}
