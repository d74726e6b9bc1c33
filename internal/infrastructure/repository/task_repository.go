package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/userfetch/userfetch/internal/domain/entities"
	"github.com/userfetch/userfetch/pkg/logger"
)

// TaskRepository 任务注册表的持久层,任务记录的唯一事实来源
type TaskRepository struct {
	db           *sql.DB
	historyLimit int
}

// NewTaskRepository 创建任务仓库并确保表结构存在
func NewTaskRepository(db *sql.DB, historyLimit int) (*TaskRepository, error) {
	if historyLimit < 1 {
		historyLimit = 1
	}
	repo := &TaskRepository{db: db, historyLimit: historyLimit}
	if err := repo.ensure(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure tasks table: %w", err)
	}
	return repo, nil
}

func (r *TaskRepository) ensure(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			started_at TEXT,
			ended_at TEXT,
			error TEXT,
			cancel_requested INTEGER NOT NULL DEFAULT 0,
			settings_json TEXT NOT NULL,
			user_list_json TEXT NOT NULL,
			result_json TEXT,
			logs_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at DESC)")
	return err
}

// Upsert 写入或覆盖任务记录,并裁剪超出历史上限的最旧记录
func (r *TaskRepository) Upsert(ctx context.Context, task *entities.Task) error {
	// Cookie不落盘
	settings := task.Settings
	settings.Cookie = ""
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return err
	}

	userListJSON, err := json.Marshal(task.UserList)
	if err != nil {
		return err
	}

	var resultJSON any
	if task.Result != nil {
		raw, err := json.Marshal(task.Result)
		if err != nil {
			return err
		}
		resultJSON = string(raw)
	}

	logsJSON, err := json.Marshal(task.Logs)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(timeLayout)
	createdAt := task.CreatedAt
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tasks (
			task_id, status, created_at, started_at, ended_at, error,
			cancel_requested, settings_json, user_list_json, result_json,
			logs_json, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			status=excluded.status,
			started_at=excluded.started_at,
			ended_at=excluded.ended_at,
			error=excluded.error,
			cancel_requested=excluded.cancel_requested,
			settings_json=excluded.settings_json,
			user_list_json=excluded.user_list_json,
			result_json=excluded.result_json,
			logs_json=excluded.logs_json,
			updated_at=excluded.updated_at`,
		task.ID, string(task.Status), createdAt.UTC().Format(timeLayout),
		toISO(task.StartedAt), toISO(task.EndedAt), nullStr(task.Error),
		boolToInt(task.CancelRequested), string(settingsJSON), string(userListJSON),
		resultJSON, string(logsJSON), now)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE task_id NOT IN (
			SELECT task_id FROM tasks ORDER BY created_at DESC, task_id LIMIT ?
		)`, r.historyLimit)
	return err
}

// GetByID 按ID读取任务
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*entities.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT task_id, status, created_at, started_at, ended_at, error,
		       cancel_requested, settings_json, user_list_json, result_json, logs_json
		FROM tasks WHERE task_id = ?`, id)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return task, err
}

// List 按创建时间倒序分页读取,返回快照与总数
func (r *TaskRepository) List(ctx context.Context, offset, limit int) ([]*entities.Task, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT task_id, status, created_at, started_at, ended_at, error,
		       cancel_requested, settings_json, user_list_json, result_json, logs_json
		FROM tasks
		ORDER BY created_at DESC, task_id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tasks []*entities.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			logger.Warn("skip invalid persisted task row", "error", err)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, total, rows.Err()
}

// LoadAll 加载全部保留的任务,用于启动恢复
func (r *TaskRepository) LoadAll(ctx context.Context) ([]*entities.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT task_id, status, created_at, started_at, ended_at, error,
		       cancel_requested, settings_json, user_list_json, result_json, logs_json
		FROM tasks
		ORDER BY created_at DESC, task_id
		LIMIT ?`, r.historyLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*entities.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			logger.Warn("skip invalid persisted task row", "error", err)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*entities.Task, error) {
	var (
		task            entities.Task
		status          string
		createdAt       string
		startedAt       sql.NullString
		endedAt         sql.NullString
		errText         sql.NullString
		cancelRequested int
		settingsJSON    string
		userListJSON    string
		resultJSON      sql.NullString
		logsJSON        string
	)

	if err := row.Scan(&task.ID, &status, &createdAt, &startedAt, &endedAt, &errText,
		&cancelRequested, &settingsJSON, &userListJSON, &resultJSON, &logsJSON); err != nil {
		return nil, err
	}

	task.Status = entities.TaskStatus(status)
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("task %s: bad created_at: %w", task.ID, err)
	}
	task.CreatedAt = created.UTC()

	if task.StartedAt, err = fromISO(startedAt); err != nil {
		return nil, fmt.Errorf("task %s: bad started_at: %w", task.ID, err)
	}
	if task.EndedAt, err = fromISO(endedAt); err != nil {
		return nil, fmt.Errorf("task %s: bad ended_at: %w", task.ID, err)
	}
	task.Error = errText.String
	task.CancelRequested = cancelRequested != 0

	if err := json.Unmarshal([]byte(settingsJSON), &task.Settings); err != nil {
		return nil, fmt.Errorf("task %s: bad settings_json: %w", task.ID, err)
	}
	if err := json.Unmarshal([]byte(userListJSON), &task.UserList); err != nil {
		return nil, fmt.Errorf("task %s: bad user_list_json: %w", task.ID, err)
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result entities.TaskResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("task %s: bad result_json: %w", task.ID, err)
		}
		task.Result = &result
	}
	if err := json.Unmarshal([]byte(logsJSON), &task.Logs); err != nil {
		return nil, fmt.Errorf("task %s: bad logs_json: %w", task.ID, err)
	}

	return &task, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
