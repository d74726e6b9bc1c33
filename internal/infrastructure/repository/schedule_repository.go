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

// ScheduleRepository 定时计划的持久层
type ScheduleRepository struct {
	db *sql.DB
}

// NewScheduleRepository 创建计划仓库并确保表结构存在
func NewScheduleRepository(db *sql.DB) (*ScheduleRepository, error) {
	repo := &ScheduleRepository{db: db}
	if err := repo.ensure(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure schedules table: %w", err)
	}
	return repo, nil
}

func (r *ScheduleRepository) ensure(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schedules (
			schedule_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			cron_expr TEXT NOT NULL,
			user_list_json TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			last_run_at TEXT,
			last_task_id TEXT,
			next_run_at TEXT
		)`)
	return err
}

// Upsert 写入或覆盖计划记录
func (r *ScheduleRepository) Upsert(ctx context.Context, schedule *entities.Schedule) error {
	userListJSON, err := json.Marshal(schedule.UserList)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedules (
			schedule_id, name, enabled, cron_expr, user_list_json,
			created_at, updated_at, last_run_at, last_task_id, next_run_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(schedule_id) DO UPDATE SET
			name=excluded.name,
			enabled=excluded.enabled,
			cron_expr=excluded.cron_expr,
			user_list_json=excluded.user_list_json,
			updated_at=excluded.updated_at,
			last_run_at=excluded.last_run_at,
			last_task_id=excluded.last_task_id,
			next_run_at=excluded.next_run_at`,
		schedule.ID, schedule.Name, boolToInt(schedule.Enabled), schedule.CronExpr,
		string(userListJSON), schedule.CreatedAt.UTC().Format(timeLayout),
		schedule.UpdatedAt.UTC().Format(timeLayout), toISO(schedule.LastRunAt),
		nullStr(schedule.LastTaskID), toISO(schedule.NextRunAt))
	return err
}

// GetByID 按ID读取计划
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*entities.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT schedule_id, name, enabled, cron_expr, user_list_json,
		       created_at, updated_at, last_run_at, last_task_id, next_run_at
		FROM schedules WHERE schedule_id = ?`, id)

	schedule, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return schedule, err
}

// LoadAll 按创建时间倒序读取全部计划
func (r *ScheduleRepository) LoadAll(ctx context.Context) ([]*entities.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT schedule_id, name, enabled, cron_expr, user_list_json,
		       created_at, updated_at, last_run_at, last_task_id, next_run_at
		FROM schedules
		ORDER BY created_at DESC, schedule_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*entities.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			logger.Warn("skip invalid persisted schedule row", "error", err)
			continue
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

// Delete 删除计划,不存在时返回ErrNotFound
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM schedules WHERE schedule_id = ?", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSchedule(row rowScanner) (*entities.Schedule, error) {
	var (
		schedule     entities.Schedule
		enabled      int
		userListJSON string
		createdAt    string
		updatedAt    string
		lastRunAt    sql.NullString
		lastTaskID   sql.NullString
		nextRunAt    sql.NullString
	)

	if err := row.Scan(&schedule.ID, &schedule.Name, &enabled, &schedule.CronExpr,
		&userListJSON, &createdAt, &updatedAt, &lastRunAt, &lastTaskID, &nextRunAt); err != nil {
		return nil, err
	}

	schedule.Enabled = enabled != 0
	schedule.LastTaskID = lastTaskID.String

	if err := json.Unmarshal([]byte(userListJSON), &schedule.UserList); err != nil {
		return nil, fmt.Errorf("schedule %s: bad user_list_json: %w", schedule.ID, err)
	}

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: bad created_at: %w", schedule.ID, err)
	}
	schedule.CreatedAt = created.UTC()

	updated, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: bad updated_at: %w", schedule.ID, err)
	}
	schedule.UpdatedAt = updated.UTC()

	if schedule.LastRunAt, err = fromISO(lastRunAt); err != nil {
		return nil, fmt.Errorf("schedule %s: bad last_run_at: %w", schedule.ID, err)
	}
	if schedule.NextRunAt, err = fromISO(nextRunAt); err != nil {
		return nil, fmt.Errorf("schedule %s: bad next_run_at: %w", schedule.ID, err)
	}

	return &schedule, nil
}
