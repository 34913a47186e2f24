package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const taskColumns = "id, video_id, task_type, job_handle, status, result_json, error_message, started_at, completed_at, created_at, updated_at"

// CreateTaskBatch inserts one pending task per type for a video in a single
// transaction. Either all rows land or none do.
func (s *Store) CreateTaskBatch(ctx context.Context, videoID string, types []TaskType) ([]*ProcessingTask, error) {
	if len(types) == 0 {
		return nil, errors.New("task batch requires at least one type")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin task batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	timestamp := formatTime(now)
	tasks := make([]*ProcessingTask, 0, len(types))
	for _, taskType := range types {
		task := &ProcessingTask{
			ID:        uuid.NewString(),
			VideoID:   videoID,
			Type:      taskType,
			Status:    TaskPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO processing_tasks (id, video_id, task_type, status, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			task.ID, task.VideoID, task.Type, task.Status, timestamp, timestamp,
		); err != nil {
			return nil, fmt.Errorf("insert task %s: %w", taskType, err)
		}
		tasks = append(tasks, task)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit task batch: %w", err)
	}
	return tasks, nil
}

// TaskByID fetches a processing task by identifier. Returns nil when missing.
func (s *Store) TaskByID(ctx context.Context, id string) (*ProcessingTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM processing_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// TasksForVideo returns the current task batch for a video ordered by creation.
func (s *Store) TasksForVideo(ctx context.Context, videoID string) ([]*ProcessingTask, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM processing_tasks WHERE video_id = ? ORDER BY created_at, task_type`,
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*ProcessingTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// SetTaskHandle records the dispatcher handle for a task.
func (s *Store) SetTaskHandle(ctx context.Context, id, handle string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE processing_tasks SET job_handle = ?, updated_at = ? WHERE id = ?`,
		nullableString(handle),
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set task handle: %w", err)
	}
	return nil
}

// StartTask moves a pending task to processing and stamps the start time.
// Returns false when the task is no longer pending (e.g. it was cancelled).
func (s *Store) StartTask(ctx context.Context, id string) (bool, error) {
	now := formatTime(time.Now().UTC())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE processing_tasks SET status = ?, started_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		TaskProcessing, now, now, id, TaskPending,
	)
	if err != nil {
		return false, fmt.Errorf("start task: %w", err)
	}
	return rowsApplied(res)
}

// CompleteTask moves a processing task to completed with its structured result.
// Returns false when the task left processing already (e.g. cancel raced it).
func (s *Store) CompleteTask(ctx context.Context, id, resultJSON string) (bool, error) {
	now := formatTime(time.Now().UTC())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE processing_tasks SET status = ?, result_json = ?, error_message = NULL, completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		TaskCompleted, nullableString(resultJSON), now, now, id, TaskProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	return rowsApplied(res)
}

// FailTask moves a pending or processing task to failed with the captured error.
func (s *Store) FailTask(ctx context.Context, id, message string) (bool, error) {
	now := formatTime(time.Now().UTC())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE processing_tasks SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		TaskFailed, message, now, now, id, TaskPending, TaskProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("fail task: %w", err)
	}
	return rowsApplied(res)
}

// CancelTask moves a pending or processing task to cancelled.
func (s *Store) CancelTask(ctx context.Context, id string) (bool, error) {
	now := formatTime(time.Now().UTC())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE processing_tasks SET status = ?, completed_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		TaskCancelled, now, now, id, TaskPending, TaskProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("cancel task: %w", err)
	}
	return rowsApplied(res)
}

// ClearFailedTasks deletes a video's failed task rows so a retry can create a
// fresh batch of the same types. Returns the cleared types.
func (s *Store) ClearFailedTasks(ctx context.Context, videoID string) ([]TaskType, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin clear failed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(
		ctx,
		`SELECT task_type FROM processing_tasks WHERE video_id = ? AND status = ?`,
		videoID, TaskFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("select failed tasks: %w", err)
	}
	var types []TaskType
	for rows.Next() {
		var taskType string
		if err := rows.Scan(&taskType); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan failed task: %w", err)
		}
		types = append(types, TaskType(taskType))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(types) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM processing_tasks WHERE video_id = ? AND status = ?`,
		videoID, TaskFailed,
	); err != nil {
		return nil, fmt.Errorf("delete failed tasks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit clear failed: %w", err)
	}
	return types, nil
}

func rowsApplied(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*ProcessingTask, error) {
	var (
		id           string
		videoID      string
		taskType     string
		jobHandle    sql.NullString
		statusStr    string
		resultJSON   sql.NullString
		errorMessage sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&videoID,
		&taskType,
		&jobHandle,
		&statusStr,
		&resultJSON,
		&errorMessage,
		&startedRaw,
		&completedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &ProcessingTask{
		ID:           id,
		VideoID:      videoID,
		Type:         TaskType(taskType),
		JobHandle:    jobHandle.String,
		Status:       TaskStatus(statusStr),
		ResultJSON:   resultJSON.String,
		ErrorMessage: errorMessage.String,
		StartedAt:    parseTimePtr(startedRaw.String),
		CompletedAt:  parseTimePtr(completedRaw.String),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}
