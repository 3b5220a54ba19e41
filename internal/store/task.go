package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/taskhub/apiserver/types"
)

const taskColumns = `id, user_id, title, description, status, priority, due_date, completed_at, attachment, created_at, updated_at`

// TaskRepository handles persistence for tasks. Every query is scoped by owner.
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) ListByUser(ctx context.Context, userID uuid.UUID, filter types.TaskFilter, offset, limit int) ([]types.Task, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const countQuery = `
		SELECT COUNT(1)
		FROM tasks
		WHERE user_id = $1
			AND ($2::text = '' OR status = $2)
			AND ($3::text = '' OR priority = $3)`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, userID, string(filter.Status), string(filter.Priority)).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = $1
			AND ($2::text = '' OR status = $2)
			AND ($3::text = '' OR priority = $3)
		ORDER BY created_at DESC, id
		OFFSET $4 LIMIT $5`
	rows, err := r.db.QueryContext(ctx, listQuery, userID, string(filter.Status), string(filter.Priority), offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tasks := make([]types.Task, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return tasks, total, nil
}

// GetForUser returns the task only when it belongs to userID.
func (r *TaskRepository) GetForUser(ctx context.Context, id, userID uuid.UUID) (types.Task, error) {
	const query = `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE id = $1 AND user_id = $2`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	return task, nil
}

func (r *TaskRepository) Create(ctx context.Context, task types.Task) (types.Task, error) {
	now := time.Now().UTC()
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.CreatedAt = now
	task.UpdatedAt = now

	attachmentJSON, err := marshalAttachment(task.Attachment)
	if err != nil {
		return types.Task{}, err
	}

	const query = `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.DueDate,
		task.CompletedAt,
		attachmentJSON,
		task.CreatedAt,
		task.UpdatedAt,
	); err != nil {
		return types.Task{}, mapWriteError(err)
	}
	return task, nil
}

// Update overwrites the mutable fields of a task owned by task.UserID.
func (r *TaskRepository) Update(ctx context.Context, task types.Task) (types.Task, error) {
	task.UpdatedAt = time.Now().UTC()

	attachmentJSON, err := marshalAttachment(task.Attachment)
	if err != nil {
		return types.Task{}, err
	}

	const query = `
		UPDATE tasks
		SET title = $1,
			description = $2,
			status = $3,
			priority = $4,
			due_date = $5,
			completed_at = $6,
			attachment = $7,
			updated_at = $8
		WHERE id = $9 AND user_id = $10`
	result, err := r.db.ExecContext(
		ctx,
		query,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.DueDate,
		task.CompletedAt,
		attachmentJSON,
		task.UpdatedAt,
		task.ID,
		task.UserID,
	)
	if err != nil {
		return types.Task{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Task{}, err
	}
	if affected == 0 {
		return types.Task{}, ErrNotFound
	}
	return task, nil
}

func (r *TaskRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	const query = `DELETE FROM tasks WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (types.Task, error) {
	var task types.Task
	var description sql.NullString
	var dueDate, completedAt sql.NullTime
	var attachmentJSON []byte
	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&description,
		&task.Status,
		&task.Priority,
		&dueDate,
		&completedAt,
		&attachmentJSON,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return types.Task{}, err
	}

	if description.Valid {
		task.Description = &description.String
	}
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	if len(attachmentJSON) > 0 {
		var attachment types.Attachment
		if err := json.Unmarshal(attachmentJSON, &attachment); err == nil && attachment.ObjectKey != "" {
			task.Attachment = &attachment
		}
	}
	return task, nil
}

func marshalAttachment(attachment *types.Attachment) (any, error) {
	if attachment == nil {
		return nil, nil
	}
	data, err := json.Marshal(attachment)
	if err != nil {
		return nil, err
	}
	return data, nil
}
