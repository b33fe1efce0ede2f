package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/unclebandit/storecast-backend/internal/model"
)

type BroadcastJobRepositoryInterface interface {
	Create(ctx context.Context, job *model.BroadcastJob) error
	GetByID(ctx context.Context, id string) (*model.BroadcastJob, error)
	List(ctx context.Context, offset, limit int, status string) ([]*model.BroadcastJob, int, error)

	// TransitionStatus moves the job from -> to and reports whether this caller won the transition.
	TransitionStatus(ctx context.Context, id string, from, to model.JobStatus) (bool, error)
	// Complete writes the terminal outcome unless the job is already terminal.
	Complete(ctx context.Context, id string, outcome model.JobOutcome) (bool, error)
	SetSchedulerMessageID(ctx context.Context, id, messageID string) error
	// ClaimStalled bumps started_at on up to limit sending jobs started before olderThan and returns them.
	ClaimStalled(ctx context.Context, olderThan time.Time, limit int) ([]*model.BroadcastJob, error)
	// Touch refreshes started_at on a sending job so the sweeper leaves a live pass alone.
	Touch(ctx context.Context, id string) error
}

type BroadcastJobRepository struct {
	DB *sql.DB
}

const jobColumns = `j.id, j.template_id, j.status, j.trigger, j.target_store_ids, j.media_selections,
        j.sent_count, j.failed_count, j.error_details, j.scheduled_at, j.scheduler_message_id,
        j.started_at, j.created_at, j.completed_at`

// scanJob reads jobColumns followed by any extra destinations.
func scanJob(row rowScanner, extra ...any) (*model.BroadcastJob, error) {
	var (
		j                   model.BroadcastJob
		templateID          sql.NullString
		selections, details []byte
		schedulerMsgID      sql.NullString
		storeIDs            pq.StringArray
	)
	dest := []any{
		&j.ID, &templateID, &j.Status, &j.Trigger, &storeIDs, &selections,
		&j.SentCount, &j.FailedCount, &details, &j.ScheduledAt, &schedulerMsgID,
		&j.StartedAt, &j.CreatedAt, &j.CompletedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if templateID.Valid {
		j.TemplateID = &templateID.String
	}
	if schedulerMsgID.Valid {
		j.SchedulerMessageID = &schedulerMsgID.String
	}
	j.TargetStoreIDs = []string(storeIDs)

	var err error
	if j.MediaSelections, err = scanJSONMap(selections); err != nil {
		return nil, fmt.Errorf("decode media_selections of job %s: %w", j.ID, err)
	}
	if j.ErrorDetails, err = scanJSONMap(details); err != nil {
		return nil, fmt.Errorf("decode error_details of job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (r *BroadcastJobRepository) Create(ctx context.Context, job *model.BroadcastJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.TargetStoreIDs == nil {
		job.TargetStoreIDs = []string{}
	}
	if job.Trigger == "" {
		job.Trigger = model.TriggerImmediate
	}
	job.CreatedAt = time.Now()
	if job.Status == model.JobSending {
		started := job.CreatedAt
		job.StartedAt = &started
	}

	selections, err := jsonMap(job.MediaSelections)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO broadcast_jobs
            (id, template_id, status, trigger, target_store_ids, media_selections,
             sent_count, failed_count, scheduled_at, started_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	_, err = r.DB.ExecContext(ctx, query,
		job.ID, job.TemplateID, job.Status, job.Trigger, pq.Array(job.TargetStoreIDs), selections,
		job.SentCount, job.FailedCount, job.ScheduledAt, job.StartedAt, job.CreatedAt,
	)
	return writeError(err, "broadcast job")
}

// GetByID returns the job with its template reference, including the template document.
func (r *BroadcastJobRepository) GetByID(ctx context.Context, id string) (*model.BroadcastJob, error) {
	query := `
        SELECT ` + jobColumns + `, t.name, t.json_content
        FROM broadcast_jobs j
        LEFT JOIN templates t ON t.id = j.template_id
        WHERE j.id = $1
    `
	var (
		templateName sql.NullString
		content      []byte
	)
	job, err := scanJob(r.DB.QueryRowContext(ctx, query, id), &templateName, &content)
	if err != nil {
		return nil, lookupError(err, "broadcast job", id)
	}
	if job.TemplateID != nil && templateName.Valid {
		job.Template = &model.TemplateRef{ID: *job.TemplateID, Name: templateName.String, JSONContent: json.RawMessage(content)}
	}
	return job, nil
}

// List returns jobs newest first with their template id and name, plus the total matching count.
func (r *BroadcastJobRepository) List(ctx context.Context, offset, limit int, status string) ([]*model.BroadcastJob, int, error) {
	jobs := []*model.BroadcastJob{}
	where := ` WHERE 1=1`
	args := []any{}
	argPos := 1

	if status != "" {
		where += fmt.Sprintf(" AND j.status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query := `
        SELECT ` + jobColumns + `, t.name
        FROM broadcast_jobs j
        LEFT JOIN templates t ON t.id = j.template_id` + where +
		fmt.Sprintf(" ORDER BY j.created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)

	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var templateName sql.NullString
		job, err := scanJob(rows, &templateName)
		if err != nil {
			return nil, 0, err
		}
		if job.TemplateID != nil && templateName.Valid {
			job.Template = &model.TemplateRef{ID: *job.TemplateID, Name: templateName.String}
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM broadcast_jobs j`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return jobs, total, nil
}

func (r *BroadcastJobRepository) TransitionStatus(ctx context.Context, id string, from, to model.JobStatus) (bool, error) {
	query := `
        UPDATE broadcast_jobs
        SET status = $3,
            started_at = CASE WHEN $3 = 'sending' THEN NOW() ELSE started_at END
        WHERE id = $1 AND status = $2
    `
	res, err := r.DB.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return false, lookupError(err, "broadcast job", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *BroadcastJobRepository) Complete(ctx context.Context, id string, outcome model.JobOutcome) (bool, error) {
	var details any
	if len(outcome.ErrorDetails) > 0 {
		d, err := jsonMap(outcome.ErrorDetails)
		if err != nil {
			return false, err
		}
		details = d
	}

	query := `
        UPDATE broadcast_jobs
        SET status = $2, sent_count = $3, failed_count = $4, error_details = $5, completed_at = $6
        WHERE id = $1 AND status NOT IN ('completed', 'failed')
    `
	res, err := r.DB.ExecContext(ctx, query, id, outcome.Status, outcome.SentCount, outcome.FailedCount, details, outcome.CompletedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *BroadcastJobRepository) SetSchedulerMessageID(ctx context.Context, id, messageID string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE broadcast_jobs SET scheduler_message_id = $2 WHERE id = $1`, id, messageID)
	return requireRow(res, err, "broadcast job", id)
}

func (r *BroadcastJobRepository) ClaimStalled(ctx context.Context, olderThan time.Time, limit int) ([]*model.BroadcastJob, error) {
	query := `
        UPDATE broadcast_jobs j
        SET started_at = NOW()
        WHERE j.id IN (
            SELECT id FROM broadcast_jobs
            WHERE status = 'sending' AND (started_at IS NULL OR started_at < $1)
            ORDER BY started_at NULLS FIRST
            LIMIT $2
            FOR UPDATE SKIP LOCKED
        )
        RETURNING ` + jobColumns
	rows, err := r.DB.QueryContext(ctx, query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*model.BroadcastJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *BroadcastJobRepository) Touch(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE broadcast_jobs SET started_at = NOW() WHERE id = $1 AND status = 'sending'`, id)
	return err
}

var _ BroadcastJobRepositoryInterface = (*BroadcastJobRepository)(nil)
