package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/storecast-backend/internal/errors"
	"github.com/unclebandit/storecast-backend/internal/metrics"
	"github.com/unclebandit/storecast-backend/internal/model"
	"github.com/unclebandit/storecast-backend/internal/repository"
	"github.com/unclebandit/storecast-backend/internal/scheduler"
)

type ScheduleBroadcastRequest struct {
	TemplateID      string            `json:"template_id" validate:"required"`
	StoreIDs        []string          `json:"store_ids" validate:"required,min=1,dive,required"`
	MediaSelections map[string]string `json:"media_selections" validate:"required,min=1"`
	ScheduledAt     time.Time         `json:"scheduled_at" validate:"required"`
}

type ScheduleResult struct {
	Success     bool      `json:"success"`
	JobID       string    `json:"job_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Message     string    `json:"message"`
}

// SchedulingService records a scheduled job and registers its delayed callback.
type SchedulingService struct {
	Jobs        repository.BroadcastJobRepositoryInterface
	Publisher   scheduler.Publisher
	CallbackURL string
	Logger      *zap.Logger
	Now         func() time.Time
}

func (s *SchedulingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SchedulingService) Schedule(ctx context.Context, req ScheduleBroadcastRequest) (*ScheduleResult, error) {
	storeIDs, err := validateTargets(req.TemplateID, req.StoreIDs, req.MediaSelections)
	if err != nil {
		return nil, err
	}
	if req.ScheduledAt.IsZero() {
		return nil, appErrors.NewValidation("scheduled_at is required")
	}
	if !req.ScheduledAt.After(s.now()) {
		return nil, appErrors.NewValidation("scheduled_at must be in the future")
	}

	scheduledAt := req.ScheduledAt
	job := &model.BroadcastJob{
		TemplateID:      &req.TemplateID,
		Status:          model.JobScheduled,
		Trigger:         model.TriggerScheduled,
		TargetStoreIDs:  storeIDs,
		MediaSelections: req.MediaSelections,
		ScheduledAt:     &scheduledAt,
	}
	if err := s.Jobs.Create(ctx, job); err != nil {
		if appErrors.IsValidation(err) {
			return nil, appErrors.NewValidation("template %s does not exist", req.TemplateID)
		}
		return nil, fmt.Errorf("create broadcast job: %w", err)
	}
	log := s.Logger.With(zap.String("job_id", job.ID), zap.String("driver", s.Publisher.Driver()))

	body, err := json.Marshal(ExecutePayload{
		JobID:           job.ID,
		TemplateID:      req.TemplateID,
		StoreIDs:        storeIDs,
		MediaSelections: req.MediaSelections,
	})
	if err != nil {
		return nil, fmt.Errorf("encode callback payload: %w", err)
	}

	messageID, err := s.Publisher.Publish(ctx, scheduler.PublishRequest{
		CallbackURL:     s.CallbackURL,
		Body:            body,
		NotBefore:       scheduledAt,
		DeduplicationID: job.ID,
	})
	if err != nil {
		metrics.SchedulerRegistrations.WithLabelValues(s.Publisher.Driver(), "failure").Inc()
		log.Error("scheduler registration failed, marking job failed", zap.Error(err))
		s.compensate(ctx, job, err)
		return nil, &appErrors.UpstreamError{Service: "scheduler", Err: err}
	}
	metrics.SchedulerRegistrations.WithLabelValues(s.Publisher.Driver(), "success").Inc()

	if err := s.Jobs.SetSchedulerMessageID(ctx, job.ID, messageID); err != nil {
		// the callback is registered either way; only the trace link is lost
		log.Warn("failed to store scheduler message id", zap.String("message_id", messageID), zap.Error(err))
	}

	log.Info("broadcast scheduled", zap.Time("scheduled_at", scheduledAt), zap.String("message_id", messageID))
	return &ScheduleResult{
		Success:     true,
		JobID:       job.ID,
		ScheduledAt: scheduledAt,
		Message:     fmt.Sprintf("Broadcast scheduled for %s", scheduledAt.Format(time.RFC3339)),
	}, nil
}

// compensate fails a job whose callback could not be registered, so no scheduled row
// is left without a dispatch behind it.
func (s *SchedulingService) compensate(ctx context.Context, job *model.BroadcastJob, cause error) {
	_, err := s.Jobs.Complete(ctx, job.ID, model.JobOutcome{
		Status:       model.JobFailed,
		FailedCount:  len(job.TargetStoreIDs),
		ErrorDetails: map[string]string{"error": "scheduler registration failed: " + cause.Error()},
		CompletedAt:  s.now(),
	})
	if err != nil {
		s.Logger.Error("failed to mark unregistered job failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	metrics.Jobs.WithLabelValues(string(model.TriggerScheduled), string(model.JobFailed)).Inc()
}
