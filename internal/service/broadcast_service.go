package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/storecast-backend/internal/errors"
	"github.com/unclebandit/storecast-backend/internal/metrics"
	"github.com/unclebandit/storecast-backend/internal/model"
	"github.com/unclebandit/storecast-backend/internal/repository"
)

type CreateBroadcastRequest struct {
	TemplateID      string            `json:"template_id" validate:"required"`
	StoreIDs        []string          `json:"store_ids" validate:"required,min=1,dive,required"`
	MediaSelections map[string]string `json:"media_selections" validate:"required,min=1"`
}

type BroadcastResult struct {
	JobID       string          `json:"job_id"`
	Status      model.JobStatus `json:"status"`
	SentCount   int             `json:"sent_count"`
	FailedCount int             `json:"failed_count"`
	Results     []StoreResult   `json:"results"`
}

type TestBroadcastRequest struct {
	TemplateID string `json:"template_id" validate:"required"`
	StoreID    string `json:"store_id" validate:"required"`
	MediaID    string `json:"media_id" validate:"required"`
	TestUserID string `json:"test_user_id"`
}

type TestBroadcastResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ExecutePayload is the self-contained body the scheduler delivers to the callback endpoint.
type ExecutePayload struct {
	JobID           string            `json:"job_id" validate:"required"`
	TemplateID      string            `json:"template_id" validate:"required"`
	StoreIDs        []string          `json:"store_ids" validate:"required,min=1"`
	MediaSelections map[string]string `json:"media_selections" validate:"required"`
}

type ExecuteResult struct {
	Success     bool            `json:"success"`
	Skipped     bool            `json:"skipped,omitempty"`
	JobID       string          `json:"job_id"`
	Status      model.JobStatus `json:"status"`
	SentCount   int             `json:"sent_count"`
	FailedCount int             `json:"failed_count"`
}

// BroadcastService runs the immediate, test and scheduled send paths against the job ledger.
type BroadcastService struct {
	Jobs         repository.BroadcastJobRepositoryInterface
	Deliveries   repository.DeliveryRepositoryInterface
	Stores       repository.StoreRepositoryInterface
	Templates    repository.TemplateRepositoryInterface
	MediaURLs    repository.StoreMediaURLRepositoryInterface
	Orchestrator *Orchestrator
	Logger       *zap.Logger

	// TestUserID is the push recipient used when a test request names none.
	TestUserID string
	// StalledBatch caps how many jobs one ResumeStalled call claims.
	StalledBatch int

	Now func() time.Time
}

func (s *BroadcastService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// SendNow creates a sending job, fans out synchronously and returns per-store outcomes.
func (s *BroadcastService) SendNow(ctx context.Context, req CreateBroadcastRequest) (*BroadcastResult, error) {
	storeIDs, err := validateTargets(req.TemplateID, req.StoreIDs, req.MediaSelections)
	if err != nil {
		return nil, err
	}

	tpl, err := s.Templates.GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	stores, err := s.Stores.GetByIDs(ctx, storeIDs)
	if err != nil {
		return nil, fmt.Errorf("load target stores: %w", err)
	}
	if len(stores) == 0 {
		return nil, appErrors.NewNotFound("stores", "")
	}

	job := &model.BroadcastJob{
		TemplateID:      &tpl.ID,
		Status:          model.JobSending,
		Trigger:         model.TriggerImmediate,
		TargetStoreIDs:  storeIDs,
		MediaSelections: req.MediaSelections,
	}
	if err := s.Jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create broadcast job: %w", err)
	}
	// once the job exists the pass runs to the end of the store list, even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	log := s.Logger.With(zap.String("job_id", job.ID))
	log.Info("immediate broadcast started", zap.Int("stores", len(storeIDs)))

	result := s.fanOut(ctx, job, tpl, stores, nil)
	status := s.finish(ctx, job, result)

	return &BroadcastResult{
		JobID:       job.ID,
		Status:      status,
		SentCount:   result.SentCount,
		FailedCount: result.FailedCount,
		Results:     result.Results,
	}, nil
}

// SendTest pushes the rendered template for one store to a single LINE user. No job is recorded.
func (s *BroadcastService) SendTest(ctx context.Context, req TestBroadcastRequest) (*TestBroadcastResult, error) {
	to := req.TestUserID
	if to == "" {
		to = s.TestUserID
	}
	switch {
	case req.TemplateID == "" || req.StoreID == "" || req.MediaID == "":
		return nil, appErrors.NewValidation("template_id, store_id and media_id are required")
	case to == "":
		return nil, appErrors.NewValidation("test_user_id is required")
	}

	tpl, err := s.Templates.GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	store, err := s.Stores.GetByID(ctx, req.StoreID)
	if err != nil {
		return nil, err
	}
	binding, err := s.MediaURLs.Find(ctx, store.ID, req.MediaID)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return nil, appErrors.NewNotFound("media URL for this store", "")
		}
		return nil, err
	}

	payload, err := RenderFlexTemplate(tpl.JSONContent, map[string]string{
		VarMediaURL:  binding.URL,
		VarStoreName: store.Name,
	})
	if err != nil {
		s.Logger.Warn("failed to render template for test push", zap.String("template_id", tpl.ID), zap.Error(err))
		return nil, err
	}

	send, err := s.Orchestrator.Channels.ForStore(store.LineChannelAccessToken).PushToUser(ctx, to, payload, tpl.Name)
	if err != nil {
		metrics.StoreSends.WithLabelValues("push", "unexpected").Inc()
		return nil, &appErrors.UpstreamError{Service: "LINE", Err: err}
	}
	if !send.Success {
		metrics.StoreSends.WithLabelValues("push", "provider_error").Inc()
		return nil, &appErrors.UpstreamError{Service: "LINE", StatusCode: send.StatusCode, Body: send.Body}
	}

	metrics.StoreSends.WithLabelValues("push", "success").Inc()
	s.Logger.Info("test push sent", zap.String("store_id", store.ID), zap.String("request_id", send.RequestID))
	return &TestBroadcastResult{Success: true, Message: "Test message sent", RequestID: send.RequestID}, nil
}

// RunScheduled is the scheduler callback. Only the caller that moves the job out of
// scheduled runs the fan-out; redelivered callbacks are reported as skipped.
func (s *BroadcastService) RunScheduled(ctx context.Context, p ExecutePayload) (*ExecuteResult, error) {
	if p.JobID == "" || p.TemplateID == "" || len(p.StoreIDs) == 0 {
		return nil, appErrors.NewValidation("Invalid request body")
	}
	log := s.Logger.With(zap.String("job_id", p.JobID))

	won, err := s.Jobs.TransitionStatus(ctx, p.JobID, model.JobScheduled, model.JobSending)
	if err != nil {
		return nil, fmt.Errorf("claim scheduled job: %w", err)
	}
	if !won {
		existing, err := s.Jobs.GetByID(ctx, p.JobID)
		if err != nil {
			return nil, err
		}
		metrics.CallbacksSkipped.WithLabelValues("already_claimed").Inc()
		log.Info("scheduled job already claimed, skipping", zap.String("status", string(existing.Status)))
		return &ExecuteResult{
			Success:     true,
			Skipped:     true,
			JobID:       existing.ID,
			Status:      existing.Status,
			SentCount:   existing.SentCount,
			FailedCount: existing.FailedCount,
		}, nil
	}

	// the claim is won; a callback timeout must not cut the pass short
	ctx = context.WithoutCancel(ctx)

	job := &model.BroadcastJob{
		ID:              p.JobID,
		TemplateID:      &p.TemplateID,
		Status:          model.JobSending,
		Trigger:         model.TriggerScheduled,
		TargetStoreIDs:  uniqueIDs(p.StoreIDs),
		MediaSelections: p.MediaSelections,
	}
	log.Info("scheduled broadcast started", zap.Int("stores", len(job.TargetStoreIDs)))

	result, err := s.resume(ctx, job, nil)
	if err != nil {
		// the job stays in sending; the stalled-job sweeper picks it up again
		return nil, err
	}
	status := s.finish(ctx, job, result)

	return &ExecuteResult{
		Success:     true,
		JobID:       job.ID,
		Status:      status,
		SentCount:   result.SentCount,
		FailedCount: result.FailedCount,
	}, nil
}

// ResumeStalled finishes jobs left in sending for longer than olderThan, skipping
// stores already present in their delivery log. It returns how many jobs it finished.
func (s *BroadcastService) ResumeStalled(ctx context.Context, olderThan time.Duration) (int, error) {
	batch := s.StalledBatch
	if batch <= 0 {
		batch = 20
	}
	jobs, err := s.Jobs.ClaimStalled(ctx, s.now().Add(-olderThan), batch)
	if err != nil {
		return 0, fmt.Errorf("claim stalled jobs: %w", err)
	}

	resumed := 0
	for _, job := range jobs {
		log := s.Logger.With(zap.String("job_id", job.ID))

		deliveries, err := s.Deliveries.ListByJob(ctx, job.ID)
		if err != nil {
			log.Error("failed to load delivery log", zap.Error(err))
			continue
		}
		completed := make(map[string]StoreResult, len(deliveries))
		for _, d := range deliveries {
			completed[d.StoreID] = StoreResult{StoreID: d.StoreID, Success: d.Success, Error: d.Error, RequestID: d.RequestID}
		}

		log.Info("resuming stalled broadcast", zap.Int("already_done", len(completed)))
		result, err := s.resume(ctx, job, completed)
		if err != nil {
			log.Error("failed to resume stalled job", zap.Error(err))
			continue
		}
		s.finish(ctx, job, result)
		resumed++
	}
	return resumed, nil
}

// resume loads the template and stores for an already-sending job and fans out.
func (s *BroadcastService) resume(ctx context.Context, job *model.BroadcastJob, completed map[string]StoreResult) (*FanoutResult, error) {
	var tpl *model.Template
	if job.TemplateID != nil {
		t, err := s.Templates.GetByID(ctx, *job.TemplateID)
		switch {
		case err == nil:
			tpl = t
		case !appErrors.IsNotFound(err):
			return nil, fmt.Errorf("load template: %w", err)
		}
	}
	if tpl == nil {
		s.Logger.Warn("template missing, failing every store", zap.String("job_id", job.ID))
		return s.failAll(ctx, job, ReasonTemplateMissing, completed), nil
	}

	stores, err := s.Stores.GetByIDs(ctx, job.TargetStoreIDs)
	if err != nil {
		return nil, fmt.Errorf("load target stores: %w", err)
	}
	return s.fanOut(ctx, job, tpl, stores, completed), nil
}

// fanOut runs the orchestrator and accounts for targets whose store no longer exists,
// so every target id ends with exactly one result.
func (s *BroadcastService) fanOut(ctx context.Context, job *model.BroadcastJob, tpl *model.Template, stores []*model.Store, completed map[string]StoreResult) *FanoutResult {
	start := time.Now()
	defer func() {
		metrics.FanoutDuration.WithLabelValues(string(job.Trigger)).Observe(time.Since(start).Seconds())
	}()

	result := s.Orchestrator.Execute(ctx, FanoutRequest{
		JobID:      job.ID,
		Template:   tpl,
		Stores:     stores,
		Selections: job.MediaSelections,
		Completed:  completed,
	})

	found := make(map[string]bool, len(stores))
	for _, st := range stores {
		found[st.ID] = true
	}
	for _, id := range job.TargetStoreIDs {
		if found[id] {
			continue
		}
		if prev, ok := completed[id]; ok {
			result.add(prev)
			continue
		}
		sr := StoreResult{StoreID: id, Error: ReasonStoreMissing}
		metrics.StoreSends.WithLabelValues("broadcast", "store_missing").Inc()
		s.Orchestrator.record(ctx, job.ID, sr)
		result.add(sr)
	}
	return result
}

func (s *BroadcastService) failAll(ctx context.Context, job *model.BroadcastJob, reason string, completed map[string]StoreResult) *FanoutResult {
	result := &FanoutResult{}
	for _, id := range job.TargetStoreIDs {
		if prev, ok := completed[id]; ok {
			result.add(prev)
			continue
		}
		sr := StoreResult{StoreID: id, Error: reason}
		metrics.StoreSends.WithLabelValues("broadcast", "template_missing").Inc()
		s.Orchestrator.record(ctx, job.ID, sr)
		result.add(sr)
	}
	return result
}

// finish writes the terminal state. A failed write is logged and not returned:
// the sends already happened and the caller still gets the real outcome.
func (s *BroadcastService) finish(ctx context.Context, job *model.BroadcastJob, result *FanoutResult) model.JobStatus {
	status := model.TerminalStatus(result.SentCount, result.FailedCount)
	outcome := model.JobOutcome{
		Status:       status,
		SentCount:    result.SentCount,
		FailedCount:  result.FailedCount,
		ErrorDetails: result.ErrorDetails,
		CompletedAt:  s.now(),
	}

	log := s.Logger.With(zap.String("job_id", job.ID))
	updated, err := s.Jobs.Complete(ctx, job.ID, outcome)
	switch {
	case err != nil:
		log.Error("failed to write terminal job state", zap.String("status", string(status)), zap.Error(err))
	case !updated:
		log.Warn("job was already terminal, outcome not written", zap.String("status", string(status)))
	default:
		metrics.Jobs.WithLabelValues(string(job.Trigger), string(status)).Inc()
		log.Info("broadcast finished",
			zap.String("status", string(status)),
			zap.Int("sent", result.SentCount),
			zap.Int("failed", result.FailedCount),
		)
	}
	return status
}

// ListJobs returns the ledger newest first with the campaign-style pagination block.
func (s *BroadcastService) ListJobs(ctx context.Context, page, pageSize int, status string) ([]model.BroadcastJob, map[string]int, error) {
	if status != "" && !model.JobStatus(status).Valid() {
		return nil, nil, appErrors.NewValidation("unknown status %q", status)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.Jobs.List(ctx, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	jobs := make([]model.BroadcastJob, len(ptrs))
	for i, j := range ptrs {
		jobs[i] = *j
	}

	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": (total + pageSize - 1) / pageSize,
	}
	return jobs, pagination, nil
}

// GetJob returns one job with its template and per-store delivery log.
func (s *BroadcastService) GetJob(ctx context.Context, id string) (*model.BroadcastJob, error) {
	job, err := s.Jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	deliveries, err := s.Deliveries.ListByJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load deliveries: %w", err)
	}
	job.Deliveries = deliveries
	return job, nil
}

// validateTargets checks the shared broadcast inputs and returns the store ids without duplicates.
func validateTargets(templateID string, storeIDs []string, selections map[string]string) ([]string, error) {
	if templateID == "" || len(storeIDs) == 0 {
		return nil, appErrors.NewValidation("template_id and store_ids are required")
	}
	if len(selections) == 0 {
		return nil, appErrors.NewValidation("media_selections is required")
	}
	ids := uniqueIDs(storeIDs)
	if len(ids) == 0 {
		return nil, appErrors.NewValidation("template_id and store_ids are required")
	}
	return ids, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
