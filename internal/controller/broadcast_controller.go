package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/storecast-backend/internal/errors"
	"github.com/unclebandit/storecast-backend/internal/metrics"
	"github.com/unclebandit/storecast-backend/internal/model"
	"github.com/unclebandit/storecast-backend/internal/response"
	"github.com/unclebandit/storecast-backend/internal/scheduler"
	"github.com/unclebandit/storecast-backend/internal/service"
	"github.com/unclebandit/storecast-backend/internal/validation"
)

const MessageIDHeader = scheduler.MessageIDHeader

type Broadcaster interface {
	SendNow(ctx context.Context, req service.CreateBroadcastRequest) (*service.BroadcastResult, error)
	SendTest(ctx context.Context, req service.TestBroadcastRequest) (*service.TestBroadcastResult, error)
	RunScheduled(ctx context.Context, p service.ExecutePayload) (*service.ExecuteResult, error)
	ListJobs(ctx context.Context, page, pageSize int, status string) ([]model.BroadcastJob, map[string]int, error)
	GetJob(ctx context.Context, id string) (*model.BroadcastJob, error)
}

type Scheduler interface {
	Schedule(ctx context.Context, req service.ScheduleBroadcastRequest) (*service.ScheduleResult, error)
}

// CallbackDeduper drops scheduler redeliveries by message id.
type CallbackDeduper interface {
	Claim(ctx context.Context, messageID string) (bool, error)
	Release(ctx context.Context, messageID string) error
}

type BroadcastController struct {
	Broadcasts Broadcaster
	Scheduling Scheduler
	Deduper    CallbackDeduper // optional
	Validate   *validator.Validate
	Logger     *zap.Logger
}

func NewBroadcastController(b Broadcaster, s Scheduler, d CallbackDeduper, logger *zap.Logger) *BroadcastController {
	return &BroadcastController{
		Broadcasts: b,
		Scheduling: s,
		Deduper:    d,
		Validate:   validation.New(),
		Logger:     logger,
	}
}

// decode reads the JSON body into dst and validates it. It writes the 400 itself.
func (c *BroadcastController) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	if err := c.Validate.StructCtx(r.Context(), dst); err != nil {
		response.FromError(w, c.Logger, validation.ToAppError(err))
		return false
	}
	return true
}

// Create runs an immediate broadcast and answers with every store's outcome.
func (c *BroadcastController) Create(w http.ResponseWriter, r *http.Request) {
	var body service.CreateBroadcastRequest
	if !c.decode(w, r, &body) {
		return
	}

	result, err := c.Broadcasts.SendNow(r.Context(), body)
	if err != nil {
		response.FromError(w, c.Logger, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"job_id":       result.JobID,
		"status":       result.Status,
		"sent_count":   result.SentCount,
		"failed_count": result.FailedCount,
		"results":      result.Results,
	})
}

func (c *BroadcastController) Test(w http.ResponseWriter, r *http.Request) {
	var body service.TestBroadcastRequest
	if !c.decode(w, r, &body) {
		return
	}

	result, err := c.Broadcasts.SendTest(r.Context(), body)
	if err != nil {
		response.FromError(w, c.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

func (c *BroadcastController) Schedule(w http.ResponseWriter, r *http.Request) {
	var body service.ScheduleBroadcastRequest
	if !c.decode(w, r, &body) {
		return
	}

	result, err := c.Scheduling.Schedule(r.Context(), body)
	if err != nil {
		response.FromError(w, c.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// ExecuteScheduled is the scheduler callback. It sits behind the signature middleware.
func (c *BroadcastController) ExecuteScheduled(w http.ResponseWriter, r *http.Request) {
	var body service.ExecutePayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := c.Validate.StructCtx(r.Context(), body); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", validation.ToAppError(err).Error())
		return
	}

	messageID := r.Header.Get(MessageIDHeader)
	log := c.Logger.With(zap.String("job_id", body.JobID), zap.String("message_id", messageID))

	if c.Deduper != nil && messageID != "" {
		first, err := c.Deduper.Claim(r.Context(), messageID)
		switch {
		case err != nil:
			// the ledger transition still guards the job
			log.Warn("callback dedupe unavailable", zap.Error(err))
		case !first:
			metrics.CallbacksSkipped.WithLabelValues("redelivered").Inc()
			log.Info("duplicate callback dropped")
			response.JSON(w, http.StatusOK, service.ExecuteResult{Success: true, Skipped: true, JobID: body.JobID})
			return
		}
	}

	result, err := c.Broadcasts.RunScheduled(r.Context(), body)
	if err != nil {
		if c.Deduper != nil && messageID != "" {
			if rerr := c.Deduper.Release(r.Context(), messageID); rerr != nil {
				log.Warn("failed to release callback claim", zap.Error(rerr))
			}
		}
		response.FromError(w, c.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// ListJobs returns the job ledger, newest first.
func (c *BroadcastController) ListJobs(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	jobs, pagination, err := c.Broadcasts.ListJobs(r.Context(), page, pageSize, status)
	if err != nil {
		response.FromError(w, c.Logger, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"data":       jobs,
		"pagination": pagination,
	})
}

func (c *BroadcastController) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := c.Broadcasts.GetJob(r.Context(), id)
	if err != nil {
		if appErrors.IsNotFound(err) {
			response.Error(w, http.StatusNotFound, "Broadcast job not found", nil)
			return
		}
		response.FromError(w, c.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, job)
}
