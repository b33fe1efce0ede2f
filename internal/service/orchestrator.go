package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/storecast-backend/internal/errors"
	"github.com/unclebandit/storecast-backend/internal/line"
	"github.com/unclebandit/storecast-backend/internal/metrics"
	"github.com/unclebandit/storecast-backend/internal/model"
)

// Per-store failure reasons written to results and error details.
const (
	ReasonNoMedia         = "No media selected"
	ReasonNoMediaURL      = "Media URL not found"
	ReasonRenderFailed    = "Template render failed"
	ReasonUnexpected      = "Unexpected error"
	ReasonStoreMissing    = "Store not found"
	ReasonTemplateMissing = "Template not found"
)

type ChannelFactory interface {
	ForStore(accessToken string) line.Channel
}

type MediaURLFinder interface {
	Find(ctx context.Context, storeID, mediaID string) (*model.StoreMediaURL, error)
}

type DeliveryRecorder interface {
	Record(ctx context.Context, d *model.Delivery) error
}

type JobToucher interface {
	Touch(ctx context.Context, id string) error
}

// StoreResult is one store's outcome in a fan-out pass.
type StoreResult struct {
	StoreID   string `json:"store_id"`
	StoreName string `json:"store_name,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type FanoutRequest struct {
	JobID      string
	Template   *model.Template
	Stores     []*model.Store
	Selections map[string]string // store id -> media id
	// Completed holds outcomes already logged for this job; those stores are not sent again.
	Completed map[string]StoreResult
}

type FanoutResult struct {
	SentCount    int
	FailedCount  int
	Results      []StoreResult
	ErrorDetails map[string]string
}

func (r *FanoutResult) add(sr StoreResult) {
	r.Results = append(r.Results, sr)
	if sr.Success {
		r.SentCount++
		return
	}
	r.FailedCount++
	if r.ErrorDetails == nil {
		r.ErrorDetails = map[string]string{}
	}
	r.ErrorDetails[sr.StoreID] = sr.Error
}

// Orchestrator renders a template per store and broadcasts it on each store's own channel.
type Orchestrator struct {
	Channels   ChannelFactory
	MediaURLs  MediaURLFinder
	Deliveries DeliveryRecorder // optional
	// Jobs, when set, gets its started_at refreshed after every store.
	Jobs   JobToucher
	Logger *zap.Logger
}

// Execute processes the stores one at a time and never stops early: every store
// in req.Stores ends up with exactly one result.
func (o *Orchestrator) Execute(ctx context.Context, req FanoutRequest) *FanoutResult {
	res := &FanoutResult{Results: make([]StoreResult, 0, len(req.Stores))}
	for _, store := range req.Stores {
		if prev, ok := req.Completed[store.ID]; ok {
			res.add(prev)
			continue
		}
		sr := o.processStore(ctx, req, store)
		o.record(ctx, req.JobID, sr)
		o.heartbeat(ctx, req.JobID)
		res.add(sr)
	}
	return res
}

func (o *Orchestrator) processStore(ctx context.Context, req FanoutRequest, store *model.Store) (sr StoreResult) {
	log := o.Logger.With(zap.String("job_id", req.JobID), zap.String("store_id", store.ID))
	sr = StoreResult{StoreID: store.ID, StoreName: store.Name}

	defer func() {
		if p := recover(); p != nil {
			log.Error("panic while processing store", zap.Any("panic", p))
			sr = o.fail(store, ReasonUnexpected, "", "unexpected")
		}
	}()

	mediaID := req.Selections[store.ID]
	if mediaID == "" {
		return o.fail(store, ReasonNoMedia, "", "no_media")
	}

	binding, err := o.MediaURLs.Find(ctx, store.ID, mediaID)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return o.fail(store, ReasonNoMediaURL, "", "no_url")
		}
		log.Error("failed to look up media URL", zap.String("media_id", mediaID), zap.Error(err))
		return o.fail(store, ReasonUnexpected, "", "unexpected")
	}

	payload, err := RenderFlexTemplate(req.Template.JSONContent, map[string]string{
		VarMediaURL:  binding.URL,
		VarStoreName: store.Name,
	})
	if err != nil {
		log.Warn("failed to render template", zap.String("template_id", req.Template.ID), zap.Error(err))
		return o.fail(store, ReasonRenderFailed, err.Error(), "render_error")
	}

	var opts []line.SendOption
	if req.JobID != "" {
		opts = append(opts, line.WithRetryKey(retryKey(req.JobID, store.ID)))
	}
	send, err := o.Channels.ForStore(store.LineChannelAccessToken).BroadcastToAllSubscribers(ctx, payload, "", opts...)
	if err != nil {
		log.Error("LINE broadcast failed", zap.Error(err))
		return o.fail(store, ReasonUnexpected, err.Error(), "unexpected")
	}
	if !send.Success {
		sr = o.fail(store, send.Reason(), send.Body, "provider_error")
		sr.RequestID = send.RequestID
		return sr
	}

	metrics.StoreSends.WithLabelValues("broadcast", "success").Inc()
	log.Info("broadcast sent", zap.String("request_id", send.RequestID))
	sr.Success = true
	sr.RequestID = send.RequestID
	return sr
}

func (o *Orchestrator) fail(store *model.Store, reason, details, outcome string) StoreResult {
	metrics.StoreSends.WithLabelValues("broadcast", outcome).Inc()
	return StoreResult{
		StoreID:   store.ID,
		StoreName: store.Name,
		Success:   false,
		Error:     reason,
		Details:   details,
	}
}

// record appends the outcome to the delivery log. A failed write is logged only:
// the message has already gone out.
func (o *Orchestrator) record(ctx context.Context, jobID string, sr StoreResult) {
	if o.Deliveries == nil || jobID == "" {
		return
	}
	d := &model.Delivery{
		JobID:     jobID,
		StoreID:   sr.StoreID,
		Success:   sr.Success,
		Error:     sr.Error,
		RequestID: sr.RequestID,
	}
	if err := o.Deliveries.Record(ctx, d); err != nil {
		o.Logger.Warn("failed to record delivery",
			zap.String("job_id", jobID), zap.String("store_id", sr.StoreID), zap.Error(err))
	}
}

func (o *Orchestrator) heartbeat(ctx context.Context, jobID string) {
	if o.Jobs == nil || jobID == "" {
		return
	}
	if err := o.Jobs.Touch(ctx, jobID); err != nil {
		o.Logger.Warn("failed to refresh job heartbeat", zap.String("job_id", jobID), zap.Error(err))
	}
}

// retryKey is stable per (job, store) so a resumed or redelivered send is accepted once by LINE.
func retryKey(jobID, storeID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("broadcast:%s:%s", jobID, storeID))).String()
}
