package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/storecast-backend/internal/errors"
	"github.com/unclebandit/storecast-backend/internal/line"
	"github.com/unclebandit/storecast-backend/internal/model"
	"github.com/unclebandit/storecast-backend/internal/scheduler"
)

// In-memory repositories

type MockStoreRepo struct {
	stores []*model.Store
}

func (m *MockStoreRepo) List(ctx context.Context) ([]*model.Store, error) { return m.stores, nil }

func (m *MockStoreRepo) GetByID(ctx context.Context, id string) (*model.Store, error) {
	for _, s := range m.stores {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, appErrors.NewNotFound("store", id)
}

func (m *MockStoreRepo) GetByIDs(ctx context.Context, ids []string) ([]*model.Store, error) {
	out := []*model.Store{}
	for _, id := range ids {
		if s, err := m.GetByID(ctx, id); err == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockStoreRepo) Create(ctx context.Context, s *model.Store) error {
	s.ID = uuid.NewString()
	m.stores = append(m.stores, s)
	return nil
}

func (m *MockStoreRepo) Update(ctx context.Context, id string, u model.StoreUpdate) (*model.Store, error) {
	if u.Empty() {
		return nil, appErrors.NewValidation("no fields to update")
	}
	s, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.LineChannelAccessToken != nil {
		s.LineChannelAccessToken = *u.LineChannelAccessToken
	}
	return s, nil
}

func (m *MockStoreRepo) Delete(ctx context.Context, id string) error {
	for i, s := range m.stores {
		if s.ID == id {
			m.stores = append(m.stores[:i], m.stores[i+1:]...)
			return nil
		}
	}
	return appErrors.NewNotFound("store", id)
}

func (m *MockStoreRepo) Count(ctx context.Context) (int, error) { return len(m.stores), nil }

type MockTemplateRepo struct {
	templates map[string]*model.Template
	created   []*model.Template
}

func (m *MockTemplateRepo) List(ctx context.Context) ([]*model.Template, error) {
	out := []*model.Template{}
	for _, t := range m.templates {
		out = append(out, t)
	}
	return out, nil
}

func (m *MockTemplateRepo) GetByID(ctx context.Context, id string) (*model.Template, error) {
	if t, ok := m.templates[id]; ok {
		return t, nil
	}
	return nil, appErrors.NewNotFound("template", id)
}

func (m *MockTemplateRepo) Create(ctx context.Context, t *model.Template) error {
	t.ID = uuid.NewString()
	m.created = append(m.created, t)
	return nil
}

func (m *MockTemplateRepo) Update(ctx context.Context, id string, u model.TemplateUpdate) (*model.Template, error) {
	t, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(u.JSONContent) > 0 {
		t.JSONContent = u.JSONContent
	}
	return t, nil
}

func (m *MockTemplateRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.templates[id]; !ok {
		return appErrors.NewNotFound("template", id)
	}
	delete(m.templates, id)
	return nil
}

// MockMediaURLRepo keys bindings by store id then media id.
type MockMediaURLRepo struct {
	urls map[string]map[string]string
	err  error
}

func (m *MockMediaURLRepo) List(ctx context.Context, storeID string) ([]*model.StoreMediaURL, error) {
	return nil, nil
}

func (m *MockMediaURLRepo) Find(ctx context.Context, storeID, mediaID string) (*model.StoreMediaURL, error) {
	if m.err != nil {
		return nil, m.err
	}
	if url, ok := m.urls[storeID][mediaID]; ok {
		return &model.StoreMediaURL{StoreID: storeID, MediaID: mediaID, URL: url}, nil
	}
	return nil, appErrors.NewNotFound("media URL", "")
}

func (m *MockMediaURLRepo) Upsert(ctx context.Context, storeID, mediaID, url string) (*model.StoreMediaURL, error) {
	if m.urls == nil {
		m.urls = map[string]map[string]string{}
	}
	if m.urls[storeID] == nil {
		m.urls[storeID] = map[string]string{}
	}
	m.urls[storeID][mediaID] = url
	return &model.StoreMediaURL{ID: storeID + "/" + mediaID, StoreID: storeID, MediaID: mediaID, URL: url}, nil
}

func (m *MockMediaURLRepo) Delete(ctx context.Context, id string) error { return nil }

// MockJobRepo enforces the ledger transitions the SQL repository enforces.
type MockJobRepo struct {
	mu        sync.Mutex
	jobs      map[string]*model.BroadcastJob
	createErr error
	stalled   []string
	touches   map[string]int
}

func newMockJobRepo() *MockJobRepo {
	return &MockJobRepo{jobs: map[string]*model.BroadcastJob{}}
}

func (m *MockJobRepo) Create(ctx context.Context, job *model.BroadcastJob) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.CreatedAt = time.Now()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MockJobRepo) GetByID(ctx context.Context, id string) (*model.BroadcastJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, appErrors.NewNotFound("broadcast job", id)
	}
	cp := *j
	return &cp, nil
}

func (m *MockJobRepo) List(ctx context.Context, offset, limit int, status string) ([]*model.BroadcastJob, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []*model.BroadcastJob{}
	for _, j := range m.jobs {
		if status == "" || string(j.Status) == status {
			all = append(all, j)
		}
	}
	sort.Slice(all, func(a, b int) bool { return all[a].ID > all[b].ID })
	if offset >= len(all) {
		return []*model.BroadcastJob{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *MockJobRepo) TransitionStatus(ctx context.Context, id string, from, to model.JobStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != from {
		return false, nil
	}
	j.Status = to
	return true, nil
}

func (m *MockJobRepo) Complete(ctx context.Context, id string, o model.JobOutcome) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status.IsTerminal() {
		return false, nil
	}
	j.Status = o.Status
	j.SentCount = o.SentCount
	j.FailedCount = o.FailedCount
	j.ErrorDetails = o.ErrorDetails
	at := o.CompletedAt
	j.CompletedAt = &at
	return true, nil
}

func (m *MockJobRepo) SetSchedulerMessageID(ctx context.Context, id, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return appErrors.NewNotFound("broadcast job", id)
	}
	j.SchedulerMessageID = &messageID
	return nil
}

func (m *MockJobRepo) ClaimStalled(ctx context.Context, olderThan time.Time, limit int) ([]*model.BroadcastJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.BroadcastJob{}
	for _, id := range m.stalled {
		if j, ok := m.jobs[id]; ok && j.Status == model.JobSending {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockJobRepo) Touch(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok && j.Status == model.JobSending {
		if m.touches == nil {
			m.touches = map[string]int{}
		}
		m.touches[id]++
	}
	return nil
}

func (m *MockJobRepo) touchCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touches[id]
}

func (m *MockJobRepo) job(id string) *model.BroadcastJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.jobs[id]
	return &cp
}

type MockDeliveryRepo struct {
	mu         sync.Mutex
	deliveries []model.Delivery
}

func (m *MockDeliveryRepo) Record(ctx context.Context, d *model.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.deliveries {
		if existing.JobID == d.JobID && existing.StoreID == d.StoreID {
			return nil
		}
	}
	d.ID = len(m.deliveries) + 1
	m.deliveries = append(m.deliveries, *d)
	return nil
}

func (m *MockDeliveryRepo) ListByJob(ctx context.Context, jobID string) ([]model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Delivery{}
	for _, d := range m.deliveries {
		if d.JobID == jobID {
			out = append(out, d)
		}
	}
	return out, nil
}

// LINE fakes

type sentMessage struct {
	Token    string
	Mode     string
	To       string
	AltText  string
	Contents json.RawMessage
}

// MockChannels answers per access token: a status code, a network error or a panic.
// Like the real client it fails fast once ctx is done.
type MockChannels struct {
	mu        sync.Mutex
	sent      []sentMessage
	statuses  map[string]int
	errs      map[string]error
	panics    map[string]bool
	afterSend func()
}

func (m *MockChannels) ForStore(token string) line.Channel {
	return &mockChannel{parent: m, token: token}
}

func (m *MockChannels) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

type mockChannel struct {
	parent *MockChannels
	token  string
}

func (c *mockChannel) send(ctx context.Context, mode, to string, contents json.RawMessage, altText string) (*line.Result, error) {
	m := c.parent
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("wait for LINE rate limiter: %w", err)
	}
	if m.afterSend != nil {
		defer m.afterSend()
	}
	if m.panics[c.token] {
		panic("channel exploded")
	}
	if err := m.errs[c.token]; err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sent = append(m.sent, sentMessage{Token: c.token, Mode: mode, To: to, AltText: altText, Contents: contents})
	m.mu.Unlock()

	if code, ok := m.statuses[c.token]; ok && code >= 300 {
		return &line.Result{StatusCode: code, Body: `{"message":"rejected"}`}, nil
	}
	return &line.Result{Success: true, StatusCode: 200, RequestID: "req-" + c.token}, nil
}

func (c *mockChannel) PushToUser(ctx context.Context, to string, contents json.RawMessage, altText string, opts ...line.SendOption) (*line.Result, error) {
	return c.send(ctx, "push", to, contents, altText)
}

func (c *mockChannel) BroadcastToAllSubscribers(ctx context.Context, contents json.RawMessage, altText string, opts ...line.SendOption) (*line.Result, error) {
	return c.send(ctx, "broadcast", "", contents, altText)
}

// Scheduler fake

type MockPublisher struct {
	requests []scheduler.PublishRequest
	err      error
}

func (m *MockPublisher) Publish(ctx context.Context, req scheduler.PublishRequest) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.requests = append(m.requests, req)
	return "msg-" + req.DeduplicationID, nil
}

func (m *MockPublisher) Driver() string { return "mock" }

var errNetwork = errors.New("dial tcp: connection refused")
