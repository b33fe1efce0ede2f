package line

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/unclebandit/storecast-backend/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.line.me"
	DefaultAltText = "You have a new message"

	// bodies longer than this are truncated in Result.Body
	maxErrorBody = 4096
)

// Channel is a LINE Messaging API client scoped to one store's channel access token.
type Channel interface {
	PushToUser(ctx context.Context, to string, contents json.RawMessage, altText string, opts ...SendOption) (*Result, error)
	BroadcastToAllSubscribers(ctx context.Context, contents json.RawMessage, altText string, opts ...SendOption) (*Result, error)
}

// Result is the provider's answer to one send. A rejected send is a Result with
// Success=false, never an error.
type Result struct {
	Success    bool   `json:"success"`
	RequestID  string `json:"request_id,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Body       string `json:"body,omitempty"`
}

// Reason is the short failure description stored in job error details.
func (r *Result) Reason() string {
	if r.Success {
		return ""
	}
	return fmt.Sprintf("LINE API Error: %d", r.StatusCode)
}

type sendOptions struct {
	retryKey string
}

type SendOption func(*sendOptions)

// WithRetryKey sets X-Line-Retry-Key so a redelivered request is accepted only once by LINE.
func WithRetryKey(key string) SendOption {
	return func(o *sendOptions) { o.retryKey = key }
}

// Factory hands out per-store clients that share one HTTP client and rate limiter.
type Factory struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewFactory(baseURL string, ratePerSec int, httpClient *http.Client, logger *zap.Logger) *Factory {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if ratePerSec <= 0 {
		ratePerSec = 50
	}
	return &Factory{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		logger:     logger.With(zap.String("provider", "line")),
	}
}

// ForStore returns a client bound to accessToken.
func (f *Factory) ForStore(accessToken string) Channel {
	return &Client{factory: f, accessToken: accessToken}
}

// Client wraps the Messaging API SDK for one channel access token.
type Client struct {
	factory     *Factory
	accessToken string
}

func (c *Client) api(ctx context.Context) (*messaging_api.MessagingApiAPI, error) {
	api, err := messaging_api.NewMessagingApiAPI(
		c.accessToken,
		messaging_api.WithHTTPClient(c.factory.httpClient),
		messaging_api.WithEndpoint(c.factory.baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create LINE messaging client: %w", err)
	}
	return api.WithContext(ctx), nil
}

func (c *Client) PushToUser(ctx context.Context, to string, contents json.RawMessage, altText string, opts ...SendOption) (*Result, error) {
	msg, err := newFlexMessage(contents, altText)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, "push", opts, func(api *messaging_api.MessagingApiAPI, retryKey string) (*http.Response, error) {
		res, _, err := api.PushMessageWithHttpInfo(&messaging_api.PushMessageRequest{
			To:       to,
			Messages: []messaging_api.MessageInterface{msg},
		}, retryKey)
		return res, err
	})
}

func (c *Client) BroadcastToAllSubscribers(ctx context.Context, contents json.RawMessage, altText string, opts ...SendOption) (*Result, error) {
	msg, err := newFlexMessage(contents, altText)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, "broadcast", opts, func(api *messaging_api.MessagingApiAPI, retryKey string) (*http.Response, error) {
		res, _, err := api.BroadcastWithHttpInfo(&messaging_api.BroadcastRequest{
			Messages: []messaging_api.MessageInterface{msg},
		}, retryKey)
		return res, err
	})
}

func newFlexMessage(contents json.RawMessage, altText string) (*messaging_api.FlexMessage, error) {
	if altText == "" {
		altText = DefaultAltText
	}
	container, err := messaging_api.UnmarshalFlexContainer(contents)
	if err != nil {
		return nil, fmt.Errorf("decode flex contents: %w", err)
	}
	return &messaging_api.FlexMessage{AltText: altText, Contents: container}, nil
}

type sendFunc func(api *messaging_api.MessagingApiAPI, retryKey string) (*http.Response, error)

func (c *Client) send(ctx context.Context, operation string, opts []SendOption, do sendFunc) (*Result, error) {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	api, err := c.api(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.factory.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for LINE rate limiter: %w", err)
	}

	start := time.Now()
	httpResp, err := do(api, o.retryKey)
	if httpResp == nil {
		metrics.LineRequestDuration.WithLabelValues(operation, "error").Observe(time.Since(start).Seconds())
		if err == nil {
			err = errors.New("no response")
		}
		return nil, fmt.Errorf("send LINE %s request: %w", operation, err)
	}
	defer httpResp.Body.Close()
	metrics.LineRequestDuration.WithLabelValues(operation, strconv.Itoa(httpResp.StatusCode)).Observe(time.Since(start).Seconds())

	requestID := httpResp.Header.Get("X-Line-Request-Id")

	switch {
	case httpResp.StatusCode >= 200 && httpResp.StatusCode < 300:
		// a 2xx whose body the SDK could not decode is still an accepted send
		if err != nil {
			c.factory.logger.Debug("LINE response body not decoded", zap.String("operation", operation), zap.Error(err))
		}
		c.factory.logger.Debug("LINE send accepted", zap.String("operation", operation), zap.String("request_id", requestID))
		return &Result{Success: true, RequestID: requestID, StatusCode: httpResp.StatusCode}, nil
	case httpResp.StatusCode == http.StatusConflict && o.retryKey != "":
		// the retry key was already accepted by an earlier attempt
		accepted := httpResp.Header.Get("X-Line-Accepted-Request-Id")
		c.factory.logger.Info("LINE send already accepted for retry key", zap.String("operation", operation), zap.String("accepted_request_id", accepted))
		return &Result{Success: true, RequestID: accepted, StatusCode: httpResp.StatusCode}, nil
	default:
		respBody, rerr := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		if rerr != nil {
			return nil, fmt.Errorf("read LINE %s response (status %d): %w", operation, httpResp.StatusCode, rerr)
		}
		c.factory.logger.Warn("LINE send rejected",
			zap.String("operation", operation),
			zap.Int("status_code", httpResp.StatusCode),
			zap.String("request_id", requestID),
			zap.ByteString("body", respBody),
		)
		return &Result{
			Success:    false,
			RequestID:  requestID,
			StatusCode: httpResp.StatusCode,
			Body:       string(respBody),
		}, nil
	}
}
