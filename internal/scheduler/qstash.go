package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/upstash/qstash-go"
	"go.uber.org/zap"
)

// QStashPublisher registers callbacks with Upstash QStash.
type QStashPublisher struct {
	client *qstash.Client
	logger *zap.Logger
}

func NewQStashPublisher(baseURL, token string, httpClient *http.Client, logger *zap.Logger) *QStashPublisher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &QStashPublisher{
		client: qstash.NewClientWith(qstash.Options{
			Url:    strings.TrimRight(baseURL, "/"),
			Token:  token,
			Client: httpClient,
		}),
		logger: logger.With(zap.String("scheduler", "qstash")),
	}
}

func (p *QStashPublisher) Driver() string { return "qstash" }

func (p *QStashPublisher) Publish(ctx context.Context, req PublishRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var body map[string]any
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return "", fmt.Errorf("decode callback body: %w", err)
	}

	res, err := p.client.PublishJSON(qstash.PublishJSONOptions{
		Url:             req.CallbackURL,
		Body:            body,
		NotBefore:       req.NotBefore.Unix(),
		DeduplicationId: req.DeduplicationID,
	})
	if err != nil {
		p.logger.Warn("QStash publish rejected", zap.String("callback_url", req.CallbackURL), zap.Error(err))
		return "", fmt.Errorf("QStash publish: %w", err)
	}
	if res.MessageId == "" {
		return "", errors.New("QStash response carried no messageId")
	}

	p.logger.Info("callback registered",
		zap.String("message_id", res.MessageId),
		zap.Time("not_before", req.NotBefore),
	)
	return res.MessageId, nil
}

var _ Publisher = (*QStashPublisher)(nil)
