package scheduler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQStashPublisher_Publish(t *testing.T) {
	notBefore := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	body := []byte(`{"job_id":"job-1"}`)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v2/publish/"))
		assert.Contains(t, r.URL.Path, "app.example.com/api/broadcast/execute")
		assert.Equal(t, "Bearer qstash-token", r.Header.Get("Authorization"))
		assert.Equal(t, "1893553445", r.Header.Get("Upstash-Not-Before"))
		assert.Equal(t, "job-1", r.Header.Get("Upstash-Deduplication-Id"))

		got, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, string(body), string(got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messageId":"msg_123"}`))
	}))
	defer server.Close()

	p := NewQStashPublisher(server.URL, "qstash-token", server.Client(), zap.NewNop())
	id, err := p.Publish(context.Background(), PublishRequest{
		CallbackURL:     "https://app.example.com/api/broadcast/execute",
		Body:            body,
		NotBefore:       notBefore,
		DeduplicationID: "job-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "msg_123", id)
	assert.Equal(t, "qstash", p.Driver())
}

func TestQStashPublisher_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer server.Close()

	p := NewQStashPublisher(server.URL, "bad", server.Client(), zap.NewNop())
	_, err := p.Publish(context.Background(), PublishRequest{CallbackURL: "https://x/cb", Body: []byte(`{}`), NotBefore: time.Now()})

	require.Error(t, err)
}

func TestQStashPublisher_BodyMustBeJSONObject(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	p := NewQStashPublisher(server.URL, "tok", server.Client(), zap.NewNop())
	_, err := p.Publish(context.Background(), PublishRequest{CallbackURL: "https://x/cb", Body: []byte(`[1,2]`), NotBefore: time.Now()})

	require.Error(t, err)
	assert.False(t, called)
}
