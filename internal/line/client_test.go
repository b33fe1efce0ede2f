package line

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentFlex struct {
	Type     string          `json:"type"`
	AltText  string          `json:"altText"`
	Contents json.RawMessage `json:"contents"`
}

type sentRequest struct {
	To       string     `json:"to"`
	Messages []sentFlex `json:"messages"`
}

var flexBubble = json.RawMessage(`{"type":"bubble","body":{"type":"box","layout":"vertical","contents":[{"type":"text","text":"hi"}]}}`)

func TestClient_BroadcastToAllSubscribers_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/bot/message/broadcast", r.URL.Path)
		assert.Equal(t, "Bearer store-a-token", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		assert.Equal(t, "job1-store-a", r.Header.Get("X-Line-Retry-Key"))

		bodyBytes, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req sentRequest
		require.NoError(t, json.Unmarshal(bodyBytes, &req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "flex", req.Messages[0].Type)
		assert.Equal(t, DefaultAltText, req.Messages[0].AltText)
		assert.Contains(t, string(req.Messages[0].Contents), `"type":"bubble"`)
		assert.Contains(t, string(req.Messages[0].Contents), `"text":"hi"`)

		w.Header().Set("X-Line-Request-Id", "req-123")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	factory := NewFactory(server.URL, 100, server.Client(), zap.NewNop())
	res, err := factory.ForStore("store-a-token").BroadcastToAllSubscribers(context.Background(), flexBubble, "", WithRetryKey("job1-store-a"))

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, "req-123", res.RequestID)
	assert.Empty(t, res.Reason())
}

func TestClient_PushToUser_SendsRecipientAndAltText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/bot/message/push", r.URL.Path)

		var req sentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "U1234567890", req.To)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "Spring campaign", req.Messages[0].AltText)

		w.Header().Set("X-Line-Request-Id", "push-1")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"sentMessages":[{"id":"1","quoteToken":"q"}]}`))
	}))
	defer server.Close()

	factory := NewFactory(server.URL, 100, server.Client(), zap.NewNop())
	res, err := factory.ForStore("tok").PushToUser(context.Background(), "U1234567890", flexBubble, "Spring campaign")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "push-1", res.RequestID)
}

func TestClient_ProviderRejectionIsResultNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Line-Request-Id", "bad-1")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"A message (messages[0]) in the request body is invalid"}`))
	}))
	defer server.Close()

	factory := NewFactory(server.URL, 100, server.Client(), zap.NewNop())
	res, err := factory.ForStore("tok").BroadcastToAllSubscribers(context.Background(), flexBubble, "")

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, res.Body, "is invalid")
	assert.Equal(t, "LINE API Error: 400", res.Reason())
}

func TestClient_DuplicateRetryKeyCountsAsAccepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Line-Accepted-Request-Id", "first-attempt")
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	factory := NewFactory(server.URL, 100, server.Client(), zap.NewNop())
	res, err := factory.ForStore("tok").BroadcastToAllSubscribers(context.Background(), flexBubble, "", WithRetryKey("k"))

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "first-attempt", res.RequestID)
}

func TestClient_NetworkErrorIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	factory := NewFactory(server.URL, 100, nil, zap.NewNop())
	res, err := factory.ForStore("tok").BroadcastToAllSubscribers(context.Background(), flexBubble, "")

	require.Error(t, err)
	assert.Nil(t, res)
}

func TestClient_InvalidFlexContentsIsError(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	factory := NewFactory(server.URL, 100, server.Client(), zap.NewNop())
	res, err := factory.ForStore("tok").BroadcastToAllSubscribers(context.Background(), json.RawMessage(`not json`), "")

	require.Error(t, err)
	assert.Nil(t, res)
	assert.False(t, called)
}

func TestClient_CancelledContextFailsBeforeSending(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	factory := NewFactory(server.URL, 100, server.Client(), zap.NewNop())
	_, err := factory.ForStore("tok").PushToUser(ctx, "U1", flexBubble, "")

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
