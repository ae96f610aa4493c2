package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		Endpoint: srv.URL + "/chat/completions",
		APIKey:   "secret-token",
		Model:    "mistralai/mixtral-8x7b-instruct",
	})
	require.NoError(t, err)
	return client
}

func TestGenerateSendsTranscript(t *testing.T) {
	var got completionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"hello there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
	})

	msg, err := client.Generate(context.Background(), []*schema.Message{
		schema.UserMessage("hi"),
		schema.AssistantMessage("hey", nil),
		schema.UserMessage("how are you"),
	})
	require.NoError(t, err)

	assert.Equal(t, schema.Assistant, msg.Role)
	assert.Equal(t, "hello there", msg.Content)
	require.NotNil(t, msg.ResponseMeta)
	assert.Equal(t, "stop", msg.ResponseMeta.FinishReason)
	require.NotNil(t, msg.ResponseMeta.Usage)
	assert.Equal(t, 5, msg.ResponseMeta.Usage.TotalTokens)

	assert.Equal(t, "mistralai/mixtral-8x7b-instruct", got.Model)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, wireMessage{Role: "user", Content: "hi"}, got.Messages[0])
	assert.Equal(t, wireMessage{Role: "assistant", Content: "hey"}, got.Messages[1])
	assert.Equal(t, wireMessage{Role: "user", Content: "how are you"}, got.Messages[2])
}

func TestGenerateHonorsModelOption(t *testing.T) {
	var got completionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	})

	_, err := client.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")},
		model.WithModel("other/model"), model.WithTemperature(0.2))
	require.NoError(t, err)
	assert.Equal(t, "other/model", got.Model)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 0.0001)
}

func TestGenerateNon2xxCarriesBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "upstream exploded")
	})

	_, err := client.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)

	callErr, ok := AsCallError(err)
	require.True(t, ok)
	assert.Equal(t, OpStatus, callErr.Op)
	assert.Equal(t, http.StatusInternalServerError, callErr.StatusCode)
	assert.Equal(t, "upstream exploded", callErr.Body)
	assert.Contains(t, callErr.Error(), "500")
}

func TestGenerateErrorObjectMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"No auth credentials found","code":401}}`)
	})

	_, err := client.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	callErr, ok := AsCallError(err)
	require.True(t, ok)
	assert.Contains(t, callErr.Error(), "No auth credentials found")
	assert.Contains(t, callErr.Body, `"code":401`)
}

func TestGenerateMissingChoicesIsShapeError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"gen-1","object":"chat.completion"}`)
	})

	_, err := client.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	callErr, ok := AsCallError(err)
	require.True(t, ok)
	assert.Equal(t, OpShape, callErr.Op)
	assert.True(t, errors.Is(err, ErrNoChoices))
	assert.Contains(t, callErr.Body, "gen-1")
}

func TestGenerateMissingContentIsShapeError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant"}}]}`)
	})

	_, err := client.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestGenerateMalformedJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>bad gateway</html>`)
	})

	_, err := client.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	callErr, ok := AsCallError(err)
	require.True(t, ok)
	assert.Equal(t, OpDecode, callErr.Op)
	assert.Equal(t, "<html>bad gateway</html>", callErr.Body)
}

func TestGenerateTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	client, err := NewClient(Config{Endpoint: endpoint, APIKey: "k", Model: "m"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	callErr, ok := AsCallError(err)
	require.True(t, ok)
	assert.Equal(t, OpRequest, callErr.Op)
	assert.Empty(t, callErr.Body)
}

func TestStreamYieldsSingleChunk(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"streamed"}}]}`)
	})

	stream, err := client.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "streamed", chunk.Content)

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestNewClientValidates(t *testing.T) {
	_, err := NewClient(Config{Model: "m", APIKey: "k"})
	assert.Error(t, err)
	_, err = NewClient(Config{Endpoint: "http://x", APIKey: "k"})
	assert.Error(t, err)
	_, err = NewClient(Config{Endpoint: "http://x", Model: "m"})
	assert.Error(t, err)
}
