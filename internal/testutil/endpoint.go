package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Response is one canned answer from a CompletionServer.
type Response struct {
	Status int
	Body   string
}

// Completion builds a well-formed completion body with content as the first choice.
func Completion(content string) Response {
	payload, _ := json.Marshal(map[string]any{
		"id": "gen-test",
		"choices": []map[string]any{{
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return Response{Status: http.StatusOK, Body: string(payload)}
}

// RecordedRequest captures one request received by a CompletionServer.
type RecordedRequest struct {
	Authorization string
	ContentType   string
	Model         string
	Messages      []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
}

// CompletionServer is an httptest server speaking the chat completion wire format.
type CompletionServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses []Response
	requests  []RecordedRequest
}

// NewCompletionServer starts a server answering with responses in order;
// the last response repeats once the queue is exhausted.
func NewCompletionServer(t testing.TB, responses ...Response) *CompletionServer {
	t.Helper()

	cs := &CompletionServer{responses: responses}
	cs.Server = httptest.NewServer(http.HandlerFunc(cs.handle))
	t.Cleanup(cs.Close)
	return cs
}

// URL returns the completion endpoint address.
func (cs *CompletionServer) URL() string {
	return cs.Server.URL + "/api/v1/chat/completions"
}

func (cs *CompletionServer) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)

	rec := RecordedRequest{
		Authorization: r.Header.Get("Authorization"),
		ContentType:   r.Header.Get("Content-Type"),
	}
	_ = json.Unmarshal(raw, &rec)

	cs.mu.Lock()
	cs.requests = append(cs.requests, rec)
	resp := Response{Status: http.StatusInternalServerError, Body: "no scripted response"}
	if len(cs.responses) > 0 {
		idx := len(cs.requests) - 1
		if idx >= len(cs.responses) {
			idx = len(cs.responses) - 1
		}
		resp = cs.responses[idx]
	}
	cs.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	fmt.Fprint(w, resp.Body)
}

// Requests returns every request received so far.
func (cs *CompletionServer) Requests() []RecordedRequest {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]RecordedRequest(nil), cs.requests...)
}
