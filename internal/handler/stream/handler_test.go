package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mbti-relay/backend/internal/model/personality"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/mbti-relay/backend/internal/service/chat"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/classify"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/relay"
	"github.com/zhouzirui/mbti-relay/backend/internal/testutil"
)

func setup(t *testing.T, replies ...testutil.Reply) (*chi.Mux, *chatservice.Service) {
	t.Helper()
	fake := testutil.NewChatModel(replies...)
	aiSvc, err := ai.NewService(fake)
	if err != nil {
		t.Fatalf("ai.NewService err: %v", err)
	}
	classifier, err := classify.NewService(context.Background(), fake, classify.Config{Enabled: true, Threshold: 1})
	if err != nil {
		t.Fatalf("classify.NewService err: %v", err)
	}

	sessions := chatservice.NewService()
	r := chi.NewRouter()
	New(sessions, relay.New(aiSvc, classifier, personality.NewMemoryStore(personality.Seed()))).RegisterRoutes(r, nil)
	return r, sessions
}

func readEvents(t *testing.T, body string) []StreamResponse {
	t.Helper()
	var events []StreamResponse
	var name string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			name = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev StreamResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event %q: %v", line, err)
		}
		if ev.Event != name {
			t.Fatalf("event line %q does not match payload %q", name, ev.Event)
		}
		events = append(events, ev)
	}
	return events
}

func TestStreamEmitsExchangeEvents(t *testing.T) {
	r, sessions := setup(t,
		testutil.Text("ENFP - sociable and curious"),
		testutil.Reply{Chunks: []string{"Nice ", "to meet you"}},
	)
	session, _ := sessions.CreateSession(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/stream/"+session.ID+"?message="+url.QueryEscape("I like parties"), nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	events := readEvents(t, resp.Body.String())

	var names []string
	for _, ev := range events {
		names = append(names, ev.Event)
	}
	want := "start,user,verdict,delta,delta,message,end"
	if strings.Join(names, ",") != want {
		t.Fatalf("unexpected events %v", names)
	}
	if events[2].Verdict == nil || events[2].Verdict.Code != "ENFP" {
		t.Fatalf("unexpected verdict event %+v", events[2])
	}
	if events[5].Turn == nil || events[5].Turn.Content != "Nice to meet you" {
		t.Fatalf("unexpected message event %+v", events[5])
	}
	if session.Len() != 2 {
		t.Fatalf("expected 2 turns, got %d", session.Len())
	}
}

func TestStreamRequiresMessage(t *testing.T) {
	r, sessions := setup(t)
	session, _ := sessions.CreateSession(context.Background())

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/stream/"+session.ID, nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestStreamUnknownSession(t *testing.T) {
	r, _ := setup(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/stream/missing?message=hi", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestStreamSurvivesClientDisconnect(t *testing.T) {
	r, sessions := setup(t,
		testutil.Text("INTP - curious"),
		testutil.Text("still here"),
	)
	session, _ := sessions.CreateSession(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/stream/"+session.ID+"?message=hi", nil).WithContext(ctx)
	r.ServeHTTP(httptest.NewRecorder(), req)

	turns := session.Turns()
	if len(turns) != 2 || turns[1].Content != "still here" {
		t.Fatalf("expected the reply to be recorded, got %+v", turns)
	}
	if raw, ok := session.Verdict(); !ok || raw != "INTP - curious" {
		t.Fatalf("expected verdict to be recorded, got %q (ok=%v)", raw, ok)
	}
}
