package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/mbti-relay/backend/internal/model/personality"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/mbti-relay/backend/internal/service/chat"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/classify"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/relay"
	"github.com/zhouzirui/mbti-relay/backend/internal/testutil"
)

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func setup(t *testing.T, limiter Limiter, replies ...testutil.Reply) (*httptest.Server, *chatservice.Service) {
	t.Helper()
	fake := testutil.NewChatModel(replies...)
	aiSvc, err := ai.NewService(fake)
	if err != nil {
		t.Fatalf("ai.NewService err: %v", err)
	}
	classifier, err := classify.NewService(context.Background(), fake, classify.Config{Enabled: true, Threshold: 3})
	if err != nil {
		t.Fatalf("classify.NewService err: %v", err)
	}

	sessions := chatservice.NewService()
	handler := New(sessions, relay.New(aiSvc, classifier, personality.NewMemoryStore(personality.Seed())), nil)
	if limiter != nil {
		handler.SetLimiter(limiter)
	}

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, sessions
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type received struct {
	Type string      `json:"type"`
	Raw  interface{} `json:"data"`
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) []received {
	t.Helper()
	var seen []received
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg received
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read err after %v: %v", seen, err)
		}
		seen = append(seen, msg)
		if msg.Type == msgType {
			return seen
		}
	}
}

func TestWebSocketExchange(t *testing.T) {
	srv, sessions := setup(t, nil, testutil.Text("hello from the model"))
	session, _ := sessions.CreateSession(context.Background())
	conn := dial(t, srv, session.ID)

	readUntil(t, conn, "transcript")

	if err := conn.WriteJSON(map[string]interface{}{"type": "message", "data": map[string]string{"text": "hi"}}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	msgs := readUntil(t, conn, "busy")
	if msgs[len(msgs)-1].Raw != true {
		t.Fatalf("expected busy=true first, got %+v", msgs)
	}

	var types []string
	for {
		msg := readUntil(t, conn, "busy")
		for _, m := range msg {
			types = append(types, m.Type)
		}
		if msg[len(msg)-1].Raw == false {
			break
		}
	}

	want := "turn,delta,turn,busy"
	if strings.Join(types, ",") != want {
		t.Fatalf("unexpected message sequence %v", types)
	}

	turns := session.Turns()
	if len(turns) != 2 || turns[1].Content != "hello from the model" {
		t.Fatalf("unexpected transcript %+v", turns)
	}
}

func TestWebSocketRejectsBlankAndUnknown(t *testing.T) {
	srv, sessions := setup(t, nil, testutil.Text("x"))
	session, _ := sessions.CreateSession(context.Background())
	conn := dial(t, srv, session.ID)
	readUntil(t, conn, "transcript")

	_ = conn.WriteJSON(map[string]interface{}{"type": "message", "data": map[string]string{"text": "  "}})
	readUntil(t, conn, "error")

	_ = conn.WriteJSON(map[string]interface{}{"type": "shout"})
	readUntil(t, conn, "error")

	_ = conn.WriteJSON(map[string]interface{}{"type": "ping"})
	readUntil(t, conn, "pong")

	if session.Len() != 0 {
		t.Fatalf("expected empty transcript, got %d turns", session.Len())
	}
}

func TestWebSocketLimiter(t *testing.T) {
	srv, sessions := setup(t, denyAll{}, testutil.Text("x"))
	session, _ := sessions.CreateSession(context.Background())
	conn := dial(t, srv, session.ID)
	readUntil(t, conn, "transcript")

	_ = conn.WriteJSON(map[string]interface{}{"type": "message", "data": map[string]string{"text": "hi"}})
	msgs := readUntil(t, conn, "error")
	if msgs[len(msgs)-1].Raw != "too many messages, slow down" {
		t.Fatalf("unexpected error %+v", msgs[len(msgs)-1])
	}
	if session.Len() != 0 {
		t.Fatal("limited message must not reach the transcript")
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	srv, _ := setup(t, nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404 response, got %+v", resp)
	}
}
