package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mbti-relay/backend/internal/model/personality"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/ai"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/classify"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/relay"
	"github.com/zhouzirui/mbti-relay/backend/internal/testutil"
)

func newTestRelay(t *testing.T, replies ...testutil.Reply) *relay.Relay {
	t.Helper()
	fake := testutil.NewChatModel(replies...)
	aiSvc, err := ai.NewService(fake)
	require.NoError(t, err)
	classifier, err := classify.NewService(context.Background(), fake, classify.Config{Enabled: true, Threshold: 3})
	require.NoError(t, err)
	return relay.New(aiSvc, classifier, personality.NewMemoryStore(personality.Seed()))
}

func TestLoopPrintsRepliesAndVerdict(t *testing.T) {
	r := newTestRelay(t,
		testutil.Text("one"),
		testutil.Text("two"),
		testutil.Text("ENFP - curious and warm"),
		testutil.Text("three"),
	)

	in := strings.NewReader("a\n\nb\nc\n/quit\n")
	var out bytes.Buffer
	require.NoError(t, loop(context.Background(), r, in, &out, false))

	text := out.String()
	assert.Contains(t, text, "Assistant: one")
	assert.Contains(t, text, "Assistant: three")
	assert.Contains(t, text, "ENFP - curious and warm")
	assert.Contains(t, text, "Campaigner")
	assert.Equal(t, 1, strings.Count(text, "Your MBTI type"))
}

func TestLoopStreamsDeltas(t *testing.T) {
	r := newTestRelay(t, testutil.Reply{Chunks: []string{"Hel", "lo"}})

	var out bytes.Buffer
	require.NoError(t, loop(context.Background(), r, strings.NewReader("hi\n"), &out, true))
	assert.Contains(t, out.String(), "Assistant: Hello")
}

func TestLoopStreamPrintsErrorTurn(t *testing.T) {
	r := newTestRelay(t, testutil.Reply{Err: errors.New("network down")})

	var out bytes.Buffer
	require.NoError(t, loop(context.Background(), r, strings.NewReader("hi\n"), &out, true))
	assert.Contains(t, out.String(), "Assistant: Error: network down")
}

func TestCountdown(t *testing.T) {
	assert.Equal(t, "3 more messages until your personality verdict.", countdown(relay.View{VerdictThreshold: 3}))
	assert.Equal(t, "1 more message until your personality verdict.", countdown(relay.View{VerdictThreshold: 3, UserTurns: 2}))
	assert.Empty(t, countdown(relay.View{}))
}
