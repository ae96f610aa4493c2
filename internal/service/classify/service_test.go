package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mbti-relay/backend/internal/model/chat"
	"github.com/zhouzirui/mbti-relay/backend/internal/testutil"
)

var sampleTurns = []chat.Turn{
	{Role: chat.RoleUser, Content: "I like parties"},
	{Role: chat.RoleAssistant, Content: "Sounds fun!"},
	{Role: chat.RoleUser, Content: "I plan everything"},
}

func TestFormatTranscript(t *testing.T) {
	got := FormatTranscript(sampleTurns)
	want := "User: I like parties\nAssistant: Sounds fun!\nUser: I plan everything"
	assert.Equal(t, want, got)
}

func TestClassifySendsSingleMessageAndReturnsRawText(t *testing.T) {
	raw := "  ESTJ - you enjoy people and structure.\n"
	fake := testutil.NewChatModel(testutil.Text(raw))
	svc, err := NewService(context.Background(), fake, Config{Enabled: true})
	require.NoError(t, err)
	require.True(t, svc.Enabled())

	verdict, err := svc.Classify(context.Background(), sampleTurns)
	require.NoError(t, err)
	assert.Equal(t, raw, verdict)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 1)
	assert.Equal(t, schema.User, calls[0][0].Role)
	assert.Equal(t, BuildPrompt(sampleTurns), calls[0][0].Content)
	assert.Contains(t, calls[0][0].Content, "User: I plan everything")
	assert.Contains(t, calls[0][0].Content, "Respond only with the 4-letter MBTI type and a one-line explanation.")
}

func TestClassifyKeepsBracesInContent(t *testing.T) {
	fake := testutil.NewChatModel(testutil.Text("INTP"))
	svc, err := NewService(context.Background(), fake, Config{Enabled: true})
	require.NoError(t, err)

	turns := []chat.Turn{{Role: chat.RoleUser, Content: "I write {json} all day"}}
	_, err = svc.Classify(context.Background(), turns)
	require.NoError(t, err)
	assert.Contains(t, fake.Calls()[0][0].Content, "User: I write {json} all day")
}

func TestClassifyPropagatesModelError(t *testing.T) {
	fake := testutil.NewChatModel(testutil.Reply{Err: errors.New("rate limited")})
	svc, err := NewService(context.Background(), fake, Config{Enabled: true})
	require.NoError(t, err)

	_, err = svc.Classify(context.Background(), sampleTurns)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestDisabledService(t *testing.T) {
	svc, err := NewService(context.Background(), testutil.NewChatModel(), Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, svc.Enabled())
	assert.Equal(t, DefaultThreshold, svc.Threshold())

	_, err = svc.Classify(context.Background(), sampleTurns)
	assert.Error(t, err)

	svc, err = NewService(context.Background(), nil, Config{Enabled: true})
	require.NoError(t, err)
	assert.False(t, svc.Enabled())

	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())
}

func TestClassifyEmptyTranscript(t *testing.T) {
	svc, err := NewService(context.Background(), testutil.NewChatModel(testutil.Text("x")), Config{Enabled: true, Threshold: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, svc.Threshold())

	_, err = svc.Classify(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}
