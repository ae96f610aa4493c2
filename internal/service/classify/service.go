package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/mbti-relay/backend/internal/model/chat"
)

// DefaultThreshold is the number of user turns that triggers the verdict.
const DefaultThreshold = 3

// ErrEmptyTranscript is returned when there is nothing to classify.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Config controls the classifier.
type Config struct {
	Enabled   bool
	Threshold int
}

// Service asks the chat model for a one-shot personality verdict over a transcript.
type Service struct {
	enabled    bool
	threshold  int
	classifier compose.Runnable[map[string]any, *schema.Message]
}

// NewService builds the classifier chain. A nil chatModel or a disabled
// config yields a service that never classifies.
func NewService(ctx context.Context, chatModel model.BaseChatModel, cfg Config) (*Service, error) {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	svc := &Service{
		enabled:   cfg.Enabled && chatModel != nil,
		threshold: threshold,
	}

	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.UserMessage(classifyPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile personality classifier chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled reports whether classification can run.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Threshold is the user-turn count at which a verdict becomes due.
func (s *Service) Threshold() int {
	if s == nil || s.threshold <= 0 {
		return DefaultThreshold
	}
	return s.threshold
}

// Classify sends the whole transcript as a single synthetic user message and
// returns the model's text untouched.
func (s *Service) Classify(ctx context.Context, turns []chat.Turn) (string, error) {
	if !s.Enabled() {
		return "", errors.New("personality classifier disabled")
	}
	if len(turns) == 0 {
		return "", ErrEmptyTranscript
	}

	msg, err := s.classifier.Invoke(ctx, map[string]any{
		"conversation": FormatTranscript(turns),
	})
	if err != nil {
		return "", fmt.Errorf("classifier invoke failed: %w", err)
	}
	if msg == nil {
		return "", errors.New("classifier returned no message")
	}
	return msg.Content, nil
}

// FormatTranscript renders every turn as "<Role>: <content>", one per line.
func FormatTranscript(turns []chat.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, chat.RoleLabel(turn.Role)+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt returns the exact prompt text sent for turns.
func BuildPrompt(turns []chat.Turn) string {
	return strings.Replace(classifyPrompt, "{conversation}", FormatTranscript(turns), 1)
}

const classifyPrompt = "You are a personality expert. Based on the following conversation, what is the user's MBTI personality type?\n\n{conversation}\n\nRespond only with the 4-letter MBTI type and a one-line explanation."
