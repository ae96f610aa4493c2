package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/mbti-relay/backend/internal/model/chat"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/llm"
)

// Service forwards a session transcript to the chat model.
type Service struct {
	chatModel    model.BaseChatModel
	systemPrompt string
}

// Option customises a Service.
type Option func(*Service)

// WithSystemPrompt prepends a system message to every request. The
// prompt is never recorded in the transcript.
func WithSystemPrompt(prompt string) Option {
	return func(s *Service) {
		s.systemPrompt = strings.TrimSpace(prompt)
	}
}

// NewService creates a new AI service instance
func NewService(chatModel model.BaseChatModel, opts ...Option) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	svc := &Service{chatModel: chatModel}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Complete sends the full transcript and returns the assistant reply.
func (s *Service) Complete(ctx context.Context, turns []chat.Turn) (*schema.Message, error) {
	response, err := s.chatModel.Generate(ctx, s.buildMessages(turns))
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, &llm.CallError{Op: llm.OpShape, Err: llm.ErrNoChoices}
	}

	log.Debug().Str("component", "ai").Int("turns", len(turns)).Int("length", len(response.Content)).Msg("generated response")
	return response, nil
}

// Stream opens a streamed completion over the full transcript.
func (s *Service) Stream(ctx context.Context, turns []chat.Turn) (*schema.StreamReader[*schema.Message], error) {
	stream, err := s.chatModel.Stream(ctx, s.buildMessages(turns))
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// buildMessages converts the transcript into the request message list.
func (s *Service) buildMessages(turns []chat.Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turns)+1)
	if s.systemPrompt != "" {
		messages = append(messages, schema.SystemMessage(s.systemPrompt))
	}

	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			messages = append(messages, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		default:
			messages = append(messages, &schema.Message{Role: schema.RoleType(turn.Role), Content: turn.Content})
		}
	}
	return messages
}

// ConcatStream drains stream, calling onDelta for every non-empty chunk,
// and returns the concatenated message.
func ConcatStream(stream *schema.StreamReader[*schema.Message], onDelta func(string)) (*schema.Message, error) {
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" && onDelta != nil {
			onDelta(chunk.Content)
		}
	}

	if len(chunks) == 0 {
		return nil, &llm.CallError{Op: llm.OpShape, Err: fmt.Errorf("%w: empty stream", llm.ErrNoChoices)}
	}

	return schema.ConcatMessages(chunks)
}
