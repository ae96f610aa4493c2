// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var _ model.BaseChatModel = (*ChatModel)(nil)

// ChatModel is a scripted eino chat model. Each call consumes the next
// entry of Replies; once exhausted the last entry repeats. A cancelled
// context fails the call the way a real HTTP model would.
type ChatModel struct {
	mu      sync.Mutex
	Replies []Reply
	calls   [][]*schema.Message
}

// Reply is one scripted model answer.
type Reply struct {
	Content string
	Err     error
	// Chunks, when set, is what Stream yields instead of Content.
	Chunks []string
}

// NewChatModel scripts the supplied replies in order.
func NewChatModel(replies ...Reply) *ChatModel {
	return &ChatModel{Replies: replies}
}

// Text is shorthand for a successful reply.
func Text(content string) Reply {
	return Reply{Content: content}
}

func (m *ChatModel) next(input []*schema.Message) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]*schema.Message, len(input))
	for i, msg := range input {
		clone := *msg
		copied[i] = &clone
	}
	m.calls = append(m.calls, copied)

	if len(m.Replies) == 0 {
		return Reply{}
	}
	idx := len(m.calls) - 1
	if idx >= len(m.Replies) {
		idx = len(m.Replies) - 1
	}
	return m.Replies[idx]
}

// Generate returns the next scripted reply.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	reply := m.next(input)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	content := reply.Content
	if len(reply.Chunks) > 0 {
		content = strings.Join(reply.Chunks, "")
	}
	return schema.AssistantMessage(content, nil), nil
}

// Stream yields the next scripted reply chunk by chunk.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	reply := m.next(input)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reply.Err != nil {
		return nil, reply.Err
	}

	chunks := reply.Chunks
	if len(chunks) == 0 {
		chunks = []string{reply.Content}
	}
	msgs := make([]*schema.Message, 0, len(chunks))
	for _, chunk := range chunks {
		msgs = append(msgs, schema.AssistantMessage(chunk, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

// Calls returns the inputs received so far.
func (m *ChatModel) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*schema.Message(nil), m.calls...)
}

// CallCount returns how many times the model was invoked.
func (m *ChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
