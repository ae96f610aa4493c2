package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
)

const maxResponseBytes = 4 << 20

var _ model.BaseChatModel = (*Client)(nil)

// Config describes an OpenAI-compatible chat completion endpoint.
type Config struct {
	// Endpoint is the complete URL the request is posted to.
	Endpoint    string
	APIKey      string
	Model       string
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	// Referer and Title are forwarded as HTTP-Referer / X-Title when set.
	Referer    string
	Title      string
	HTTPClient *http.Client
}

// Client posts transcripts to the completion endpoint. It implements
// eino's BaseChatModel so it can be dropped into prompt chains.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("completion endpoint is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("completion model is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("completion api key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, client: httpClient}, nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	TopP        *float32      `json:"top_p,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

// completionResponse models the subset of the response we rely on. Pointers
// distinguish missing fields from empty ones.
type completionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message *struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Generate sends input as the messages array and returns the first choice.
func (c *Client) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{
		Model:       &c.cfg.Model,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		MaxTokens:   c.cfg.MaxTokens,
	}, opts...)

	reqBody := completionRequest{
		Messages:    make([]wireMessage, 0, len(input)),
		Temperature: options.Temperature,
		TopP:        options.TopP,
		MaxTokens:   options.MaxTokens,
		Stop:        options.Stop,
	}
	reqBody.Model = c.cfg.Model
	if options.Model != nil && *options.Model != "" {
		reqBody.Model = *options.Model
	}
	for _, msg := range input {
		if msg == nil {
			continue
		}
		reqBody.Messages = append(reqBody.Messages, wireMessage{Role: string(msg.Role), Content: msg.Content})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &CallError{Op: OpRequest, Err: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &CallError{Op: OpRequest, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		httpReq.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &CallError{Op: OpRequest, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &CallError{Op: OpRequest, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	body := strings.TrimSpace(string(raw))

	log.Debug().
		Str("component", "llm").
		Str("model", reqBody.Model).
		Int("messages", len(reqBody.Messages)).
		Int("status", resp.StatusCode).
		Int("bytes", len(raw)).
		Msg("completion call finished")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		callErr := &CallError{Op: OpStatus, StatusCode: resp.StatusCode, Body: body}
		var parsed completionResponse
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
			callErr.Err = errors.New(parsed.Error.Message)
		}
		return nil, callErr
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &CallError{Op: OpDecode, StatusCode: resp.StatusCode, Body: body, Err: err}
	}

	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, &CallError{Op: OpShape, StatusCode: resp.StatusCode, Body: body, Err: fmt.Errorf("%w: %s", ErrNoChoices, parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil || parsed.Choices[0].Message.Content == nil {
		return nil, &CallError{Op: OpShape, StatusCode: resp.StatusCode, Body: body, Err: ErrNoChoices}
	}

	choice := parsed.Choices[0]
	out := schema.AssistantMessage(*choice.Message.Content, nil)
	out.ResponseMeta = &schema.ResponseMeta{FinishReason: choice.FinishReason}
	if parsed.Usage != nil {
		out.ResponseMeta.Usage = &schema.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}
	return out, nil
}

// Stream performs a blocking Generate and yields the result as a one-chunk stream.
func (c *Client) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := c.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}
