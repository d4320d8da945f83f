package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// AnthropicAdapter implements interfaces.ProviderAdapter against the
// Claude Messages API.
type AnthropicAdapter struct {
	client anthropic.Client
	logger arbor.ILogger
	retry  RetryConfig
}

// NewAnthropicAdapter creates an adapter authenticated with apiKey.
func NewAnthropicAdapter(apiKey string, logger arbor.ILogger) *AnthropicAdapter {
	return &AnthropicAdapter{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		logger: logger,
		retry:  DefaultRetryConfig(),
	}
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) ChatCompletion(ctx context.Context, req interfaces.ChatRequest) (*interfaces.ChatResponse, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}

	var resp *anthropic.Message
	err = WithRetry(ctx, a.retry, func() error {
		var callErr error
		resp, callErr = a.client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic chat completion: %w", DetectContextLengthExceeded(err))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &interfaces.ChatResponse{
		Content: text.String(),
		Usage: models.ProviderUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			CacheReadTokens:  int(resp.Usage.CacheReadInputTokens),
			CacheWriteTokens: int(resp.Usage.CacheCreationInputTokens),
		},
	}, nil
}

func (a *AnthropicAdapter) StreamChatCompletion(ctx context.Context, req interfaces.ChatRequest) (<-chan interfaces.StreamDelta, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	out := make(chan interfaces.StreamDelta, 16)

	go func() {
		defer close(out)

		var usage models.ProviderUsage
		for stream.Next() {
			event := stream.Current()
			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if variant.Delta.Text != "" {
					out <- interfaces.StreamDelta{ContentDelta: variant.Delta.Text}
				}
			case anthropic.MessageDeltaEvent:
				usage.CompletionTokens = int(variant.Usage.OutputTokens)
			}
		}

		if err := stream.Err(); err != nil {
			out <- interfaces.StreamDelta{Done: true, Err: fmt.Errorf("anthropic stream: %w", DetectContextLengthExceeded(err))}
			return
		}

		out <- interfaces.StreamDelta{Done: true, Usage: &usage}
	}()

	return out, nil
}

// ExtractUsageFromBody is unsupported for Anthropic and always returns an
// error: usage always arrives in
// the structured response/stream events handled above, never needing a
// raw-body fallback parse.
func (a *AnthropicAdapter) ExtractUsageFromBody(body []byte) (models.ProviderUsage, error) {
	return models.ProviderUsage{}, fmt.Errorf("anthropic adapter does not support body-based usage extraction")
}

func (a *AnthropicAdapter) buildParams(req interfaces.ChatRequest) (anthropic.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("messages cannot be empty")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	var messages []anthropic.MessageParam
	var systemText string
	hasUser := false

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		blocks, err := a.buildContentBlocks(msg)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}

		if msg.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			hasUser = true
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}
	if !hasUser {
		return anthropic.MessageNewParams{}, fmt.Errorf("at least one message must have role 'user'")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}

	return params, nil
}

// buildContentBlocks translates a ChatMessage's text and inline images
// into Anthropic's content-block shape, validating each image against the
// unified contract's MIME/size rules before encoding it.
func (a *AnthropicAdapter) buildContentBlocks(msg interfaces.ChatMessage) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)}
	for _, img := range msg.Images {
		if err := img.Validate(); err != nil {
			return nil, fmt.Errorf("anthropic message image: %w", err)
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, base64.StdEncoding.EncodeToString(img.Data)))
	}
	return blocks, nil
}

var _ interfaces.ProviderAdapter = (*AnthropicAdapter)(nil)
