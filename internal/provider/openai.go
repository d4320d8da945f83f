package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// OpenAIAdapter implements interfaces.ProviderAdapter against the OpenAI
// Chat Completions API. OpenRouterAdapter reuses this same client shape
// against an OpenAI-compatible base URL, since OpenRouter's wire format
// is OpenAI's.
type OpenAIAdapter struct {
	client *openai.Client
	name   string
	logger arbor.ILogger
	retry  RetryConfig
}

// NewOpenAIAdapter creates an adapter authenticated with apiKey against
// the default OpenAI API endpoint.
func NewOpenAIAdapter(apiKey string, logger arbor.ILogger) *OpenAIAdapter {
	return &OpenAIAdapter{
		client: openai.NewClient(apiKey),
		name:   "openai",
		logger: logger,
		retry:  DefaultRetryConfig(),
	}
}

// newOpenAICompatibleAdapter creates an adapter against a non-default
// base URL, used by the OpenRouter adapter.
func newOpenAICompatibleAdapter(name, apiKey, baseURL string, logger arbor.ILogger) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL

	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(cfg),
		name:   name,
		logger: logger,
		retry:  DefaultRetryConfig(),
	}
}

func (a *OpenAIAdapter) Name() string { return a.name }

func (a *OpenAIAdapter) ChatCompletion(ctx context.Context, req interfaces.ChatRequest) (*interfaces.ChatResponse, error) {
	apiReq, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}

	var resp openai.ChatCompletionResponse
	err = WithRetry(ctx, a.retry, func() error {
		var callErr error
		resp, callErr = a.client.CreateChatCompletion(ctx, apiReq)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%s chat completion: %w", a.name, DetectContextLengthExceeded(err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", a.name)
	}

	return &interfaces.ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: models.ProviderUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (a *OpenAIAdapter) StreamChatCompletion(ctx context.Context, req interfaces.ChatRequest) (<-chan interfaces.StreamDelta, error) {
	apiReq, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}
	apiReq.Stream = true
	apiReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := a.client.CreateChatCompletionStream(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("%s stream chat completion: %w", a.name, err)
	}

	out := make(chan interfaces.StreamDelta, 16)

	go func() {
		defer close(out)
		defer stream.Close()

		var usage models.ProviderUsage
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				out <- interfaces.StreamDelta{Done: true, Usage: &usage}
				return
			}
			if err != nil {
				out <- interfaces.StreamDelta{Done: true, Err: fmt.Errorf("%s stream: %w", a.name, DetectContextLengthExceeded(err))}
				return
			}

			if chunk.Usage != nil {
				usage.PromptTokens = chunk.Usage.PromptTokens
				usage.CompletionTokens = chunk.Usage.CompletionTokens
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				out <- interfaces.StreamDelta{ContentDelta: chunk.Choices[0].Delta.Content}
			}
		}
	}()

	return out, nil
}

// ExtractUsageFromBody is unsupported for OpenAI-shaped adapters and
// always returns an error: usage
// arrives inline via StreamOptions.IncludeUsage or the non-streaming
// response, never requiring a raw-body fallback parse.
func (a *OpenAIAdapter) ExtractUsageFromBody(body []byte) (models.ProviderUsage, error) {
	return models.ProviderUsage{}, fmt.Errorf("%s adapter does not support body-based usage extraction", a.name)
}

func (a *OpenAIAdapter) buildRequest(req interfaces.ChatRequest) (openai.ChatCompletionRequest, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg, err := a.buildMessage(m)
		if err != nil {
			return openai.ChatCompletionRequest{}, err
		}
		messages = append(messages, msg)
	}

	apiReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		apiReq.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		apiReq.MaxTokens = req.MaxTokens
	}

	return apiReq, nil
}

// buildMessage translates a ChatMessage into OpenAI's message shape,
// using MultiContent for messages that carry inline images (validated
// against the unified contract's MIME/size rules) and the plain Content
// string otherwise.
func (a *OpenAIAdapter) buildMessage(m interfaces.ChatMessage) (openai.ChatCompletionMessage, error) {
	if len(m.Images) == 0 {
		return openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}, nil
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: m.Content}}
	for _, img := range m.Images {
		if err := img.Validate(); err != nil {
			return openai.ChatCompletionMessage{}, fmt.Errorf("%s message image: %w", a.name, err)
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data))
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
		})
	}

	return openai.ChatCompletionMessage{Role: m.Role, MultiContent: parts}, nil
}

var _ interfaces.ProviderAdapter = (*OpenAIAdapter)(nil)
