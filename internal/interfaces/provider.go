package interfaces

import (
	"context"
	"fmt"

	"github.com/foundryhq/jobengine/internal/models"
)

// MaxImageBytes is the size ceiling the unified chat contract places on
// an inline base64 image content part.
const MaxImageBytes = 20 * 1024 * 1024

// allowedImageMimeTypes is the unified chat contract's closed set of
// acceptable inline image formats.
var allowedImageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ImageContent is a base64-decoded inline image attached to a ChatMessage.
type ImageContent struct {
	MimeType string
	Data     []byte
}

// Validate checks MimeType against the allowed set and Data against the
// unified contract's size ceiling.
func (img ImageContent) Validate() error {
	if !allowedImageMimeTypes[img.MimeType] {
		return fmt.Errorf("unsupported image mime type %q: must be jpeg, png, webp or gif", img.MimeType)
	}
	if len(img.Data) == 0 {
		return fmt.Errorf("image content cannot be empty")
	}
	if len(img.Data) > MaxImageBytes {
		return fmt.Errorf("image content exceeds %d bytes", MaxImageBytes)
	}
	return nil
}

// ChatMessage is a single turn in the unified provider request contract.
// Role is "system", "user" or "assistant". Images carries zero or more
// inline content parts alongside Content's text; a ProviderAdapter
// translates them into its vendor's own multi-part content shape.
type ChatMessage struct {
	Role    string
	Content string
	Images  []ImageContent
}

// ChatRequest is the vendor-agnostic request the Provider Adapter layer
// accepts before translating it into a vendor-specific wire payload.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float32
	MaxTokens   int
	Stream      bool
}

// ChatResponse is the vendor-agnostic result of a non-streaming completion.
type ChatResponse struct {
	Content string
	Usage   models.ProviderUsage
}

// StreamDelta is a single unit of a streamed completion, decoded from the
// vendor's SSE framing into the unified shape the Streaming Handler
// consumes.
type StreamDelta struct {
	ContentDelta string
	Done         bool
	Usage        *models.ProviderUsage // populated only on the final delta, when the vendor reports it
	Err          error                 // set on the terminal delta when the stream ended abnormally
}

// ProviderAdapter translates the unified chat contract into a specific
// vendor's wire protocol (OpenAI-shaped, Anthropic-shaped,
// OpenRouter-shaped). Implementations own their own retry/backoff for
// transient vendor errors; the provider Registry adds the
// fallback-to-OpenRouter policy, and callers such as ChatTask may retry
// the whole call again on top of that.
type ProviderAdapter interface {
	// Name identifies the adapter for logging and fallback routing, e.g. "openai".
	Name() string

	// ChatCompletion performs a non-streaming completion.
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// StreamChatCompletion performs a streaming completion, sending one
	// StreamDelta per SSE event (or logical equivalent) onto the returned
	// channel. The returned error reports only synchronous setup failures
	// (e.g. the initial HTTP request could not be made). Once streaming
	// begins, the channel is always closed when the stream ends, whether
	// normally or not; a mid-stream failure is delivered as the final
	// StreamDelta with Done=true and Err set to the cause.
	StreamChatCompletion(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)

	// ExtractUsageFromBody parses vendor-specific usage accounting out of a
	// raw response or final SSE event body, for vendors that report usage
	// outside the unified ChatResponse/StreamDelta shape.
	ExtractUsageFromBody(body []byte) (models.ProviderUsage, error)
}
