// Package anthropic implements a `live`-mode ProducerHandler wrapping
// github.com/anthropics/anthropic-sdk-go, grounded on the pack's
// goa-ai features/model/anthropic adapter (request/response translation
// shape) and generalized from a chat-planner Request/Response pair to the
// orchestrator's shaped-payload ProduceRequest/ProduceResult contract.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"weavecore/internal/executor"
	"weavecore/internal/orcherr"
	"weavecore/internal/promptoverride"
	"weavecore/internal/provider"
	"weavecore/internal/schema"
	"weavecore/internal/store"
)

// DefaultMaxTokens bounds every completion; there is no per-job override.
const DefaultMaxTokens = 1024

// Handler wraps the Anthropic Messages API as a ProducerHandler.
type Handler struct {
	messages     messagesClient
	defaultModel string

	// PromptsRoot, when set, is consulted for a per-producer-alias prompt
	// override (prompts/<alias>.toml, §6.1) before falling back to the
	// shaped payload's Prompt field.
	PromptsRoot string
}

// WithPromptsRoot sets the prompt-override directory and returns h for
// chaining at construction time.
func (h *Handler) WithPromptsRoot(root string) *Handler {
	h.PromptsRoot = root
	return h
}

// messagesClient is the subset of *sdk.MessageService this handler calls,
// so tests can substitute a stub without a live API key.
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// New builds a Handler from an already-constructed Anthropic client.
func New(client messagesClient, defaultModel string) *Handler {
	return &Handler{messages: client, defaultModel: defaultModel}
}

// NewFromAPIKey constructs a Handler using the SDK's default HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) *Handler {
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, defaultModel)
}

// WarmStart checks only that a Messages client is configured; it sends no
// request, so credential failures surface on the first real Invoke.
func (h *Handler) WarmStart(ctx context.Context) error {
	if h.messages == nil {
		return &orcherr.UserInputError{Code: "MissingClient", Message: "anthropic handler has no configured client"}
	}
	return nil
}

// Invoke shapes the job's resolved inputs into a single-turn prompt, calls
// the Messages API, and returns the model's text as every requested produces
// artifact (a producer declaring multiple leaves receives the same text;
// splitting a single completion across several leaves is a payload-shaping
// concern the blueprint author controls via sdkMapping, not this handler).
func (h *Handler) Invoke(ctx context.Context, req executor.ProduceRequest) (executor.ProduceResult, error) {
	var inputSchema *schema.Compiled
	if len(req.Context.SchemaInput) > 0 {
		if c, err := schema.Compile(req.Context.SchemaInput); err == nil {
			inputSchema = c
		}
	}
	payload, err := provider.ShapePayload(req.ResolvedInputs, req.Context.SDKMapping, inputSchema)
	if err != nil {
		return executor.ProduceResult{}, err
	}
	prompt := promptFromPayload(payload)
	model := req.Model
	if model == "" {
		model = h.defaultModel
	}
	if ov, ok, err := promptoverride.Load(h.PromptsRoot, req.JobID.ProducerAlias()); err != nil {
		return executor.ProduceResult{}, &orcherr.UserInputError{Code: "InvalidPromptOverride", Message: err.Error(), Cause: err}
	} else if ok {
		prompt = ov.Prompt
		if ov.Model != "" {
			model = ov.Model
		}
	}
	if prompt == "" {
		return executor.ProduceResult{}, &orcherr.UserInputError{Code: "MissingPrompt", Message: "anthropic handler requires a non-empty Prompt or prompt field after payload shaping"}
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(DefaultMaxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	}

	msg, err := h.messages.New(ctx, params)
	if err != nil {
		return executor.ProduceResult{}, classifyError(err)
	}

	text := extractText(msg)
	arts := make([]executor.ProducedArtifact, 0, len(req.Produces))
	for _, want := range req.Produces {
		arts = append(arts, executor.ProducedArtifact{
			ArtefactID: want,
			Status:     store.StatusSucceeded,
			Blob:       &executor.ProducedBlob{Data: []byte(text), MimeType: "text/plain"},
		})
	}
	return executor.ProduceResult{Status: "succeeded", Artefacts: arts}, nil
}

func promptFromPayload(payload map[string]interface{}) string {
	for _, key := range []string{"Prompt", "prompt", "Text", "text"} {
		if v, ok := payload[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func extractText(msg *sdk.Message) string {
	if msg == nil {
		return ""
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// classifyError maps an Anthropic SDK error into the orchestrator's
// retryable-provider-error taxonomy. The SDK does not export a stable
// exported status-code type across alpha versions, so classification here
// is a conservative text match on the documented error categories (rate
// limit, overloaded, internal server error) rather than a type assertion.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	retryable := strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "429") ||
		strings.Contains(lower, "internal_server_error") ||
		strings.Contains(lower, "503")
	var retryAfterMs int64
	if retryable {
		retryAfterMs = 1000
	}
	return &orcherr.ProviderError{
		Code:         "AnthropicRequestFailed",
		Message:      fmt.Sprintf("anthropic messages.new: %s", msg),
		Retryable:    retryable,
		RetryAfterMs: retryAfterMs,
		Cause:        err,
	}
}
