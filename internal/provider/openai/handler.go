// Package openai implements a second `live`-mode ProducerHandler, wrapping
// github.com/openai/openai-go, to demonstrate that the executor's invoke()
// contract is provider-agnostic (§4.5). Grounded on the pack's goa-ai
// features/model/openai adapter's request/response translation shape,
// adapted from the sashabaranov/go-openai client it wraps to the official
// openai-go client already present in this module's dependency set.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"weavecore/internal/executor"
	"weavecore/internal/orcherr"
	"weavecore/internal/promptoverride"
	"weavecore/internal/provider"
	"weavecore/internal/schema"
	"weavecore/internal/store"
)

// chatClient is the subset of openai.Client this handler calls.
type chatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Handler wraps the OpenAI Chat Completions API as a ProducerHandler.
type Handler struct {
	chat         chatClient
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

// New builds a Handler from an already-constructed chat completions client.
func New(chat chatClient, defaultModel string) *Handler {
	return &Handler{chat: chat, defaultModel: defaultModel}
}

// NewFromAPIKey constructs a Handler using the SDK's default HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) *Handler {
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Chat.Completions, defaultModel)
}

func (h *Handler) WarmStart(ctx context.Context) error {
	if h.chat == nil {
		return &orcherr.UserInputError{Code: "MissingClient", Message: "openai handler has no configured client"}
	}
	return nil
}

// Invoke mirrors the anthropic handler's shape-then-call-then-fan-out
// lifecycle against the Chat Completions API.
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
		return executor.ProduceResult{}, &orcherr.UserInputError{Code: "MissingPrompt", Message: "openai handler requires a non-empty Prompt or prompt field after payload shaping"}
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.F(model),
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		}),
	}

	completion, err := h.chat.New(ctx, params)
	if err != nil {
		return executor.ProduceResult{}, classifyError(err)
	}

	text := extractText(completion)
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

func extractText(completion *openai.ChatCompletion) string {
	if completion == nil || len(completion.Choices) == 0 {
		return ""
	}
	return completion.Choices[0].Message.Content
}

// classifyError maps an OpenAI SDK error into the retryable-provider-error
// taxonomy by text match on the documented rate-limit/server-error
// categories, mirroring the anthropic handler's conservative approach since
// neither SDK exports a stable cross-version status-code type.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	retryable := strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "429") ||
		strings.Contains(lower, "server_error") ||
		strings.Contains(lower, "503") ||
		strings.Contains(lower, "502")
	var retryAfterMs int64
	if retryable {
		retryAfterMs = 1000
	}
	return &orcherr.ProviderError{
		Code:         "OpenAIRequestFailed",
		Message:      fmt.Sprintf("openai chat.completions.new: %s", msg),
		Retryable:    retryable,
		RetryAfterMs: retryAfterMs,
		Cause:        err,
	}
}
