package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/require"

	"weavecore/internal/artifact"
	"weavecore/internal/executor"
	"weavecore/internal/ids"
	"weavecore/internal/orcherr"
	"weavecore/internal/store"
)

type fakeChat struct {
	resp *openai.ChatCompletion
	err  error
}

func (f *fakeChat) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	return f.resp, f.err
}

func TestInvoke_ReturnsModelTextAsBlob(t *testing.T) {
	fake := &fakeChat{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "a quiet harbor at dawn"}},
		},
	}}
	h := New(fake, "gpt-test-model")

	produceID := ids.NewArtifact("DocProducer", "Segments")
	req := executor.ProduceRequest{
		JobID:          ids.NewProducer("DocProducer"),
		Produces:       []ids.ID{produceID},
		ResolvedInputs: map[string]artifact.Value{"Prompt": artifact.String("write a scene")},
	}

	res, err := h.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Artefacts, 1)
	require.Equal(t, store.StatusSucceeded, res.Artefacts[0].Status)
	require.Equal(t, "a quiet harbor at dawn", string(res.Artefacts[0].Blob.Data))
}

func TestInvoke_ServerErrorIsRetryable(t *testing.T) {
	fake := &fakeChat{err: errors.New("503 server_error: temporarily unavailable")}
	h := New(fake, "gpt-test-model")
	req := executor.ProduceRequest{
		Produces:       []ids.ID{ids.NewArtifact("DocProducer", "Segments")},
		ResolvedInputs: map[string]artifact.Value{"Prompt": artifact.String("x")},
	}
	_, err := h.Invoke(context.Background(), req)
	require.Error(t, err)
	retryable, _ := orcherr.Retryable(err)
	require.True(t, retryable)
}
