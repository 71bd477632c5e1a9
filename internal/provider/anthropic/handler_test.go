package anthropic

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"

	"weavecore/internal/artifact"
	"weavecore/internal/executor"
	"weavecore/internal/ids"
	"weavecore/internal/orcherr"
	"weavecore/internal/planner"
	"weavecore/internal/store"
)

type fakeMessages struct {
	resp *sdk.Message
	err  error
}

func (f *fakeMessages) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	return f.resp, f.err
}

func TestInvoke_ReturnsModelTextAsBlob(t *testing.T) {
	fake := &fakeMessages{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: "a quiet harbor at dawn"}},
	}}
	h := New(fake, "claude-test-model")

	produceID := ids.NewArtifact("DocProducer", "Segments")
	req := executor.ProduceRequest{
		JobID:          ids.NewProducer("DocProducer"),
		Produces:       []ids.ID{produceID},
		ResolvedInputs: map[string]artifact.Value{"Prompt": artifact.String("write a scene")},
		Context:        planner.JobContext{},
	}

	res, err := h.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Artefacts, 1)
	require.Equal(t, store.StatusSucceeded, res.Artefacts[0].Status)
	require.Equal(t, "a quiet harbor at dawn", string(res.Artefacts[0].Blob.Data))
}

func TestInvoke_MissingPromptIsUserError(t *testing.T) {
	h := New(&fakeMessages{}, "claude-test-model")
	req := executor.ProduceRequest{
		Produces:       []ids.ID{ids.NewArtifact("DocProducer", "Segments")},
		ResolvedInputs: map[string]artifact.Value{},
	}
	_, err := h.Invoke(context.Background(), req)
	require.Error(t, err)
}

func TestInvoke_RateLimitedErrorIsRetryable(t *testing.T) {
	fake := &fakeMessages{err: errors.New("429 rate_limit_error: slow down")}
	h := New(fake, "claude-test-model")
	req := executor.ProduceRequest{
		Produces:       []ids.ID{ids.NewArtifact("DocProducer", "Segments")},
		ResolvedInputs: map[string]artifact.Value{"Prompt": artifact.String("x")},
	}
	_, err := h.Invoke(context.Background(), req)
	require.Error(t, err)
	retryable, _ := orcherr.Retryable(err)
	require.True(t, retryable)
}
