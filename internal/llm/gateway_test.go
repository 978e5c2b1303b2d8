package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotimiadeleye/caseflow/internal/extract"
)

type stubClient struct {
	got Prompt
	out string
	err error
}

func (s *stubClient) Generate(_ context.Context, p Prompt) (string, error) {
	s.got = p
	return s.out, s.err
}

func TestGatewayInferAssemblesPrompt(t *testing.T) {
	client := &stubClient{out: "model output"}
	g := NewGateway(client, GatewayConfig{}, nil)

	docs := []*extract.Document{
		doc(t, "a.txt", "alpha"),
		doc(t, "b.txt", "bravo"),
	}
	out, stats, err := g.Infer(context.Background(), "system", docs)
	require.NoError(t, err)
	assert.Equal(t, "model output", out)
	assert.False(t, stats.Truncated)
	assert.Equal(t, "system", client.got.Header)
	require.Len(t, client.got.Texts, 2)
}

func TestGatewayReportsTruncation(t *testing.T) {
	client := &stubClient{out: "ok"}
	g := NewGateway(client, GatewayConfig{MaxPromptBytes: 40}, nil)

	docs := []*extract.Document{doc(t, "big.txt", strings.Repeat("x", 200))}
	_, stats, err := g.Infer(context.Background(), "system", docs)
	require.NoError(t, err)
	assert.True(t, stats.Truncated)
}

func TestGatewayPassesThroughClassifiedErrors(t *testing.T) {
	want := &InferenceError{Kind: RateLimited, Message: "429"}
	g := NewGateway(&stubClient{err: want}, GatewayConfig{}, nil)

	docs := []*extract.Document{doc(t, "a.txt", "alpha")}
	_, _, err := g.Infer(context.Background(), "system", docs)
	var ie *InferenceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, RateLimited, ie.Kind)
}
