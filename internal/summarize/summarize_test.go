package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/graphchat/internal/llm"
)

type recordingLLM struct {
	requests []llm.Request
	err      error
}

func (r *recordingLLM) Name() string { return "recording" }

func (r *recordingLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	if len(r.requests) == 1 {
		return &llm.Response{Text: " Phishing campaign against mail servers. "}, nil
	}
	return &llm.Response{Text: "- Enable MFA\n- Patch Exchange"}, nil
}

const ttps = `technique,tactic,host
T1566,initial-access,mail01
T1059,execution,ws-22
`

func TestRun(t *testing.T) {
	model := &recordingLLM{}
	report, err := New(model, 0, nil).Run(context.Background(), strings.NewReader(ttps))
	require.NoError(t, err)

	assert.Equal(t, "Phishing campaign against mail servers.", report.Summary)
	assert.Equal(t, "- Enable MFA\n- Patch Exchange", report.Mitigations)
	assert.Equal(t, 2, report.Rows)
	assert.False(t, report.Truncated)

	require.Len(t, model.requests, 2)
	assert.Contains(t, model.requests[0].Prompt, "T1566")
	assert.Contains(t, model.requests[0].Prompt, "mail01")
	assert.Contains(t, model.requests[1].Prompt, "Phishing campaign")

	md := report.Markdown()
	assert.Contains(t, md, "## Generated Threat Summary")
	assert.Contains(t, md, "## Mitigations and Solutions")
}

func TestRun_Truncates(t *testing.T) {
	model := &recordingLLM{}
	report, err := New(model, 1, nil).Run(context.Background(), strings.NewReader(ttps))
	require.NoError(t, err)

	assert.True(t, report.Truncated)
	assert.Equal(t, 2, report.Rows)
	assert.NotContains(t, model.requests[0].Prompt, "ws-22")
}

func TestRun_Errors(t *testing.T) {
	_, err := New(&recordingLLM{}, 0, nil).Run(context.Background(), strings.NewReader("technique,tactic\n"))
	assert.ErrorIs(t, err, ErrNoData)

	_, err = New(&recordingLLM{}, 0, nil).Run(context.Background(), strings.NewReader("a,\"b\nc"))
	assert.ErrorContains(t, err, "parsing csv")

	_, err = New(&recordingLLM{err: llm.ErrUnavailable}, 0, nil).Run(context.Background(), strings.NewReader(ttps))
	assert.True(t, errors.Is(err, llm.ErrUnavailable))
}

func TestTable(t *testing.T) {
	out := Table([][]string{{"id", "name"}, {"1", "alpha"}, {"22", "b"}})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "   id  name", lines[0])
	assert.Equal(t, "0  1   alpha", lines[1])
	assert.Equal(t, "1  22  b", lines[2])
}
