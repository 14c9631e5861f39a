package terminal

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/systemshift/graphchat/internal/chat"
	"github.com/systemshift/graphchat/internal/history"
	"github.com/systemshift/graphchat/internal/qa"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type echoChain struct{}

func (echoChain) Answer(ctx context.Context, question string) (*qa.Result, error) {
	return &qa.Result{GeneratedQuery: qa.NoQuery, Answer: "answer to " + question}, nil
}

func run(t *testing.T, input string) (string, history.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := history.NewSQLite(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(ctx) })

	var out bytes.Buffer
	term, err := New(strings.NewReader(input), &out, Options{Plain: true})
	require.NoError(t, err)

	sess := chat.NewSession("s1", "admin", term, store, chat.Options{}, nil, nil)
	require.NoError(t, term.Run(ctx, sess, echoChain{}))
	return out.String(), store
}

func TestRun_PickAndContinue(t *testing.T) {
	out, store := run(t, "list CVEs\n1\n\nexit\n")

	assert.Contains(t, out, chat.NoPreviousQueries)
	assert.Equal(t, 2, strings.Count(out, "**Answer:**\nanswer to list CVEs"))
	assert.Contains(t, out, "1. list CVEs")
	assert.Contains(t, out, "2. Continue to chat")
	assert.Contains(t, out, chat.PleaseAsk)
	assert.Contains(t, out, "Goodbye!")

	top, err := store.TopQueries(context.Background(), "admin", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"list CVEs"}, top)
}

func TestRun_TypingAtPromptAsksQuestion(t *testing.T) {
	out, store := run(t, "first\nsecond\n\nexit\n")

	assert.Contains(t, out, "answer to first")
	assert.Contains(t, out, "answer to second")

	entries, err := store.History(context.Background(), "admin")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRun_RateLastAnswer(t *testing.T) {
	out, store := run(t, "/rate good\nq1\n\n/rate good\n")

	assert.Contains(t, out, "Nothing to rate yet")
	assert.Contains(t, out, chat.FeedbackThanks)

	entries, err := store.History(context.Background(), "admin")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "good", entries[0].Rating)
}

func TestAskAction_OutOfRange(t *testing.T) {
	var out bytes.Buffer
	term, err := New(strings.NewReader("7\n2\n"), &out, Options{Plain: true})
	require.NoError(t, err)

	p := chat.Prompt{Actions: []chat.Action{
		{Name: chat.ActionQuery, Label: "a", Value: "a"},
		{Name: chat.ActionContinue, Label: chat.ContinueLabel, Value: "continue"},
	}}
	got, err := term.AskAction(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, chat.ActionContinue, got.Name)
	assert.Contains(t, out.String(), "Pick 1-2")

	_, err = term.AskAction(context.Background(), p)
	assert.ErrorIs(t, err, ErrInputClosed)
}
