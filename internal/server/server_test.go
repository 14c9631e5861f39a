package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/systemshift/graphchat/internal/chat"
	"github.com/systemshift/graphchat/internal/history"
	"github.com/systemshift/graphchat/internal/metrics"
	"github.com/systemshift/graphchat/internal/qa"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type echoChain struct{}

func (echoChain) Answer(ctx context.Context, question string) (*qa.Result, error) {
	return &qa.Result{GeneratedQuery: "MATCH (c:CVE) RETURN c.id", Answer: "answer to " + question}, nil
}

var users = map[string]string{"alice": "s3cret", "bob": "hunter2"}

func setup(t *testing.T, store history.Store) *httptest.Server {
	t.Helper()
	if store == nil {
		ctx := context.Background()
		s, err := history.NewSQLite(ctx, filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close(ctx) })
		store = s
	}

	m := metrics.NewCollector("test")
	srv := New(Deps{
		Store:   store,
		Chain:   echoChain{},
		Chats:   chat.NewManager(store, chat.Options{}, m, nil),
		Metrics: m,
		Users:   users,
	})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, user string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if user != "" {
		req.SetBasicAuth(user, users[user])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthCheck(t *testing.T) {
	ts := setup(t, nil)

	resp := do(t, http.MethodGet, ts.URL+"/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 0.0, body["sessions"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setup(t, nil)
	resp := do(t, http.MethodGet, ts.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTopQueries_Auth(t *testing.T) {
	ts := setup(t, nil)

	resp := do(t, http.MethodGet, ts.URL+"/api/users/alice/top", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/api/users/alice/top", "bob", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/api/users/alice/top?limit=x", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTopQueriesAndFeedback(t *testing.T) {
	ctx := context.Background()
	store, err := history.NewSQLite(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(ctx) })

	for q, n := range map[string]int{"list CVEs": 2, "show mitigations": 1} {
		for i := 0; i < n; i++ {
			require.NoError(t, store.RecordAsk(ctx, "alice", q))
		}
	}
	ts := setup(t, store)

	resp := do(t, http.MethodGet, ts.URL+"/api/users/alice/top?limit=5", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var top TopQueriesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&top))
	assert.Equal(t, []string{"list CVEs", "show mitigations"}, top.Queries)

	resp = do(t, http.MethodPost, ts.URL+"/api/feedback", "alice", FeedbackRequest{Query: "list CVEs", Rating: "good"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/api/feedback", "alice", FeedbackRequest{Query: "list CVEs"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/api/users/alice/history", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hist HistoryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hist))
	require.Len(t, hist.Entries, 2)
	assert.Equal(t, "list CVEs", hist.Entries[0].Query)
	assert.Equal(t, int64(2), hist.Entries[0].Count)
	assert.Equal(t, "good", hist.Entries[0].Rating)
}

func TestTopQueries_EmptyIsArray(t *testing.T) {
	ts := setup(t, nil)

	resp := do(t, http.MethodGet, ts.URL+"/api/users/bob/top", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, `[]`, string(raw["queries"]))
}

func TestStoreUnavailable(t *testing.T) {
	ts := setup(t, history.NewUnavailable(errors.New("connection refused")))

	resp := do(t, http.MethodGet, ts.URL+"/api/users/alice/top", "alice", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func dial(t *testing.T, ts *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+users[user])))

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", header)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func read(t *testing.T, ws *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f Frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func TestChat_RoundTrip(t *testing.T) {
	ts := setup(t, nil)
	ws := dial(t, ts, "alice")

	f := read(t, ws)
	assert.Equal(t, FrameMessage, f.Type)
	assert.Equal(t, chat.WelcomeText+chat.NoPreviousQueries, f.Content)
	assert.Equal(t, chat.NoFrequentQueries, read(t, ws).Content)

	require.NoError(t, ws.WriteJSON(Frame{Type: FrameMessage, Content: "list CVEs"}))
	f = read(t, ws)
	assert.Equal(t, "**Generated Cypher Query:**\n```\nMATCH (c:CVE) RETURN c.id\n```\n\n**Answer:**\nanswer to list CVEs", f.Content)

	offer := read(t, ws)
	require.Equal(t, FrameActions, offer.Type)
	require.NotEmpty(t, offer.ID)
	require.Len(t, offer.Actions, 2)
	assert.Equal(t, "list CVEs", offer.Actions[0].Value)
	assert.Equal(t, chat.ActionContinue, offer.Actions[1].Name)

	// A stale prompt id is rejected without ending the prompt.
	require.NoError(t, ws.WriteJSON(Frame{Type: FrameAction, ID: "stale", Value: "list CVEs"}))
	f = read(t, ws)
	assert.Equal(t, FrameError, f.Type)

	require.NoError(t, ws.WriteJSON(Frame{Type: FrameAction, ID: offer.ID, Value: "list CVEs"}))
	f = read(t, ws)
	assert.Contains(t, f.Content, "answer to list CVEs")

	offer = read(t, ws)
	require.Equal(t, FrameActions, offer.Type)
	require.NoError(t, ws.WriteJSON(Frame{Type: FrameAction, ID: offer.ID, Value: "continue"}))
	assert.Equal(t, chat.PleaseAsk, read(t, ws).Content)
}

func TestChat_MessageInterruptsPrompt(t *testing.T) {
	ts := setup(t, nil)
	ws := dial(t, ts, "bob")

	read(t, ws)
	read(t, ws)

	require.NoError(t, ws.WriteJSON(Frame{Type: FrameMessage, Content: "first"}))
	read(t, ws)
	require.Equal(t, FrameActions, read(t, ws).Type)

	require.NoError(t, ws.WriteJSON(Frame{Type: FrameMessage, Content: "second"}))
	f := read(t, ws)
	assert.Contains(t, f.Content, "answer to second")
	require.Equal(t, FrameActions, read(t, ws).Type)

	require.NoError(t, ws.WriteJSON(Frame{Type: FrameFeedback, Query: "second", Rating: "good"}))
	assert.Equal(t, chat.FeedbackThanks, read(t, ws).Content)
}

func TestChat_RequiresAuth(t *testing.T) {
	ts := setup(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
