package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/fairweather/internal/state"
	"github.com/user/fairweather/internal/types"
)

type fakeAsker struct {
	mu       sync.Mutex
	lastID   types.ConversationID
	lastText string
	response string
	err      error
}

func (f *fakeAsker) Ask(_ context.Context, id types.ConversationID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastID, f.lastText = id, text
	return f.response, f.err
}

type fakeDeliverer struct {
	delivered map[types.ConversationID]string
}

func (f *fakeDeliverer) Deliver(_ context.Context, id types.ConversationID, msg string) error {
	if f.delivered == nil {
		f.delivered = map[types.ConversationID]string{}
	}
	f.delivered[id] = msg
	return nil
}

func setupServer(t *testing.T, asker Asker, opts []Option, briefings ...*state.Briefing) *Server {
	t.Helper()
	store := state.NewBriefingStore(filepath.Join(t.TempDir(), "briefings.json"))
	for _, b := range briefings {
		require.NoError(t, store.Add(b))
	}
	return NewServer(asker, store, opts...)
}

func do(t *testing.T, srv http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)

	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestHealth(t *testing.T) {
	srv := setupServer(t, &fakeAsker{}, nil)
	w, resp := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", resp["status"])
}

func TestMessages(t *testing.T) {
	asker := &fakeAsker{response: "Tomorrow looks sunny."}
	srv := setupServer(t, asker, nil)

	w, resp := do(t, srv, http.MethodPost, "/messages", `{"conversation_id":"alice","text":"  weather tomorrow? "}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Tomorrow looks sunny.", resp["response"])
	assert.Equal(t, types.ConversationID("http:alice"), asker.lastID)
	assert.Equal(t, "weather tomorrow?", asker.lastText)

	_, _ = do(t, srv, http.MethodPost, "/messages", `{"conversation_id":"telegram:42","text":"hi"}`)
	assert.Equal(t, types.ConversationID("telegram:42"), asker.lastID)
}

func TestMessages_BadRequests(t *testing.T) {
	srv := setupServer(t, &fakeAsker{}, nil)
	for name, body := range map[string]string{
		"invalid json":    `{`,
		"missing text":    `{"conversation_id":"a"}`,
		"blank text":      `{"conversation_id":"a","text":"   "}`,
		"missing conv id": `{"text":"hi"}`,
	} {
		t.Run(name, func(t *testing.T) {
			w, resp := do(t, srv, http.MethodPost, "/messages", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestMessages_GatewayStopped(t *testing.T) {
	srv := setupServer(t, &fakeAsker{err: errors.New("queue stopped")}, nil)
	w, _ := do(t, srv, http.MethodPost, "/messages", `{"conversation_id":"a","text":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBriefing(t *testing.T) {
	asker := &fakeAsker{response: "Light rain in London."}
	deliverer := &fakeDeliverer{}
	srv := setupServer(t, asker, []Option{WithDelivery(deliverer)}, &state.Briefing{
		Name:           "morning",
		ConversationID: "telegram:42",
		Location:       "London",
		Enabled:        true,
	})

	w, resp := do(t, srv, http.MethodPost, "/webhook/morning", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Light rain in London.", resp["response"])
	assert.Equal(t, types.ConversationID("telegram:42"), asker.lastID)
	assert.Equal(t, "What's the weather like in London today?", asker.lastText)
	assert.Equal(t, "Light rain in London.", deliverer.delivered["telegram:42"])
}

func TestBriefing_PromptOverride(t *testing.T) {
	asker := &fakeAsker{response: "ok"}
	srv := setupServer(t, asker, nil, &state.Briefing{Name: "b", ConversationID: "http:x", Enabled: true})

	w, _ := do(t, srv, http.MethodPost, "/webhook/b", `{"prompt":"weather in Oslo tonight"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "weather in Oslo tonight", asker.lastText)
}

func TestBriefing_HTTPConversationNotDelivered(t *testing.T) {
	deliverer := &fakeDeliverer{}
	srv := setupServer(t, &fakeAsker{response: "ok"}, []Option{WithDelivery(deliverer)},
		&state.Briefing{Name: "b", ConversationID: "http:x", Enabled: true})

	w, _ := do(t, srv, http.MethodPost, "/webhook/b", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, deliverer.delivered)
}

func TestBriefing_NotFoundOrDisabled(t *testing.T) {
	srv := setupServer(t, &fakeAsker{}, nil, &state.Briefing{Name: "off", ConversationID: "http:x"})

	w, _ := do(t, srv, http.MethodPost, "/webhook/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, srv, http.MethodPost, "/webhook/off", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTurnsAPI(t *testing.T) {
	turns := state.NewTranscriptStore(t.TempDir())
	ctx := context.Background()
	for _, u := range []string{"one", "two", "three"} {
		require.NoError(t, turns.Append(ctx, &types.Turn{ConversationID: "telegram:42", Utterance: u, Response: "r-" + u}))
	}
	srv := setupServer(t, &fakeAsker{}, []Option{WithTranscript(turns)})

	r := httptest.NewRequest(http.MethodGet, "/api/conversations/telegram:42/turns?limit=2", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var got []*types.Turn
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Utterance)
	assert.Equal(t, "three", got[1].Utterance)

	r = httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	var convs []conversationSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &convs))
	assert.Equal(t, []conversationSummary{{ConversationID: "telegram:42", Turns: 3}}, convs)

	w, _ = do(t, srv, http.MethodGet, "/api/conversations/telegram:42/turns?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTurnsAPI_NotConfigured(t *testing.T) {
	srv := setupServer(t, &fakeAsker{}, nil)
	w, _ := do(t, srv, http.MethodGet, "/api/conversations/x/turns", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
