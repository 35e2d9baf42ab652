package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/threadline/internal/adapters/messaging/memory"
	"github.com/username/threadline/internal/adapters/responder/mock"
	"github.com/username/threadline/internal/adapters/storage/sqlite"
	"github.com/username/threadline/internal/domain/metrics"
	"github.com/username/threadline/internal/domain/services"
	"github.com/username/threadline/internal/pkg/httputil"
)

type apiFixture struct {
	router   *gin.Engine
	store    *services.ConversationStore
	workflow *services.SendWorkflow
	bus      *memory.Adapter
}

func newAPIFixture(t *testing.T, mutate func(*Dependencies)) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := services.NewConversationStore(nil)
	collector := metrics.NewCollector()
	responder := mock.NewResponder(mock.Config{
		MinResultDelay: time.Millisecond,
		MaxResultDelay: 2 * time.Millisecond,
		Seed:           1,
	}, nil)
	workflow := services.NewSendWorkflow(store, responder, collector, nil, services.DefaultSendWorkflowConfig())
	bus := memory.NewAdapter(nil)
	t.Cleanup(func() {
		_ = workflow.Shutdown(context.Background())
		bus.Close()
	})

	deps := Dependencies{
		Store:     store,
		Workflow:  workflow,
		Messaging: bus,
		Metrics:   collector,
	}
	if mutate != nil {
		mutate(&deps)
	}

	router := gin.New()
	NewAPIHandlers(deps).SetupRoutes(router, httputil.DefaultMiddlewareConfig)
	return &apiFixture{router: router, store: store, workflow: workflow, bus: bus}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, httputil.StandardResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var resp httputil.StandardResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func dataMap(t *testing.T, resp httputil.StandardResponse) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data should be an object, got %T", resp.Data)
	return data
}

func TestHealth(t *testing.T) {
	t.Run("ledger disabled", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		w, _ := f.do(t, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["messaging"])
		assert.Equal(t, "disabled", body["ledger"])
	})

	t.Run("ledger enabled", func(t *testing.T) {
		ledger, err := sqlite.NewAdapter(sqlite.MemoryPath, nil)
		require.NoError(t, err)
		t.Cleanup(func() { ledger.Close() })

		f := newAPIFixture(t, func(d *Dependencies) { d.Ledger = ledger })
		w, _ := f.do(t, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"ledger":"ok"`)
	})

	t.Run("messaging down", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		require.NoError(t, f.bus.Close())

		w, _ := f.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"messaging":"error"`)
	})
}

func TestConversationLifecycle(t *testing.T) {
	f := newAPIFixture(t, nil)

	w, resp := f.do(t, http.MethodPost, "/api/v1/conversations", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	first := dataMap(t, resp)["id"].(string)

	_, resp = f.do(t, http.MethodPost, "/api/v1/conversations", nil)
	second := dataMap(t, resp)["id"].(string)
	assert.NotEqual(t, first, second)

	_, resp = f.do(t, http.MethodGet, "/api/v1/conversations", nil)
	list := dataMap(t, resp)
	assert.Equal(t, second, list["active_conversation_id"])
	conversations := list["conversations"].([]interface{})
	require.Len(t, conversations, 2)
	assert.Equal(t, second, conversations[0].(map[string]interface{})["id"])
	assert.Equal(t, float64(0), conversations[0].(map[string]interface{})["message_count"])
	assert.Equal(t, float64(2), resp.Meta.(map[string]interface{})["total"])

	w, _ = f.do(t, http.MethodPut, "/api/v1/conversations/"+first+"/select", nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, resp = f.do(t, http.MethodGet, "/api/v1/conversations/active", nil)
	assert.Equal(t, first, dataMap(t, resp)["id"])

	w, _ = f.do(t, http.MethodGet, "/api/v1/conversations/"+second, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(t, http.MethodDelete, "/api/v1/conversations/"+first, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(t, http.MethodDelete, "/api/v1/conversations/"+first, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = f.do(t, http.MethodGet, "/api/v1/conversations/active", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no active conversation", resp.Error)

	w, _ = f.do(t, http.MethodGet, "/api/v1/conversations/"+first, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListConversations_Pagination(t *testing.T) {
	f := newAPIFixture(t, nil)
	for i := 0; i < 5; i++ {
		f.store.CreateConversation()
	}

	_, resp := f.do(t, http.MethodGet, "/api/v1/conversations?limit=2&offset=4", nil)
	assert.Len(t, dataMap(t, resp)["conversations"], 1)

	_, resp = f.do(t, http.MethodGet, "/api/v1/conversations?offset=50", nil)
	assert.Len(t, dataMap(t, resp)["conversations"], 0)
}

func TestSendMessage(t *testing.T) {
	f := newAPIFixture(t, nil)

	w, resp := f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{"content": "  What is 2+2?  "})
	require.Equal(t, http.StatusAccepted, w.Code)
	data := dataMap(t, resp)
	convID := data["conversation_id"].(string)
	assistantID := data["assistant_message_id"].(string)

	f.workflow.Wait()

	conv, ok := f.store.Conversation(convID)
	require.True(t, ok)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "What is 2+2?", conv.Messages[0].Content)
	assert.Equal(t, assistantID, conv.Messages[1].ID)
	assert.False(t, conv.Messages[1].IsLoading)
	assert.NotEmpty(t, conv.Messages[1].Content)

	_, resp = f.do(t, http.MethodGet, "/api/v1/system/metrics", nil)
	flow := dataMap(t, resp)["send_flow"].(map[string]interface{})
	assert.Equal(t, float64(1), flow["submitted"])
	assert.Equal(t, float64(1), flow["resolved"])
}

func TestSendMessage_Errors(t *testing.T) {
	f := newAPIFixture(t, nil)

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"blank content", map[string]string{"content": "   "}, http.StatusBadRequest},
		{"malformed body", "not an object", http.StatusBadRequest},
		{"unknown conversation", map[string]string{"conversation_id": "nope", "content": "hi"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := f.do(t, http.MethodPost, "/api/v1/messages", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, resp.Success)
		})
	}

	t.Run("after shutdown", func(t *testing.T) {
		require.NoError(t, f.workflow.Shutdown(context.Background()))
		w, _ := f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{"content": "hi"})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestSendMessage_RateLimited(t *testing.T) {
	f := newAPIFixture(t, func(d *Dependencies) {
		d.Limiter = httputil.NewRateLimiter(0.001, 1)
	})

	w, _ := f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{"content": "one"})
	assert.Equal(t, http.StatusAccepted, w.Code)

	w, resp := f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{"content": "two"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate limited", resp.Error)

	// reads are not limited
	w, _ = f.do(t, http.MethodGet, "/api/v1/conversations", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSystemConnections(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.store.CreateConversation()

	_, resp := f.do(t, http.MethodGet, "/api/v1/system/connections", nil)
	data := dataMap(t, resp)
	assert.Equal(t, float64(1), data["conversations"])
	assert.Equal(t, "memory", data["messaging"].(map[string]interface{})["backend"])
}
