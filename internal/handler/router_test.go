package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/spatial-agent/backend/internal/handler/speech"
	conv "github.com/zhouzirui/spatial-agent/backend/internal/service/conversation"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/pipeline"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/session"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/static"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	syn := static.NewSynthesizer(nil)
	orch := pipeline.NewOrchestrator(static.Transcriber{}, static.Generator{}, syn, pipeline.Options{})
	reg := session.NewRegistry("", conv.Options{}, nil)
	ws := speech.NewWebSocketHandler(orch, reg, speech.WebSocketOptions{}, nil)
	return NewRouter(ws, speech.New(static.Transcriber{}, syn, "", nil), nil)
}

func TestReadiness(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Spatial Agent backend is running."}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")
}

func TestCORSOnSimpleRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://example.test")
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://example.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSpeechHealthMounted(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/speech/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"speech"}`, rec.Body.String())
}

func TestWebSocketRouteRejectsPlainGET(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
