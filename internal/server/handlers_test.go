package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bandham-manikanta/qa-system/internal/config"
	"github.com/bandham-manikanta/qa-system/internal/domain"
	"github.com/bandham-manikanta/qa-system/internal/service"
)

type fakeService struct {
	answer     string
	answerErr  error
	refresh    service.RefreshResult
	refreshErr error
	stats      service.Stats
	statsErr   error

	lastQuestion string
	forced       bool
}

func (f *fakeService) Refresh(_ context.Context, force bool) (service.RefreshResult, error) {
	f.forced = force
	return f.refresh, f.refreshErr
}

func (f *fakeService) Answer(_ context.Context, question string) (string, error) {
	f.lastQuestion = question
	return f.answer, f.answerErr
}

func (f *fakeService) Stats(context.Context) (service.Stats, error) {
	return f.stats, f.statsErr
}

func newTestServer(svc Service) *Server {
	return NewServer(svc, &config.ServerConfig{Host: "127.0.0.1", Port: 0}, zap.NewNop())
}

func TestHandleAsk(t *testing.T) {
	svc := &fakeService{answer: "Marta moved to Berlin."}
	s := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/ask?question=where+is+Marta", nil)
	w := httptest.NewRecorder()
	s.handleAsk(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Marta moved to Berlin.", body["answer"])
	assert.Equal(t, "where is Marta", svc.lastQuestion)
}

func TestHandleAskRejectsShortQuestion(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc)

	for _, target := range []string{"/ask", "/ask?question=hi"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		s.handleAsk(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Empty(t, svc.lastQuestion, "service must not be called for %s", target)
	}
}

func TestHandleAskServiceError(t *testing.T) {
	s := newTestServer(&fakeService{answerErr: errors.New("model unavailable")})

	req := httptest.NewRequest(http.MethodGet, "/ask?question=anything+at+all", nil)
	w := httptest.NewRecorder()
	s.handleAsk(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "model unavailable")
}

func TestHandleRefresh(t *testing.T) {
	svc := &fakeService{refresh: service.RefreshResult{
		Messages: 42,
		Stats:    domain.IndexStats{Points: 42, Dimension: 1024, DimensionMatches: true, Initialized: true},
	}}
	s := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/refresh", nil)
	w := httptest.NewRecorder()
	s.handleRefresh(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.forced, "refresh endpoint must force a rebuild")
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 42, body["total_messages"])
}

func TestHandleStats(t *testing.T) {
	svc := &fakeService{stats: service.Stats{
		CorpusCount: 3,
		UniqueUsers: 2,
		TopUsers:    []service.UserCount{{Name: "Alice", Count: 2}, {Name: "Bryan", Count: 1}},
		Collection:  domain.IndexStats{Points: 3, Initialized: true},
	}}
	s := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	s.handleStats(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got service.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, svc.stats, got)
}

func TestHandleHealth(t *testing.T) {
	svc := &fakeService{stats: service.Stats{CorpusCount: 5}}
	s := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 5, body["messages_cached"])
}

func TestHandleHealthDegraded(t *testing.T) {
	s := newTestServer(&fakeService{statsErr: errors.New("store down")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
