package ensemble

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *Manager) {
	t.Helper()
	examples, targets := referenceCorpus()
	m := NewManager(DefaultConfig())
	require.NoError(t, m.TrainAll(context.Background(), examples, targets))
	return NewServer(m, nil, nil, 0), m
}

func TestHandlePredict(t *testing.T) {
	s, m := newTestServer(t)
	examples, _ := referenceCorpus()

	body, err := json.Marshal(PredictRequest{Components: examples[0], RequestID: "req-1"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.handlePredict(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp PredictResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, m.Best(), resp.Prediction.Method)
	assert.Len(t, resp.Prediction.Components, 4)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestHandlePredictExplicitStrategy(t *testing.T) {
	s, _ := newTestServer(t)
	examples, _ := referenceCorpus()

	body, err := json.Marshal(PredictRequest{Components: examples[0], Strategy: "dynamic"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.handlePredict(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp PredictResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "dynamic", resp.Prediction.Method)
}

func TestHandlePredictClampsConfidences(t *testing.T) {
	s, _ := newTestServer(t)

	req := PredictRequest{Components: []PredictionComponent{
		{Name: "theme_match", Score: 0.8, Confidence: 3.5},
		{Name: "audio_features", Score: 0.6, Confidence: -1.0},
		{Name: "voter_preference", Score: 0.7, Confidence: 0.8},
		{Name: "historical", Score: 0.75, Confidence: 0.6},
	}}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.handlePredict(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp PredictResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	for _, c := range resp.Prediction.Components {
		assert.GreaterOrEqual(t, c.Confidence, 0.0)
		assert.LessOrEqual(t, c.Confidence, 1.0)
	}
}

func TestHandlePredictRejectsBadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{not json", http.StatusBadRequest},
		{"empty components", http.MethodPost, `{"components":[]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.handlePredict(rec, httptest.NewRequest(tt.method, "/predict", strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHandleRankings(t *testing.T) {
	s, m := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleRankings(rec, httptest.NewRequest(http.MethodGet, "/rankings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Trained  bool      `json:"trained"`
		Best     string    `json:"best"`
		Rankings []Ranking `json:"rankings"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Trained)
	assert.Equal(t, m.Best(), resp.Best)
	assert.Len(t, resp.Rankings, 6)
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status     string   `json:"status"`
		Strategies []string `json:"strategies"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Strategies, 6)
}

func TestPredictionHistoryRecorded(t *testing.T) {
	examples, targets := referenceCorpus()
	m := NewManager(DefaultConfig())
	require.NoError(t, m.TrainAll(context.Background(), examples, targets))

	history := &captureHistory{}
	s := NewServer(m, history, nil, 0)

	body, err := json.Marshal(PredictRequest{Components: examples[0]})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.handlePredict(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, history.stored, 1)
	assert.Equal(t, m.Best(), history.stored[0].Method)
}

func TestWebsocketStream(t *testing.T) {
	s, m := newTestServer(t)
	examples, _ := referenceCorpus()

	ts := httptest.NewServer(http.HandlerFunc(s.handleWS))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration happens in the handler goroutine after the handshake.
	deadline := time.Now().Add(2 * time.Second)
	for s.clientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	pred, err := m.Predict(examples[0], "")
	require.NoError(t, err)
	s.broadcast(pred)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got EnsemblePrediction
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, pred.Method, got.Method)
	assert.Equal(t, pred.FinalScore, got.FinalScore)
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

type captureHistory struct {
	stored []EnsemblePrediction
}

func (c *captureHistory) StorePrediction(p EnsemblePrediction) error {
	c.stored = append(c.stored, p)
	return nil
}
