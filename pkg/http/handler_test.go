package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudit-server/pkg/analysis"
	"callaudit-server/pkg/artifact"
	"callaudit-server/pkg/cache"
	"callaudit-server/pkg/diarize"
	"callaudit-server/pkg/fingerprint"
	"callaudit-server/pkg/pipeline"
	"callaudit-server/pkg/stt"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

// newTestServer builds a server backed by a real orchestrator with mock
// analysis providers.
func newTestServer(t *testing.T) (*Server, artifact.Store) {
	t.Helper()
	logger := newTestLogger()

	store, err := artifact.NewFileStore(logger, t.TempDir())
	require.NoError(t, err)
	tiered := cache.New(logger, store)

	providers := stt.NewRegistry(logger, "mock")
	providers.RegisterTranscriber(stt.NewMockTranscriber(logger))
	providers.RegisterDiarizer(stt.NewMockDiarizer(logger))
	providers.RegisterSentiment(stt.NewMockSentiment(logger))

	sensitive, err := analysis.NewSensitiveInfoDetector(logger, analysis.SensitiveConfig{
		PIIPatterns: map[string]string{
			"email": `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
		},
	})
	require.NoError(t, err)

	compliance := analysis.NewComplianceChecker(logger, analysis.PhraseSet{
		Greetings:   []string{"thank you for calling"},
		Disclaimers: []string{"this call may be recorded"},
	})
	categorizer := analysis.NewCategorizer(logger, map[string][]string{
		"billing": {"charged", "refund"},
	})
	roleAssigner := diarize.NewRoleAssigner(logger, nil)

	orch := pipeline.New(logger, tiered, providers, compliance, sensitive, categorizer, roleAssigner)

	server := NewServer(logger, &Config{
		Port:           18080,
		MaxUploadBytes: 1 << 20,
	})
	handlers := NewStageHandlers(logger, orch, store, 1<<20)
	server.RegisterStageEndpoints(handlers)

	return server, store
}

func TestStageEndpointTranscribe(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/transcribe", bytes.NewReader([]byte("call audio")))
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp StageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "transcription", resp.Stage)
	assert.NotEmpty(t, resp.Fingerprint)
	assert.NotEmpty(t, resp.VersionID)

	var tr stt.Transcription
	require.NoError(t, json.Unmarshal(resp.Result, &tr))
	assert.False(t, tr.Empty())
}

func TestStageEndpointMultipartUpload(t *testing.T) {
	server, _ := newTestServer(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "call.wav")
	require.NoError(t, err)
	_, err = part.Write([]byte("call audio"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/sentiment_analysis", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sentiment", resp.Stage)
}

func TestStageEndpointEmptyBody(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/transcribe", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStageEndpointRejectsGet(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/transcribe", nil)
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRepeatedRequestServesSameVersion(t *testing.T) {
	server, _ := newTestServer(t)
	audio := []byte("call audio")

	run := func() StageResponse {
		req := httptest.NewRequest(http.MethodPost, "/categorization", bytes.NewReader(audio))
		rec := httptest.NewRecorder()
		server.mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp StageResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	first := run()
	second := run()
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.VersionID, second.VersionID)
}

func TestListArtifacts(t *testing.T) {
	server, store := newTestServer(t)

	fp := fingerprint.Compute([]byte("call audio"))
	handle, err := store.Put(context.Background(), artifact.StagePII, fp, map[string]string{"email": "none"})
	require.NoError(t, err)

	url := fmt.Sprintf("/api/artifacts?stage=pii&fingerprint=%s", fp)
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ArtifactListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pii", resp.Stage)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Artifacts, 1)
	assert.Equal(t, handle.VersionID, resp.Artifacts[0].VersionID)
}

func TestListArtifactsUnknownStage(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/artifacts?stage=bogus&fingerprint=abc", nil)
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListArtifactsMissingFingerprint(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/artifacts?stage=pii", nil)
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
}

func TestRequestIDMiddleware(t *testing.T) {
	server, _ := newTestServer(t)

	handler := requestIDMiddleware(server.mux)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "caller-supplied", rec.Header().Get("X-Request-ID"))
}
