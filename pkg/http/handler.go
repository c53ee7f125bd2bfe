package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callaudit-server/pkg/artifact"
	"callaudit-server/pkg/errors"
	"callaudit-server/pkg/fingerprint"
	"callaudit-server/pkg/pipeline"
)

// requestIDMiddleware tags every request with an X-Request-ID header,
// generating one when the client did not supply it
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

// StageHandlers manages the HTTP endpoints for the analysis stages
type StageHandlers struct {
	pipeline  *pipeline.Orchestrator
	store     artifact.Store
	logger    *logrus.Logger
	maxUpload int64
}

// NewStageHandlers creates the stage endpoint handlers
func NewStageHandlers(logger *logrus.Logger, orch *pipeline.Orchestrator, store artifact.Store, maxUpload int64) *StageHandlers {
	return &StageHandlers{
		pipeline:  orch,
		store:     store,
		logger:    logger,
		maxUpload: maxUpload,
	}
}

// stageEndpoints maps URL paths to analysis stages
var stageEndpoints = map[string]artifact.Stage{
	"/transcribe":         artifact.StageTranscription,
	"/compliance":         artifact.StageCompliance,
	"/profanity":          artifact.StageProfanity,
	"/pii":                artifact.StagePII,
	"/mask_transcript":    artifact.StageMasked,
	"/sentiment_analysis": artifact.StageSentiment,
	"/categorization":     artifact.StageCategory,
	"/diarization":        artifact.StageDiarization,
	"/analyze":            artifact.StageAnalysis,
}

// RegisterStageEndpoints registers one POST endpoint per analysis stage
// plus the artifact listing endpoint
func (s *Server) RegisterStageEndpoints(handlers *StageHandlers) {
	for path, stage := range stageEndpoints {
		s.RegisterHandler(path, handlers.stageHandler(stage))
	}
	s.RegisterHandler("/api/artifacts", handlers.ListArtifactsHandler)
}

// StageResponse wraps a stage artifact for HTTP delivery
type StageResponse struct {
	Stage       string          `json:"stage"`
	Fingerprint string          `json:"fingerprint"`
	VersionID   string          `json:"version_id"`
	CreatedAt   time.Time       `json:"created_at"`
	Result      json.RawMessage `json:"result"`
}

// stageHandler returns the handler for one analysis stage
func (h *StageHandlers) stageHandler(stage artifact.Stage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		audio, err := h.readAudio(r)
		if err != nil {
			h.logger.WithError(err).WithField("stage", stage.String()).Warn("Failed to read audio upload")
			errors.WriteError(w, err)
			return
		}

		art, err := h.pipeline.Run(r.Context(), stage, audio)
		if err != nil {
			h.logger.WithError(err).WithField("stage", stage.String()).Error("Stage execution failed")
			errors.WriteError(w, err)
			return
		}

		response := StageResponse{
			Stage:       string(art.Stage),
			Fingerprint: string(art.Fingerprint),
			VersionID:   art.VersionID,
			CreatedAt:   art.CreatedAt,
			Result:      art.Value,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}

// readAudio extracts the uploaded audio bytes from either a multipart form
// ("file" field) or a raw request body
func (h *StageHandlers) readAudio(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, h.maxUpload)

	contentType := r.Header.Get("Content-Type")
	if len(contentType) >= 19 && contentType[:19] == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, errors.NewInvalidInput("multipart upload is missing the file field")
		}
		defer file.Close()

		audio, err := io.ReadAll(file)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read uploaded file")
		}
		if len(audio) == 0 {
			return nil, errors.NewInvalidInput("uploaded file is empty")
		}
		return audio, nil
	}

	audio, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read request body")
	}
	if len(audio) == 0 {
		return nil, errors.NewInvalidInput("request body is empty")
	}
	return audio, nil
}

// ArtifactListResponse lists the stored versions for one (stage, fingerprint)
type ArtifactListResponse struct {
	Stage       string               `json:"stage"`
	Fingerprint string               `json:"fingerprint"`
	Count       int                  `json:"count"`
	Artifacts   []*artifact.Artifact `json:"artifacts"`
}

// ListArtifactsHandler serves the version history for a stage and fingerprint
func (h *StageHandlers) ListArtifactsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stageName := r.URL.Query().Get("stage")
	stage, err := artifact.ParseStage(stageName)
	if err != nil {
		errors.WriteError(w, errors.NewInvalidInput("unknown stage").WithField("stage", stageName))
		return
	}

	fp := fingerprint.Fingerprint(r.URL.Query().Get("fingerprint"))
	if fp.IsZero() {
		errors.WriteError(w, errors.NewInvalidInput("fingerprint query parameter is required"))
		return
	}

	artifacts, err := h.store.List(r.Context(), stage, fp)
	if err != nil {
		h.logger.WithError(err).Error("Artifact listing failed")
		errors.WriteError(w, err)
		return
	}

	response := ArtifactListResponse{
		Stage:       stage.String(),
		Fingerprint: string(fp),
		Count:       len(artifacts),
		Artifacts:   artifacts,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
