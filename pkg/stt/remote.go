package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"callaudit-server/pkg/circuitbreaker"
	"callaudit-server/pkg/diarize"
	"callaudit-server/pkg/metrics"
	"callaudit-server/pkg/version"
)

// RemoteConfig points the remote providers at HTTP analysis services. Any
// service speaking the simple JSON contracts below works: a whisper-server
// style transcriber, a pyannote wrapper for diarization, a classifier
// endpoint for sentiment.
type RemoteConfig struct {
	TranscribeURL string        `json:"transcribe_url"`
	DiarizeURL    string        `json:"diarize_url"`
	SentimentURL  string        `json:"sentiment_url"`
	Timeout       time.Duration `json:"timeout"`
}

// RemoteProvider invokes external analysis services over HTTP. One instance
// serves all three collaborator roles; unset URLs make the corresponding
// calls fail fast.
type RemoteProvider struct {
	logger   *logrus.Logger
	config   RemoteConfig
	client   *http.Client
	breakers map[string]*circuitbreaker.Breaker
}

// NewRemoteProvider creates a remote collaborator client. Each role gets its
// own circuit breaker so a dead diarizer does not block transcription.
func NewRemoteProvider(logger *logrus.Logger, config RemoteConfig) *RemoteProvider {
	timeout := config.Timeout
	if timeout == 0 {
		// Transcription and diarization of long calls are slow.
		timeout = 5 * time.Minute
	}

	breakers := make(map[string]*circuitbreaker.Breaker)
	for _, role := range []string{"remote_transcribe", "remote_diarize", "remote_sentiment"} {
		breakers[role] = circuitbreaker.New(role, circuitbreaker.DefaultConfig(), logger)
	}

	return &RemoteProvider{
		logger:   logger,
		config:   config,
		client:   &http.Client{Timeout: timeout},
		breakers: breakers,
	}
}

// Name returns the provider name
func (p *RemoteProvider) Name() string {
	return "remote"
}

// Transcribe implements Transcriber by POSTing the audio bytes to the
// configured transcription endpoint.
func (p *RemoteProvider) Transcribe(ctx context.Context, audio []byte) (*Transcription, error) {
	if p.config.TranscribeURL == "" {
		return nil, fmt.Errorf("transcription endpoint is not configured")
	}

	stopTimer := metrics.ObserveCollaboratorLatency("remote_transcribe")
	defer stopTimer()

	var result Transcription
	err := p.breakers["remote_transcribe"].Do(ctx, func(ctx context.Context) error {
		return p.postAudio(ctx, p.config.TranscribeURL, audio, &result)
	})
	if err != nil {
		metrics.RecordCollaboratorRequest("remote_transcribe", "error")
		return nil, err
	}

	metrics.RecordCollaboratorRequest("remote_transcribe", "ok")
	return &result, nil
}

// Diarize implements Diarizer.
func (p *RemoteProvider) Diarize(ctx context.Context, audio []byte) ([]diarize.Turn, error) {
	if p.config.DiarizeURL == "" {
		return nil, fmt.Errorf("diarization endpoint is not configured")
	}

	stopTimer := metrics.ObserveCollaboratorLatency("remote_diarize")
	defer stopTimer()

	var turns []diarize.Turn
	err := p.breakers["remote_diarize"].Do(ctx, func(ctx context.Context) error {
		return p.postAudio(ctx, p.config.DiarizeURL, audio, &turns)
	})
	if err != nil {
		metrics.RecordCollaboratorRequest("remote_diarize", "error")
		return nil, err
	}

	metrics.RecordCollaboratorRequest("remote_diarize", "ok")
	return turns, nil
}

// sentimentRequest is the payload for the sentiment endpoint.
type sentimentRequest struct {
	Text string `json:"text"`
}

// sentimentResponse allows the service to report a failure in-band.
type sentimentResponse struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Error string  `json:"error,omitempty"`
}

// Analyze implements SentimentProvider.
func (p *RemoteProvider) Analyze(ctx context.Context, text string) (*Sentiment, error) {
	if p.config.SentimentURL == "" {
		return nil, fmt.Errorf("sentiment endpoint is not configured")
	}

	stopTimer := metrics.ObserveCollaboratorLatency("remote_sentiment")
	defer stopTimer()

	payload, err := json.Marshal(sentimentRequest{Text: text})
	if err != nil {
		return nil, err
	}

	var result sentimentResponse
	err = p.breakers["remote_sentiment"].Do(ctx, func(ctx context.Context) error {
		if err := p.post(ctx, p.config.SentimentURL, "application/json", payload, &result); err != nil {
			return err
		}
		if result.Error != "" {
			return fmt.Errorf("sentiment service error: %s", result.Error)
		}
		return nil
	})
	if err != nil {
		metrics.RecordCollaboratorRequest("remote_sentiment", "error")
		return nil, err
	}

	metrics.RecordCollaboratorRequest("remote_sentiment", "ok")
	return &Sentiment{Label: result.Label, Score: result.Score}, nil
}

func (p *RemoteProvider) postAudio(ctx context.Context, url string, audio []byte, out interface{}) error {
	return p.post(ctx, url, "application/octet-stream", audio, out)
}

func (p *RemoteProvider) post(ctx context.Context, url, contentType string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		p.logger.WithFields(logrus.Fields{
			"url":    url,
			"status": resp.StatusCode,
		}).Error("Collaborator request failed")
		return fmt.Errorf("collaborator returned status %d: %s", resp.StatusCode, string(snippet))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
