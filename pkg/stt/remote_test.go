package stt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudit-server/pkg/diarize"
)

func TestRemoteTranscribe(t *testing.T) {
	var receivedBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		receivedBody, _ = io.ReadAll(r.Body)

		json.NewEncoder(w).Encode(Transcription{
			Text: "hello from the service",
			Segments: []Segment{
				{Start: 0, End: 2, Text: "hello from the service"},
			},
		})
	}))
	defer server.Close()

	provider := NewRemoteProvider(newTestLogger(), RemoteConfig{TranscribeURL: server.URL})

	tr, err := provider.Transcribe(context.Background(), []byte("raw audio"))
	require.NoError(t, err)
	assert.Equal(t, "hello from the service", tr.Text)
	assert.Equal(t, []byte("raw audio"), receivedBody)
}

func TestRemoteTranscribeUnconfigured(t *testing.T) {
	provider := NewRemoteProvider(newTestLogger(), RemoteConfig{})

	_, err := provider.Transcribe(context.Background(), []byte("audio"))
	assert.Error(t, err)
}

func TestRemoteTranscribeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	provider := NewRemoteProvider(newTestLogger(), RemoteConfig{TranscribeURL: server.URL})

	_, err := provider.Transcribe(context.Background(), []byte("audio"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestRemoteDiarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]diarize.Turn{
			{Start: 0, End: 3, Speaker: "SPEAKER_00"},
			{Start: 3, End: 6, Speaker: "SPEAKER_01"},
		})
	}))
	defer server.Close()

	provider := NewRemoteProvider(newTestLogger(), RemoteConfig{DiarizeURL: server.URL})

	turns, err := provider.Diarize(context.Background(), []byte("audio"))
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "SPEAKER_00", turns[0].Speaker)
}

func TestRemoteSentiment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "I love it", req.Text)

		json.NewEncoder(w).Encode(sentimentResponse{Label: "POSITIVE", Score: 0.98})
	}))
	defer server.Close()

	provider := NewRemoteProvider(newTestLogger(), RemoteConfig{SentimentURL: server.URL})

	sentiment, err := provider.Analyze(context.Background(), "I love it")
	require.NoError(t, err)
	assert.Equal(t, "POSITIVE", sentiment.Label)
	assert.InDelta(t, 0.98, sentiment.Score, 1e-9)
}

func TestRemoteSentimentInBandError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sentimentResponse{Error: "text too long"})
	}))
	defer server.Close()

	provider := NewRemoteProvider(newTestLogger(), RemoteConfig{SentimentURL: server.URL})

	_, err := provider.Analyze(context.Background(), "some text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text too long")
}

func TestRemoteRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	provider := NewRemoteProvider(newTestLogger(), RemoteConfig{TranscribeURL: server.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Transcribe(ctx, []byte("audio"))
	assert.Error(t, err)
}
