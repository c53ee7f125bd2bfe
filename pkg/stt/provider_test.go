package stt

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func TestRegistryDefaultFallback(t *testing.T) {
	registry := NewRegistry(newTestLogger(), "mock")
	registry.RegisterTranscriber(NewMockTranscriber(newTestLogger()))

	// Unknown name falls back to the default provider.
	provider, err := registry.Transcriber("nonexistent")
	require.NoError(t, err)
	assert.Equal(t, "mock", provider.Name())

	provider, err = registry.Transcriber("")
	require.NoError(t, err)
	assert.Equal(t, "mock", provider.Name())
}

func TestRegistryLookupByName(t *testing.T) {
	registry := NewRegistry(newTestLogger(), "mock")
	registry.RegisterDiarizer(NewMockDiarizer(newTestLogger()))

	provider, err := registry.Diarizer("MOCK")
	require.NoError(t, err)
	assert.Equal(t, "mock", provider.Name())
}

func TestRegistryEmpty(t *testing.T) {
	registry := NewRegistry(newTestLogger(), "mock")

	_, err := registry.Sentiment("")
	assert.Error(t, err)
}

func TestMockTranscriberProducesSegments(t *testing.T) {
	provider := NewMockTranscriber(newTestLogger())

	tr, err := provider.Transcribe(context.Background(), []byte("audio"))
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.False(t, tr.Empty())
	assert.NotEmpty(t, tr.Segments)
	for _, seg := range tr.Segments {
		assert.Less(t, seg.Start, seg.End)
		assert.Contains(t, tr.Text, seg.Text)
	}
}

func TestMockDiarizerProducesTwoSpeakers(t *testing.T) {
	provider := NewMockDiarizer(newTestLogger())

	turns, err := provider.Diarize(context.Background(), []byte("audio"))
	require.NoError(t, err)
	require.NotEmpty(t, turns)

	speakers := make(map[string]bool)
	for _, turn := range turns {
		speakers[turn.Speaker] = true
	}
	assert.Len(t, speakers, 2)
}

func TestMockSentimentLabels(t *testing.T) {
	provider := NewMockSentiment(newTestLogger())
	ctx := context.Background()

	positive, err := provider.Analyze(ctx, "thank you, that was a great help")
	require.NoError(t, err)
	assert.Equal(t, "POSITIVE", positive.Label)

	negative, err := provider.Analyze(ctx, "this is terrible, cancel everything")
	require.NoError(t, err)
	assert.Equal(t, "NEGATIVE", negative.Label)

	neutral, err := provider.Analyze(ctx, "the sky is blue")
	require.NoError(t, err)
	assert.Equal(t, "NEUTRAL", neutral.Label)
}

func TestMockProvidersRespectCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockTranscriber(newTestLogger()).Transcribe(ctx, nil)
	assert.Error(t, err)

	_, err = NewMockDiarizer(newTestLogger()).Diarize(ctx, nil)
	assert.Error(t, err)
}
