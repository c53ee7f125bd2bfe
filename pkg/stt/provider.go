package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"callaudit-server/pkg/diarize"
)

// Transcriber converts raw audio bytes into a transcription. Implementations
// wrap external engines and may take seconds to minutes; results stay
// valuable even when the original requester is gone, so callers typically
// invoke them on a detached context.
type Transcriber interface {
	// Name returns the provider name
	Name() string

	// Transcribe converts audio bytes to text with time-stamped segments
	Transcribe(ctx context.Context, audio []byte) (*Transcription, error)
}

// Diarizer segments raw audio into speaker turns with opaque speaker labels.
type Diarizer interface {
	// Name returns the provider name
	Name() string

	// Diarize returns the speaker turns of the conversation
	Diarize(ctx context.Context, audio []byte) ([]diarize.Turn, error)
}

// SentimentProvider scores free text with a sentiment label.
type SentimentProvider interface {
	// Name returns the provider name
	Name() string

	// Analyze returns the sentiment of the given text
	Analyze(ctx context.Context, text string) (*Sentiment, error)
}

// Registry holds the configured collaborator providers by name and serves
// lookups with a default-provider fallback.
type Registry struct {
	logger *logrus.Logger

	mu           sync.RWMutex
	transcribers map[string]Transcriber
	diarizers    map[string]Diarizer
	sentiments   map[string]SentimentProvider

	defaultName string
}

// NewRegistry creates a provider registry with the given default provider name.
func NewRegistry(logger *logrus.Logger, defaultName string) *Registry {
	return &Registry{
		logger:       logger,
		transcribers: make(map[string]Transcriber),
		diarizers:    make(map[string]Diarizer),
		sentiments:   make(map[string]SentimentProvider),
		defaultName:  normalizeName(defaultName),
	}
}

func normalizeName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

// RegisterTranscriber adds a transcription provider.
func (r *Registry) RegisterTranscriber(p Transcriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transcribers[normalizeName(p.Name())] = p
	r.logger.WithField("provider", p.Name()).Info("Registered transcription provider")
}

// RegisterDiarizer adds a diarization provider.
func (r *Registry) RegisterDiarizer(p Diarizer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.diarizers[normalizeName(p.Name())] = p
	r.logger.WithField("provider", p.Name()).Info("Registered diarization provider")
}

// RegisterSentiment adds a sentiment provider.
func (r *Registry) RegisterSentiment(p SentimentProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sentiments[normalizeName(p.Name())] = p
	r.logger.WithField("provider", p.Name()).Info("Registered sentiment provider")
}

// Transcriber returns the named transcription provider, falling back to the
// default when the name is unknown.
func (r *Registry) Transcriber(name string) (Transcriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.transcribers[normalizeName(name)]; ok {
		return p, nil
	}
	if p, ok := r.transcribers[r.defaultName]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("no transcription provider available for %q", name)
}

// Diarizer returns the named diarization provider with default fallback.
func (r *Registry) Diarizer(name string) (Diarizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.diarizers[normalizeName(name)]; ok {
		return p, nil
	}
	if p, ok := r.diarizers[r.defaultName]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("no diarization provider available for %q", name)
}

// Sentiment returns the named sentiment provider with default fallback.
func (r *Registry) Sentiment(name string) (SentimentProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.sentiments[normalizeName(name)]; ok {
		return p, nil
	}
	if p, ok := r.sentiments[r.defaultName]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("no sentiment provider available for %q", name)
}
