package stt

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"callaudit-server/pkg/diarize"
)

// MockTranscriber returns a canned two-speaker support conversation. It keeps
// the pipeline runnable without any external engines and its output is fixed,
// so cached artifacts stay deterministic across calls.
type MockTranscriber struct {
	logger *logrus.Logger
}

// NewMockTranscriber creates a mock transcription provider.
func NewMockTranscriber(logger *logrus.Logger) *MockTranscriber {
	return &MockTranscriber{logger: logger}
}

// Name returns the provider name
func (p *MockTranscriber) Name() string {
	return "mock"
}

var mockSegments = []Segment{
	{Start: 0.0, End: 4.0, Text: "Hello, thank you for calling customer support, how can I help you today?"},
	{Start: 4.5, End: 9.0, Text: "Hi, I was charged twice on my card ending 4242 and I want a refund."},
	{Start: 9.2, End: 14.0, Text: "I am sorry to hear that, let me pull up your billing details right away."},
	{Start: 14.5, End: 18.0, Text: "Sure, my email is jane.doe@example.com if you need it."},
	{Start: 18.2, End: 22.0, Text: "The duplicate charge has been refunded. Is there anything else I can do?"},
	{Start: 22.5, End: 24.0, Text: "No, that is all, thanks."},
	{Start: 24.2, End: 26.0, Text: "Thank you for calling, have a great day."},
}

// Transcribe implements Transcriber.
func (p *MockTranscriber) Transcribe(ctx context.Context, audio []byte) (*Transcription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.WithField("audio_bytes", len(audio)).Debug("Mock transcription")

	texts := make([]string, len(mockSegments))
	for i, seg := range mockSegments {
		texts[i] = seg.Text
	}

	return &Transcription{
		Text:     strings.Join(texts, " "),
		Segments: mockSegments,
	}, nil
}

// MockDiarizer returns canned speaker turns aligned with the mock
// transcription: SPEAKER_00 is the agent side, SPEAKER_01 the customer.
type MockDiarizer struct {
	logger *logrus.Logger
}

// NewMockDiarizer creates a mock diarization provider.
func NewMockDiarizer(logger *logrus.Logger) *MockDiarizer {
	return &MockDiarizer{logger: logger}
}

// Name returns the provider name
func (p *MockDiarizer) Name() string {
	return "mock"
}

// Diarize implements Diarizer.
func (p *MockDiarizer) Diarize(ctx context.Context, audio []byte) ([]diarize.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.WithField("audio_bytes", len(audio)).Debug("Mock diarization")

	return []diarize.Turn{
		{Start: 0.0, End: 4.2, Speaker: "SPEAKER_00"},
		{Start: 4.4, End: 9.1, Speaker: "SPEAKER_01"},
		{Start: 9.1, End: 14.2, Speaker: "SPEAKER_00"},
		{Start: 14.4, End: 18.1, Speaker: "SPEAKER_01"},
		{Start: 18.1, End: 22.2, Speaker: "SPEAKER_00"},
		{Start: 22.4, End: 24.1, Speaker: "SPEAKER_01"},
		{Start: 24.1, End: 26.2, Speaker: "SPEAKER_00"},
	}, nil
}

// MockSentiment scores text with a trivial keyword balance so dev-mode
// responses look plausible without a model.
type MockSentiment struct {
	logger *logrus.Logger
}

// NewMockSentiment creates a mock sentiment provider.
func NewMockSentiment(logger *logrus.Logger) *MockSentiment {
	return &MockSentiment{logger: logger}
}

// Name returns the provider name
func (p *MockSentiment) Name() string {
	return "mock"
}

var mockPositive = []string{"thank", "great", "refund", "help", "sorry"}
var mockNegative = []string{"charged twice", "complaint", "angry", "cancel", "terrible"}

// Analyze implements SentimentProvider.
func (p *MockSentiment) Analyze(ctx context.Context, text string) (*Sentiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lowered := strings.ToLower(text)
	score := 0
	for _, w := range mockPositive {
		score += strings.Count(lowered, w)
	}
	for _, w := range mockNegative {
		score -= strings.Count(lowered, w)
	}

	label := "POSITIVE"
	confidence := 0.75
	if score < 0 {
		label = "NEGATIVE"
	} else if score == 0 {
		label = "NEUTRAL"
		confidence = 0.5
	}

	return &Sentiment{Label: label, Score: confidence}, nil
}
