package analysis

import (
	"strings"

	"github.com/sirupsen/logrus"

	"callaudit-server/pkg/stt"
)

// PhraseSet holds the configured compliance phrase lists.
type PhraseSet struct {
	Greetings   []string `yaml:"greetings" json:"greetings"`
	Closing     []string `yaml:"closing" json:"closing"`
	Disclaimers []string `yaml:"disclaimers" json:"disclaimers"`
}

// TimeMarker locates one detected phrase inside the conversation timeline.
type TimeMarker struct {
	Phrase string  `json:"phrase"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
}

// ComplianceChecker detects required phrases (greetings, closings,
// disclaimers) in transcribed conversations.
type ComplianceChecker struct {
	logger  *logrus.Entry
	phrases PhraseSet
}

// NewComplianceChecker creates a checker over the given phrase lists.
func NewComplianceChecker(logger *logrus.Logger, phrases PhraseSet) *ComplianceChecker {
	return &ComplianceChecker{
		logger:  logger.WithField("component", "compliance_checker"),
		phrases: phrases,
	}
}

// Phrases returns the configured phrase lists.
func (c *ComplianceChecker) Phrases() PhraseSet {
	return c.phrases
}

// DetectPhrases returns the subset of phrases present in text,
// case-insensitively.
func (c *ComplianceChecker) DetectPhrases(text string, phrases []string) []string {
	lowered := strings.ToLower(text)

	detected := make([]string, 0)
	for _, phrase := range phrases {
		if strings.Contains(lowered, strings.ToLower(phrase)) {
			detected = append(detected, phrase)
		}
	}

	if len(detected) > 0 {
		c.logger.WithField("count", len(detected)).Debug("Compliance phrases detected")
	}

	return detected
}

// TimeMarkers finds where phrases occur in segmented transcript text,
// returning one marker per (segment, phrase) occurrence.
func (c *ComplianceChecker) TimeMarkers(segments []stt.Segment, phrases []string) []TimeMarker {
	markers := make([]TimeMarker, 0)
	for _, seg := range segments {
		loweredText := strings.ToLower(seg.Text)
		for _, phrase := range phrases {
			if strings.Contains(loweredText, strings.ToLower(phrase)) {
				markers = append(markers, TimeMarker{
					Phrase: phrase,
					Start:  seg.Start,
					End:    seg.End,
				})
			}
		}
	}

	return markers
}

// ComplianceReport is the compliance stage artifact.
type ComplianceReport struct {
	DetectedGreetings   []string `json:"detected_greetings"`
	DetectedClosing     []string `json:"detected_closing"`
	DetectedDisclaimers []string `json:"detected_disclaimers"`
}

// Check runs phrase detection for every configured list against text.
func (c *ComplianceChecker) Check(text string) *ComplianceReport {
	return &ComplianceReport{
		DetectedGreetings:   c.DetectPhrases(text, c.phrases.Greetings),
		DetectedClosing:     c.DetectPhrases(text, c.phrases.Closing),
		DetectedDisclaimers: c.DetectPhrases(text, c.phrases.Disclaimers),
	}
}
