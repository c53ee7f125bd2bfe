package pipeline

import (
	"callaudit-server/pkg/analysis"
	"callaudit-server/pkg/diarize"
	"callaudit-server/pkg/stt"
)

// ProfanityReport is the profanity stage artifact.
type ProfanityReport struct {
	Profanity []string `json:"profanity"`
}

// PIIReport is the pii stage artifact.
type PIIReport struct {
	Detected map[string][]string `json:"detected_pii"`
}

// MaskedTranscript is the masked stage artifact.
type MaskedTranscript struct {
	MaskedText string `json:"masked_text"`
}

// CategoryResult is the category stage artifact.
type CategoryResult struct {
	Category string `json:"call_category"`
}

// DiarizationResult is the diarization stage artifact: role-labeled turns
// plus the conversation metrics derived from them.
type DiarizationResult struct {
	Turns   []diarize.RoleTurn          `json:"turns"`
	Metrics diarize.ConversationMetrics `json:"diarization_metrics"`
}

// FullAnalysis is the combined analysis stage artifact. Sub-stages that
// failed are absent from the result and recorded in Errors by stage name;
// only a failed transcription aborts the whole analysis.
type FullAnalysis struct {
	MaskedTranscript   string                         `json:"masked_transcript"`
	DetectedPII        map[string][]string            `json:"detected_pii"`
	ComplianceMarkers  map[string][]analysis.TimeMarker `json:"compliance_markers"`
	Sentiment          *stt.Sentiment                 `json:"sentiment,omitempty"`
	DiarizationMetrics *diarize.ConversationMetrics   `json:"diarization_metrics,omitempty"`
	Category           string                         `json:"category"`
	Errors             map[string]string              `json:"errors,omitempty"`
}
