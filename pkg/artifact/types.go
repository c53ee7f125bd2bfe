package artifact

import (
	"encoding/json"
	"fmt"
	"time"

	"callaudit-server/pkg/fingerprint"
)

// Stage identifies one named analysis output. A stage together with a
// fingerprint forms the key under which artifacts are stored and cached.
type Stage string

const (
	StageTranscription Stage = "transcription"
	StageCompliance    Stage = "compliance"
	StageProfanity     Stage = "profanity"
	StagePII           Stage = "pii"
	StageMasked        Stage = "masked"
	StageSentiment     Stage = "sentiment"
	StageCategory      Stage = "category"
	StageDiarization   Stage = "diarization"
	StageAnalysis      Stage = "analysis"
)

// Stages lists every known stage name.
var Stages = []Stage{
	StageTranscription,
	StageCompliance,
	StageProfanity,
	StagePII,
	StageMasked,
	StageSentiment,
	StageCategory,
	StageDiarization,
	StageAnalysis,
}

// Valid reports whether s is a known stage name.
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

func (s Stage) String() string {
	return string(s)
}

// ParseStage converts a string into a Stage, rejecting unknown names.
func ParseStage(name string) (Stage, error) {
	s := Stage(name)
	if !s.Valid() {
		return "", fmt.Errorf("unknown stage %q", name)
	}
	return s, nil
}

// Artifact is the immutable stored result of one stage for one fingerprint.
// The full fingerprint travels inside the envelope so that a read through the
// short path prefix can be verified before the value is trusted.
type Artifact struct {
	Stage       Stage                   `json:"stage"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	VersionID   string                  `json:"version_id"`
	CreatedAt   time.Time               `json:"created_at"`
	Value       json.RawMessage         `json:"value"`
}

// Decode unmarshals the artifact value into out.
func (a *Artifact) Decode(out interface{}) error {
	return json.Unmarshal(a.Value, out)
}

// Handle identifies where a stored artifact landed.
type Handle struct {
	Stage     Stage     `json:"stage"`
	VersionID string    `json:"version_id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}
