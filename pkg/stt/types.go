package stt

// Segment is one time-stamped span of transcribed text.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription is the full output of the speech-to-text collaborator.
type Transcription struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Empty reports whether the transcription carries no usable text.
func (t *Transcription) Empty() bool {
	return t == nil || t.Text == ""
}

// Sentiment is the label/score pair produced by the sentiment collaborator.
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}
