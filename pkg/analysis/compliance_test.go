package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudit-server/pkg/stt"
)

func testPhrases() PhraseSet {
	return PhraseSet{
		Greetings:   []string{"thank you for calling", "hello"},
		Closing:     []string{"have a great day"},
		Disclaimers: []string{"this call may be recorded"},
	}
}

func TestDetectPhrasesCaseInsensitive(t *testing.T) {
	checker := NewComplianceChecker(newTestLogger(), testPhrases())

	detected := checker.DetectPhrases("HELLO, Thank You For Calling support.", checker.Phrases().Greetings)
	assert.ElementsMatch(t, []string{"thank you for calling", "hello"}, detected)
}

func TestDetectPhrasesAbsent(t *testing.T) {
	checker := NewComplianceChecker(newTestLogger(), testPhrases())

	detected := checker.DetectPhrases("goodbye then", checker.Phrases().Closing)
	assert.Empty(t, detected)
}

func TestCheckReportsAllLists(t *testing.T) {
	checker := NewComplianceChecker(newTestLogger(), testPhrases())

	report := checker.Check("Hello! This call may be recorded. Have a great day.")
	require.NotNil(t, report)

	assert.Equal(t, []string{"hello"}, report.DetectedGreetings)
	assert.Equal(t, []string{"have a great day"}, report.DetectedClosing)
	assert.Equal(t, []string{"this call may be recorded"}, report.DetectedDisclaimers)
}

func TestTimeMarkers(t *testing.T) {
	checker := NewComplianceChecker(newTestLogger(), testPhrases())

	segments := []stt.Segment{
		{Start: 0, End: 3, Text: "Hello and welcome"},
		{Start: 3, End: 7, Text: "this call may be recorded for training"},
		{Start: 7, End: 10, Text: "let me check that"},
	}

	markers := checker.TimeMarkers(segments, checker.Phrases().Disclaimers)
	require.Len(t, markers, 1)
	assert.Equal(t, "this call may be recorded", markers[0].Phrase)
	assert.Equal(t, 3.0, markers[0].Start)
	assert.Equal(t, 7.0, markers[0].End)
}
