package diarize

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudit-server/pkg/errors"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func TestAssignRolesPhraseEvidence(t *testing.T) {
	assigner := NewRoleAssigner(newTestLogger(), nil)

	turns := []Turn{
		{Start: 0, End: 5, Speaker: "SPEAKER_01"},
		{Start: 5, End: 10, Speaker: "SPEAKER_00"},
		{Start: 10, End: 15, Speaker: "SPEAKER_01"},
	}
	transcript := []Span{
		{Start: 0, End: 4, Text: "Hello, thank you for calling, how can I help you?"},
		{Start: 5, End: 9, Text: "I have a problem with my bill."},
		{Start: 10, End: 14, Text: "Is there anything else? Have a great day."},
	}

	labeled, err := assigner.AssignRoles(turns, transcript)
	require.NoError(t, err)
	require.Len(t, labeled, len(turns))

	assert.Equal(t, RoleAgent, labeled[0].Role)
	assert.Equal(t, RoleCustomer, labeled[1].Role)
	assert.Equal(t, RoleAgent, labeled[2].Role)
}

func TestAssignRolesPreservesOrderAndTiming(t *testing.T) {
	assigner := NewRoleAssigner(newTestLogger(), nil)

	turns := []Turn{
		{Start: 0, End: 3, Speaker: "A"},
		{Start: 3, End: 7, Speaker: "B"},
		{Start: 7, End: 9, Speaker: "A"},
		{Start: 9, End: 12, Speaker: "B"},
	}

	labeled, err := assigner.AssignRoles(turns, nil)
	require.NoError(t, err)
	require.Len(t, labeled, len(turns))

	for i, rt := range labeled {
		assert.Equal(t, turns[i].Start, rt.Start)
		assert.Equal(t, turns[i].End, rt.End)
		assert.Equal(t, turns[i].Speaker, rt.Speaker)
	}
}

func TestAssignRolesRejectsSingleSpeaker(t *testing.T) {
	assigner := NewRoleAssigner(newTestLogger(), nil)

	turns := []Turn{
		{Start: 0, End: 5, Speaker: "A"},
		{Start: 5, End: 10, Speaker: "A"},
	}

	labeled, err := assigner.AssignRoles(turns, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSpeakerCount))
	assert.Nil(t, labeled, "no partial assignment on failure")
}

func TestAssignRolesRejectsThreeSpeakers(t *testing.T) {
	assigner := NewRoleAssigner(newTestLogger(), nil)

	turns := []Turn{
		{Start: 0, End: 5, Speaker: "A"},
		{Start: 5, End: 10, Speaker: "B"},
		{Start: 10, End: 15, Speaker: "C"},
	}

	_, err := assigner.AssignRoles(turns, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSpeakerCount))
}

func TestAssignRolesTieBreaksDeterministically(t *testing.T) {
	assigner := NewRoleAssigner(newTestLogger(), nil)

	// No transcript, so both speakers score zero.
	turns := []Turn{
		{Start: 0, End: 5, Speaker: "SPEAKER_01"},
		{Start: 5, End: 10, Speaker: "SPEAKER_00"},
	}
	reversed := []Turn{turns[1], turns[0]}

	labeled, err := assigner.AssignRoles(turns, nil)
	require.NoError(t, err)
	labeledReversed, err := assigner.AssignRoles(reversed, nil)
	require.NoError(t, err)

	// The lexicographically smaller speaker becomes the agent either way.
	for _, rt := range labeled {
		if rt.Speaker == "SPEAKER_00" {
			assert.Equal(t, RoleAgent, rt.Role)
		} else {
			assert.Equal(t, RoleCustomer, rt.Role)
		}
	}
	for _, rt := range labeledReversed {
		if rt.Speaker == "SPEAKER_00" {
			assert.Equal(t, RoleAgent, rt.Role)
		} else {
			assert.Equal(t, RoleCustomer, rt.Role)
		}
	}
}

func TestAssignRolesSpanContainment(t *testing.T) {
	assigner := NewRoleAssigner(newTestLogger(), []string{"how can i help you"})

	turns := []Turn{
		{Start: 0, End: 5, Speaker: "A"},
		{Start: 5, End: 10, Speaker: "B"},
	}

	// The phrase sits in a span that straddles the turn boundary, so it is
	// evidence for neither turn; the tie-break decides instead.
	straddling := []Span{
		{Start: 4, End: 6, Text: "how can i help you"},
	}
	labeled, err := assigner.AssignRoles(turns, straddling)
	require.NoError(t, err)
	for _, rt := range labeled {
		if rt.Speaker == "A" {
			assert.Equal(t, RoleAgent, rt.Role, "tie resolves to the smaller speaker ID")
		}
	}

	// The same phrase fully inside B's turn flips the agent to B. Exact
	// boundary equality counts as contained.
	contained := []Span{
		{Start: 5, End: 10, Text: "how can i help you"},
	}
	labeled, err = assigner.AssignRoles(turns, contained)
	require.NoError(t, err)
	for _, rt := range labeled {
		if rt.Speaker == "B" {
			assert.Equal(t, RoleAgent, rt.Role)
		} else {
			assert.Equal(t, RoleCustomer, rt.Role)
		}
	}
}

func TestAssignRolesCaseInsensitive(t *testing.T) {
	assigner := NewRoleAssigner(newTestLogger(), []string{"Thank You For Calling"})

	turns := []Turn{
		{Start: 0, End: 5, Speaker: "B"},
		{Start: 5, End: 10, Speaker: "A"},
	}
	transcript := []Span{
		{Start: 0, End: 4, Text: "THANK YOU FOR CALLING support"},
	}

	labeled, err := assigner.AssignRoles(turns, transcript)
	require.NoError(t, err)
	assert.Equal(t, RoleAgent, labeled[0].Role)
	assert.Equal(t, RoleCustomer, labeled[1].Role)
}
