package diarize

import (
	"strings"

	"github.com/sirupsen/logrus"

	"callaudit-server/pkg/errors"
)

// expectedSpeakers is the number of distinct speakers a conversation must
// have before it can be bisected into agent and customer.
const expectedSpeakers = 2

// DefaultAgentPhrases are the contextual phrases that indicate the agent side
// of a conversation. Overridable through configuration.
var DefaultAgentPhrases = []string{
	"hello",
	"thank you for calling",
	"how may i assist you",
	"how can i help you",
	"is there anything else",
	"have a great day",
}

// RoleAssigner classifies the two anonymous speakers of a conversation into
// agent and customer using phrase evidence from the transcript.
type RoleAssigner struct {
	logger       *logrus.Entry
	agentPhrases []string
}

// NewRoleAssigner creates a role assigner. An empty phrase list falls back to
// DefaultAgentPhrases.
func NewRoleAssigner(logger *logrus.Logger, agentPhrases []string) *RoleAssigner {
	if len(agentPhrases) == 0 {
		agentPhrases = DefaultAgentPhrases
	}

	lowered := make([]string, len(agentPhrases))
	for i, p := range agentPhrases {
		lowered[i] = strings.ToLower(p)
	}

	return &RoleAssigner{
		logger:       logger.WithField("component", "role_assigner"),
		agentPhrases: lowered,
	}
}

// AssignRoles annotates every turn with agent or customer. The speaker whose
// turns contain more agent-indicative phrases becomes the agent; on a tie the
// lexicographically smaller speaker ID becomes the agent so the result is
// deterministic regardless of input order. Turns are neither dropped nor
// reordered.
//
// Fails with ErrSpeakerCount unless exactly two distinct speakers appear, and
// performs no partial assignment in that case.
func (ra *RoleAssigner) AssignRoles(turns []Turn, transcript []Span) ([]RoleTurn, error) {
	speakers := make(map[string]int, expectedSpeakers)
	for _, turn := range turns {
		speakers[turn.Speaker] = 0
	}

	if len(speakers) != expectedSpeakers {
		return nil, errors.NewSpeakerCount(len(speakers))
	}

	// Phrase evidence: for each turn, concatenate the text of transcript
	// spans fully contained in the turn interval and count agent phrases
	// found in it.
	for _, turn := range turns {
		var parts []string
		for _, span := range transcript {
			if span.Start >= turn.Start && span.End <= turn.End {
				parts = append(parts, strings.ToLower(span.Text))
			}
		}
		turnText := strings.Join(parts, " ")

		for _, phrase := range ra.agentPhrases {
			if strings.Contains(turnText, phrase) {
				speakers[turn.Speaker]++
			}
		}
	}

	agentID := pickAgent(speakers)

	result := make([]RoleTurn, len(turns))
	for i, turn := range turns {
		role := RoleCustomer
		if turn.Speaker == agentID {
			role = RoleAgent
		}
		result[i] = RoleTurn{Turn: turn, Role: role}
	}

	ra.logger.WithFields(logrus.Fields{
		"agent_speaker": agentID,
		"phrase_counts": speakers,
	}).Debug("Roles assigned")

	return result, nil
}

// pickAgent selects the speaker with the higher phrase count; ties go to the
// lexicographically smaller speaker ID.
func pickAgent(counts map[string]int) string {
	var agentID string
	best := -1
	for speaker, count := range counts {
		switch {
		case count > best:
			agentID, best = speaker, count
		case count == best && speaker < agentID:
			agentID = speaker
		}
	}
	return agentID
}
