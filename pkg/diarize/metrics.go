package diarize

import (
	"math"

	"callaudit-server/pkg/errors"
)

// ComputeMetrics derives conversation metrics from role-labeled turns in a
// single left-to-right pass. Turns must already be in chronological order;
// ordering them is the orchestrator's job, not this engine's.
//
// Transition latency is next.Start - prev.End for each adjacent pair with
// differing roles. It may be negative when turns overlap; overlap is a valid
// signal (it is exactly what an interruption looks like) and is never
// clamped.
func ComputeMetrics(turns []RoleTurn) (*ConversationMetrics, error) {
	if len(turns) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyConversation, "cannot compute metrics").
			WithCode("EMPTY_CONVERSATION")
	}

	var agentTime, customerTime float64
	var latencySum float64
	transitions := 0
	interruptions := 0
	agentTurns := 0

	for i, turn := range turns {
		switch turn.Role {
		case RoleAgent:
			agentTime += turn.Duration()
			agentTurns++
		case RoleCustomer:
			customerTime += turn.Duration()
		}

		if i == 0 {
			continue
		}

		prev := turns[i-1]
		if prev.Role != turn.Role {
			latencySum += turn.Start - prev.End
			transitions++
			if prev.Role == RoleCustomer && turn.Role == RoleAgent {
				interruptions++
			}
		}
	}

	m := &ConversationMetrics{
		AgentInterruptions: interruptions,
		Transitions:        transitions,
	}

	if agentTurns > 0 {
		m.AgentSpeakingRate = agentTime * 60 / float64(agentTurns)
	}

	if agentTime > 0 {
		m.CustomerAgentRatio = customerTime / agentTime
	} else {
		m.CustomerAgentRatio = math.Inf(1)
	}

	if transitions > 0 {
		m.AverageTTFT = latencySum / float64(transitions)
	}

	return m, nil
}
