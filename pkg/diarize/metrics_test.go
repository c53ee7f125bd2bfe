package diarize

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudit-server/pkg/errors"
)

func TestComputeMetricsEmptyConversation(t *testing.T) {
	_, err := ComputeMetrics(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEmptyConversation))
}

func TestComputeMetricsAdjacentBoundaries(t *testing.T) {
	// Turns that share exact boundaries: (0,5) agent, (5,9) customer,
	// (9,12) agent.
	turns := []RoleTurn{
		{Turn: Turn{Start: 0, End: 5, Speaker: "A"}, Role: RoleAgent},
		{Turn: Turn{Start: 5, End: 9, Speaker: "B"}, Role: RoleCustomer},
		{Turn: Turn{Start: 9, End: 12, Speaker: "A"}, Role: RoleAgent},
	}

	m, err := ComputeMetrics(turns)
	require.NoError(t, err)

	// Agent time 5+3=8, customer time 4, two transitions with zero latency,
	// one customer-to-agent interruption.
	assert.InDelta(t, 0.5, m.CustomerAgentRatio, 1e-9)
	assert.Equal(t, 1, m.AgentInterruptions)
	assert.Equal(t, 2, m.Transitions)
	assert.InDelta(t, 0.0, m.AverageTTFT, 1e-9)
	assert.InDelta(t, 8.0*60/2, m.AgentSpeakingRate, 1e-9)
}

func TestComputeMetricsOverlapYieldsNegativeLatency(t *testing.T) {
	turns := []RoleTurn{
		{Turn: Turn{Start: 0, End: 6, Speaker: "B"}, Role: RoleCustomer},
		{Turn: Turn{Start: 5, End: 10, Speaker: "A"}, Role: RoleAgent},
	}

	m, err := ComputeMetrics(turns)
	require.NoError(t, err)

	assert.Equal(t, 1, m.Transitions)
	assert.Equal(t, 1, m.AgentInterruptions, "the agent starting before the customer finishes is an interruption")
	assert.InDelta(t, -1.0, m.AverageTTFT, 1e-9, "overlap latency is negative, not clamped")
}

func TestComputeMetricsNoAgentSpeech(t *testing.T) {
	turns := []RoleTurn{
		{Turn: Turn{Start: 0, End: 4, Speaker: "B"}, Role: RoleCustomer},
		{Turn: Turn{Start: 4, End: 8, Speaker: "B"}, Role: RoleCustomer},
	}

	m, err := ComputeMetrics(turns)
	require.NoError(t, err)

	assert.True(t, math.IsInf(m.CustomerAgentRatio, 1), "ratio is +Inf when the agent never speaks")
	assert.Zero(t, m.AgentSpeakingRate)
	assert.Zero(t, m.Transitions)
	assert.Zero(t, m.AverageTTFT)
}

func TestComputeMetricsSameRoleAdjacencyIsNotATransition(t *testing.T) {
	turns := []RoleTurn{
		{Turn: Turn{Start: 0, End: 3, Speaker: "A"}, Role: RoleAgent},
		{Turn: Turn{Start: 3, End: 6, Speaker: "A"}, Role: RoleAgent},
		{Turn: Turn{Start: 6, End: 9, Speaker: "B"}, Role: RoleCustomer},
	}

	m, err := ComputeMetrics(turns)
	require.NoError(t, err)

	assert.Equal(t, 1, m.Transitions)
	assert.Equal(t, 0, m.AgentInterruptions, "agent-to-customer is not an agent interruption")
}

func TestComputeMetricsFinalTurnCounted(t *testing.T) {
	turns := []RoleTurn{
		{Turn: Turn{Start: 0, End: 2, Speaker: "B"}, Role: RoleCustomer},
		{Turn: Turn{Start: 2, End: 10, Speaker: "A"}, Role: RoleAgent},
	}

	m, err := ComputeMetrics(turns)
	require.NoError(t, err)

	// The last turn's full 8 seconds count toward agent time.
	assert.InDelta(t, 2.0/8.0, m.CustomerAgentRatio, 1e-9)
	assert.InDelta(t, 8.0*60, m.AgentSpeakingRate, 1e-9)
}

func TestConversationMetricsInfSentinelRoundTrip(t *testing.T) {
	m := ConversationMetrics{
		AgentSpeakingRate:  0,
		CustomerAgentRatio: math.Inf(1),
		AgentInterruptions: 0,
		AverageTTFT:        0,
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"customer_to_agent_speaking_ratio":"Inf"`)

	var decoded ConversationMetrics
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, math.IsInf(decoded.CustomerAgentRatio, 1))
}

func TestConversationMetricsFiniteRatioStaysNumeric(t *testing.T) {
	m := ConversationMetrics{
		AgentSpeakingRate:  120,
		CustomerAgentRatio: 0.5,
		AgentInterruptions: 2,
		AverageTTFT:        0.25,
		Transitions:        4,
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"customer_to_agent_speaking_ratio":0.5`)

	var decoded ConversationMetrics
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, m, decoded)
}
