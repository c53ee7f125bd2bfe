package diarize

import (
	"bytes"
	"encoding/json"
	"math"
)

// Role is the semantic label assigned to one diarized speaker.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleCustomer Role = "customer"
)

// Turn is one contiguous interval attributed to an anonymous speaker by the
// diarization collaborator. Speaker IDs carry no meaning beyond identity
// within a single conversation.
type Turn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Duration returns the turn length in seconds.
func (t Turn) Duration() float64 {
	return t.End - t.Start
}

// Span is one time-stamped transcript fragment. Spans are contextual
// evidence for role assignment only; turn intervals are the timing source
// of truth.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// RoleTurn is a speaker turn annotated with its assigned role.
type RoleTurn struct {
	Turn
	Role Role `json:"role"`
}

// ConversationMetrics is the fixed set of quantitative metrics derived from
// role-labeled turns. It is recomputed whole whenever its inputs change,
// never patched.
type ConversationMetrics struct {
	// AgentSpeakingRate is agent speaking time scaled over agent turn count.
	// It is a pace proxy, not a true words-per-minute figure, because word
	// counts are not threaded through from the transcript.
	AgentSpeakingRate float64 `json:"agent_speaking_speed_wpm"`

	// CustomerAgentRatio is customer speaking time divided by agent speaking
	// time. +Inf when the agent never speaks; that is a sentinel, not an
	// error.
	CustomerAgentRatio float64 `json:"customer_to_agent_speaking_ratio"`

	// AgentInterruptions counts transitions where control passed from the
	// customer to the agent.
	AgentInterruptions int `json:"interruptions_by_agent"`

	// AverageTTFT is the mean turn-transition latency in seconds across all
	// differing-role transitions. Negative latencies (overlapping turns) are
	// included as-is. Zero with Transitions == 0 means no transitions were
	// observed.
	AverageTTFT float64 `json:"average_ttft"`

	// Transitions is the number of differing-role transitions observed.
	Transitions int `json:"transitions"`
}

// infSentinel is how an infinite ratio travels through JSON, which has no
// encoding for IEEE infinities.
const infSentinel = `"Inf"`

type conversationMetricsAlias ConversationMetrics

// MarshalJSON encodes an infinite ratio as the string "Inf".
func (m ConversationMetrics) MarshalJSON() ([]byte, error) {
	if !math.IsInf(m.CustomerAgentRatio, 1) {
		return json.Marshal(conversationMetricsAlias(m))
	}

	clone := m
	clone.CustomerAgentRatio = 0
	data, err := json.Marshal(conversationMetricsAlias(clone))
	if err != nil {
		return nil, err
	}
	return bytes.Replace(data,
		[]byte(`"customer_to_agent_speaking_ratio":0`),
		[]byte(`"customer_to_agent_speaking_ratio":`+infSentinel), 1), nil
}

// UnmarshalJSON accepts both numeric ratios and the "Inf" sentinel.
func (m *ConversationMetrics) UnmarshalJSON(data []byte) error {
	patched := bytes.Replace(data,
		[]byte(`"customer_to_agent_speaking_ratio":`+infSentinel),
		[]byte(`"customer_to_agent_speaking_ratio":-1`), 1)

	var alias conversationMetricsAlias
	if err := json.Unmarshal(patched, &alias); err != nil {
		return err
	}
	*m = ConversationMetrics(alias)
	if !bytes.Equal(patched, data) {
		m.CustomerAgentRatio = math.Inf(1)
	}
	return nil
}
