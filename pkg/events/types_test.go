package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionFilter_Allows(t *testing.T) {
	tests := []struct {
		name        string
		filter      SubscriptionFilter
		routingPath string
		source      string
		want        bool
	}{
		{
			name:        "default filter allows immediate",
			filter:      DefaultSubscriptionFilter(),
			routingPath: "llm_immediate",
			source:      "sensor.hydroponics",
			want:        true,
		},
		{
			name:        "default filter allows fast path",
			filter:      DefaultSubscriptionFilter(),
			routingPath: "heuristic_fast",
			source:      "sensor.hydroponics",
			want:        true,
		},
		{
			name:        "exclude immediate blocks llm_immediate",
			filter:      SubscriptionFilter{IncludeImmediate: false},
			routingPath: "llm_immediate",
			source:      "sensor.hydroponics",
			want:        false,
		},
		{
			name:        "exclude immediate blocks heuristic_fast",
			filter:      SubscriptionFilter{IncludeImmediate: false},
			routingPath: "heuristic_fast",
			source:      "sensor.hydroponics",
			want:        false,
		},
		{
			name:        "exclude immediate still allows moment summaries",
			filter:      SubscriptionFilter{IncludeImmediate: false},
			routingPath: "llm_moment",
			source:      "sensor.hydroponics",
			want:        true,
		},
		{
			name:        "exclude immediate still allows fallback",
			filter:      SubscriptionFilter{IncludeImmediate: false},
			routingPath: "fallback",
			source:      "sensor.hydroponics",
			want:        true,
		},
		{
			name:        "source whitelist admits listed source",
			filter:      SubscriptionFilter{IncludeImmediate: true, Sources: []string{"voice.kitchen", "sensor.garden"}},
			routingPath: "llm_immediate",
			source:      "sensor.garden",
			want:        true,
		},
		{
			name:        "source whitelist blocks unlisted source",
			filter:      SubscriptionFilter{IncludeImmediate: true, Sources: []string{"voice.kitchen"}},
			routingPath: "llm_moment",
			source:      "sensor.garden",
			want:        false,
		},
		{
			name:        "both restrictions apply together",
			filter:      SubscriptionFilter{IncludeImmediate: false, Sources: []string{"voice.kitchen"}},
			routingPath: "llm_immediate",
			source:      "voice.kitchen",
			want:        false,
		},
		{
			name:        "empty sources means all sources",
			filter:      DefaultSubscriptionFilter(),
			routingPath: "llm_moment",
			source:      "anything.at.all",
			want:        true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.allows(tt.routingPath, tt.source)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChannelConstants(t *testing.T) {
	assert.Equal(t, "responses", ResponsesChannel)
	assert.Equal(t, "gladys_heuristics", HeuristicsChannel)
	assert.NotEqual(t, ResponsesChannel, HeuristicsChannel)
}

func TestPayloadTypeConstants(t *testing.T) {
	assert.Equal(t, "response", TypeResponse)
	assert.Equal(t, "heuristic.change", TypeHeuristicChange)
}
