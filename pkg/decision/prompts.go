package decision

import (
	"fmt"
	"strings"

	"github.com/gladys-ai/gladys/pkg/models"
)

// systemPrompt primes every reasoning call.
const systemPrompt = `You are GLADyS, a helpful AI assistant observing events in a user's environment.

When given events, briefly acknowledge what happened and suggest any relevant actions or responses.
Keep responses concise (1-2 sentences). Focus on what's most important or actionable.

If there's a high-threat event, prioritize addressing it.
If events are routine, a brief acknowledgment is sufficient.`

// extractionPromptFmt asks for a reusable heuristic after positive feedback.
// Args: context, response.
const extractionPromptFmt = `You just helped with this situation:

Context: %s
Your response: %s
User feedback: positive

Extract a generalizable heuristic that can be applied to similar situations in the future.
- condition: A general description of when this pattern applies (avoid specific names/numbers)
- action: What to do when the condition matches

Be general enough to match similar situations, specific enough to be useful.
Output ONLY valid JSON with no other text: {"condition": "...", "action": {"type": "...", "message": "..."}}`

// predictionPromptFmt asks the model to predict its own action's outcome.
// Args: context, response.
const predictionPromptFmt = `Given this situation and response:
Situation: %s
Response: %s

Predict the probability this action will succeed (0.0-1.0) and your confidence in that prediction (0.0-1.0).
Output ONLY valid JSON with no other text: {"success": 0.X, "confidence": 0.Y}`

// formatEvent renders one event for LLM context: the source tag, notable
// salience dimensions, and the raw text.
func formatEvent(event models.Event) string {
	var salienceStr string
	if s := event.Salience; s != nil {
		var parts []string
		if s.Threat > 0.1 {
			parts = append(parts, fmt.Sprintf("threat=%.2f", s.Threat))
		}
		if s.Opportunity > 0.1 {
			parts = append(parts, fmt.Sprintf("opportunity=%.2f", s.Opportunity))
		}
		if s.Novelty > 0.1 {
			parts = append(parts, fmt.Sprintf("novelty=%.2f", s.Novelty))
		}
		if len(parts) > 0 {
			salienceStr = " [" + strings.Join(parts, ", ") + "]"
		}
	}
	return fmt.Sprintf("[%s]%s: %s", event.Source, salienceStr, event.RawText)
}

// urgentPrompt builds the slow-path prompt for one immediate event. When the
// gateway matched a heuristic below the fast-path bar, its suggestion is
// offered to the model rather than acted on directly.
func urgentPrompt(event models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URGENT event: %s\n\n", formatEvent(event))
	if event.MatchedHeuristicID != "" {
		fmt.Fprintf(&b, `A learned pattern matched this situation:
- Pattern: %q
- Suggested action: %q
- Confidence: %.0f%%

Consider this suggestion in your response.

`, event.ConditionText, event.SuggestedAction, event.HeuristicConfidence*100)
	}
	b.WriteString("How should I respond?")
	return b.String()
}

// momentContext renders an accumulated batch of events. The same block is
// the summary prompt's body and the reasoning trace's context.
func momentContext(events []models.Event) string {
	lines := make([]string, 0, len(events)+1)
	lines = append(lines, "Recent events:")
	for _, e := range events {
		lines = append(lines, "  - "+formatEvent(e))
	}
	return strings.Join(lines, "\n")
}

// momentPrompt is the one summary call made per accumulated batch.
func momentPrompt(events []models.Event) string {
	return momentContext(events) + "\n\nBriefly summarize and note anything that needs attention."
}
