package e2e

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gladys-ai/gladys/pkg/llm"
	"github.com/gladys-ai/gladys/pkg/services"
)

// LLMScriptEntry defines a single scripted LLM response.
type LLMScriptEntry struct {
	Text  string // raw response text returned by Generate
	Error error  // returned instead of Text when set
}

// ScriptedLLMClient implements llm.Client with per-call-kind scripts. The
// executive makes three kinds of calls distinguished by their prompts:
// reasoning (urgent events and moment batches), outcome prediction, and
// heuristic extraction. Predictions get a neutral default when the script
// runs out so scenarios only cover the calls they assert on; the other two
// kinds error when exhausted, which fails the test loudly instead of
// letting an unscripted call slip through.
type ScriptedLLMClient struct {
	mu          sync.Mutex
	responses   []LLMScriptEntry
	respIndex   int
	predictions []LLMScriptEntry
	predIndex   int
	extractions []LLMScriptEntry
	extrIndex   int
	down        bool
	captured    []llm.Request
}

// NewScriptedLLMClient creates an empty script.
func NewScriptedLLMClient() *ScriptedLLMClient {
	return &ScriptedLLMClient{}
}

// AddResponse queues a reasoning response, consumed in call order.
func (c *ScriptedLLMClient) AddResponse(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, LLMScriptEntry{Text: text})
}

// AddPrediction queues an outcome-prediction response (JSON body).
func (c *ScriptedLLMClient) AddPrediction(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.predictions = append(c.predictions, LLMScriptEntry{Text: text})
}

// AddExtraction queues a heuristic-extraction response (JSON body).
func (c *ScriptedLLMClient) AddExtraction(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extractions = append(c.extractions, LLMScriptEntry{Text: text})
}

// AddExtractionError queues a failing extraction call.
func (c *ScriptedLLMClient) AddExtractionError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extractions = append(c.extractions, LLMScriptEntry{Error: err})
}

// SetDown toggles backend availability. While down, Generate fails with
// services.ErrLLMUnavailable and Available reports false.
func (c *ScriptedLLMClient) SetDown(down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down = down
}

// Generate implements llm.Client by replaying the script.
func (c *ScriptedLLMClient) Generate(_ context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captured = append(c.captured, req)

	if c.down {
		return "", fmt.Errorf("scripted backend down: %w", services.ErrLLMUnavailable)
	}

	var entry LLMScriptEntry
	switch {
	case strings.Contains(req.Prompt, "Predict the probability"):
		if c.predIndex >= len(c.predictions) {
			return `{"success": 0.7, "confidence": 0.6}`, nil
		}
		entry = c.predictions[c.predIndex]
		c.predIndex++

	case strings.Contains(req.Prompt, "Extract a generalizable heuristic"):
		if c.extrIndex >= len(c.extractions) {
			return "", fmt.Errorf("ScriptedLLMClient: no extraction entries left (%d consumed)", c.extrIndex)
		}
		entry = c.extractions[c.extrIndex]
		c.extrIndex++

	default:
		if c.respIndex >= len(c.responses) {
			return "", fmt.Errorf("ScriptedLLMClient: no response entries left (%d consumed)", c.respIndex)
		}
		entry = c.responses[c.respIndex]
		c.respIndex++
	}

	if entry.Error != nil {
		return "", entry.Error
	}
	return entry.Text, nil
}

// Available implements llm.Client.
func (c *ScriptedLLMClient) Available(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.down
}

// Model implements llm.Client.
func (c *ScriptedLLMClient) Model() string { return "scripted" }

// CallCount returns the total number of Generate calls made.
func (c *ScriptedLLMClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.captured)
}

// CapturedRequests returns a copy of every Generate request seen so far.
func (c *ScriptedLLMClient) CapturedRequests() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Request, len(c.captured))
	copy(out, c.captured)
	return out
}
