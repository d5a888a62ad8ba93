package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/graphseed/internal/provider"
)

// ErrUnboundTool is returned when the model calls a tool the stage's worker
// was not given.
var ErrUnboundTool = errors.New("model requested unbound tool")

// DefaultMaxIterations bounds the number of API calls per stage.
const DefaultMaxIterations = 25

const maxDisplayBytes = 500

// AgentLoop manages the API call and capability invocation cycle.
type AgentLoop struct {
	client        *Client
	onStream      func(StreamEvent)
	maxIterations int
}

// StreamEvent is one step of the loop, reported to the stream handler.
type StreamEvent struct {
	Type    string // "text", "tool_use", "tool_result", "done", "error"
	Content string
	Tool    string
	Input   json.RawMessage
}

// LoopResult contains the results of an agent loop execution.
type LoopResult struct {
	Output     string
	TokensIn   int64
	TokensOut  int64
	ToolCalls  int
	Iterations int
}

// AgentLoopConfig contains configuration for the agent loop.
type AgentLoopConfig struct {
	Client        *Client
	MaxIterations int // Max API calls before stopping (0 = DefaultMaxIterations)
}

// NewAgentLoop creates a new agent loop with the given configuration.
func NewAgentLoop(cfg AgentLoopConfig) *AgentLoop {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	return &AgentLoop{
		client:        cfg.Client,
		maxIterations: maxIter,
	}
}

// SetStreamHandler sets a callback for streaming events during execution.
func (l *AgentLoop) SetStreamHandler(fn func(StreamEvent)) {
	l.onStream = fn
}

func (l *AgentLoop) emit(event StreamEvent) {
	if l.onStream != nil {
		l.onStream(event)
	}
}

// RunWithTools runs the conversation until the model ends its turn. Tool use
// requests are served by caps; a request for an unbound capability or a
// failed invocation ends the loop with an error.
func (l *AgentLoop) RunWithTools(ctx context.Context, systemPrompt, userPrompt string, caps []*provider.Capability) (*LoopResult, error) {
	result := &LoopResult{}

	byName := make(map[string]*provider.Capability, len(caps))
	for _, c := range caps {
		byName[c.Name()] = c
	}
	tools := ToolDefinitions(caps)

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
	}

	for result.Iterations < l.maxIterations {
		result.Iterations++

		params := anthropic.MessageNewParams{
			Model:     l.client.Model(),
			MaxTokens: l.client.MaxTokens(),
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: messages,
		}
		if len(tools) > 0 {
			params.Tools = tools
		}

		resp, err := l.client.messages.New(ctx, params)
		if err != nil {
			l.emit(StreamEvent{Type: "error", Content: err.Error()})
			return result, fmt.Errorf("API call failed: %w", err)
		}

		result.TokensIn += resp.Usage.InputTokens
		result.TokensOut += resp.Usage.OutputTokens
		l.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion
		var textOutput string

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				textOutput += variant.Text
				l.emit(StreamEvent{Type: "text", Content: variant.Text})
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				result.ToolCalls++
				l.emit(StreamEvent{Type: "tool_use", Tool: variant.Name, Input: variant.Input})
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				c, ok := byName[variant.Name]
				if !ok {
					err := fmt.Errorf("%w: %s", ErrUnboundTool, variant.Name)
					l.emit(StreamEvent{Type: "error", Tool: variant.Name, Content: err.Error()})
					return result, err
				}
				out, err := c.Invoke(ctx, variant.Input)
				if err != nil {
					l.emit(StreamEvent{Type: "error", Tool: variant.Name, Content: err.Error()})
					return result, fmt.Errorf("tool %s: %w", variant.Name, err)
				}
				l.emit(StreamEvent{Type: "tool_result", Tool: variant.Name, Content: truncateForDisplay(out)})

				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, out, false))
			}
		}

		if resp.StopReason == anthropic.StopReasonEndTurn || len(toolResultBlocks) == 0 {
			result.Output = textOutput
			l.emit(StreamEvent{Type: "done", Content: textOutput})
			return result, nil
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
	}

	return result, fmt.Errorf("max iterations (%d) reached", l.maxIterations)
}

// truncateForDisplay shortens s to at most maxDisplayBytes bytes without
// splitting a UTF-8 sequence.
func truncateForDisplay(s string) string {
	if len(s) <= maxDisplayBytes {
		return s
	}
	cut := maxDisplayBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
