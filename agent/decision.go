package agent

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
)

// Stop reasons returned by the decision service.
const (
	StopEndTurn = "end_turn"
	StopToolUse = "tool_use"
	StopOther   = "other"
)

// Transcript entry roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
	RoleTool  = "tool"
)

// ToolCall is one structured tool invocation requested by the decision
// service.
type ToolCall struct {
	Name string
	Args map[string]interface{}
}

// ToolResult is the uniform envelope handed back for one executed tool call.
type ToolResult struct {
	Name   string
	Result map[string]interface{}
}

// Entry is one turn of the decision conversation.
type Entry struct {
	Role        string
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Decision is what the service wants next: stop, or execute tool calls.
type Decision struct {
	StopReason string
	Text       string
	ToolCalls  []ToolCall
}

// ToolDefinition describes one catalog entry offered to the decision service.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  *genai.Schema
}

// DecisionService is the external decision-making collaborator. Each call
// receives the full transcript so far plus the tool catalog and returns the
// next decision.
type DecisionService interface {
	Converse(ctx context.Context, transcript []Entry, catalog []ToolDefinition) (*Decision, error)
}

// GeminiDecisionService drives decisions through the Gemini API using
// function calling.
type GeminiDecisionService struct {
	model *genai.GenerativeModel
}

func NewGeminiDecisionService(model *genai.GenerativeModel) *GeminiDecisionService {
	return &GeminiDecisionService{model: model}
}

func (g *GeminiDecisionService) Converse(ctx context.Context, transcript []Entry, catalog []ToolDefinition) (*Decision, error) {
	if len(transcript) == 0 {
		return nil, fmt.Errorf("empty transcript")
	}

	declarations := make([]*genai.FunctionDeclaration, 0, len(catalog))
	for _, def := range catalog {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}

	// Copy the model so concurrent triggers don't race on Tools
	model := *g.model
	model.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}

	session := model.StartChat()
	history := make([]*genai.Content, 0, len(transcript)-1)
	for _, entry := range transcript[:len(transcript)-1] {
		history = append(history, entryContent(entry))
	}
	session.History = history

	last := entryContent(transcript[len(transcript)-1])
	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("decision service call failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return &Decision{StopReason: StopOther}, nil
	}

	decision := &Decision{StopReason: StopEndTurn}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			decision.Text += string(v)
		case genai.FunctionCall:
			decision.ToolCalls = append(decision.ToolCalls, ToolCall{
				Name: v.Name,
				Args: v.Args,
			})
		}
	}
	if len(decision.ToolCalls) > 0 {
		decision.StopReason = StopToolUse
	} else if resp.Candidates[0].FinishReason != genai.FinishReasonStop &&
		resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
		decision.StopReason = StopOther
	}
	return decision, nil
}

func entryContent(entry Entry) *genai.Content {
	switch entry.Role {
	case RoleModel:
		parts := make([]genai.Part, 0, len(entry.ToolCalls)+1)
		if entry.Text != "" {
			parts = append(parts, genai.Text(entry.Text))
		}
		for _, call := range entry.ToolCalls {
			parts = append(parts, genai.FunctionCall{Name: call.Name, Args: call.Args})
		}
		return &genai.Content{Role: "model", Parts: parts}
	case RoleTool:
		parts := make([]genai.Part, 0, len(entry.ToolResults))
		for _, result := range entry.ToolResults {
			parts = append(parts, genai.FunctionResponse{
				Name:     result.Name,
				Response: result.Result,
			})
		}
		return &genai.Content{Role: "function", Parts: parts}
	default:
		return &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(entry.Text)}}
	}
}
