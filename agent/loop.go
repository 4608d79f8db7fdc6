package agent

import (
	"context"
	"fmt"
	"log"
)

// ToolExecutor runs one requested tool call and returns its result envelope.
type ToolExecutor interface {
	Execute(ctx context.Context, inv *Invocation, call ToolCall) map[string]interface{}
}

// Loop drives the bounded conversation between the engine and the decision
// service. Tool calls execute sequentially in the requested order; results
// feed the next round until the service finishes naturally, the round cap is
// reached, or the principal-notification tool fails.
type Loop struct {
	Decision  DecisionService
	Tools     ToolExecutor
	MaxRounds int
	Logger    *log.Logger
}

func NewLoop(decision DecisionService, tools ToolExecutor, maxRounds int, logger *log.Logger) *Loop {
	if maxRounds <= 0 {
		maxRounds = 10
	}
	return &Loop{
		Decision:  decision,
		Tools:     tools,
		MaxRounds: maxRounds,
		Logger:    logger,
	}
}

// Run executes the loop for one inbound trigger. A nil return means the loop
// ended cleanly, whether by natural completion, an unrecoverable stop signal,
// or round-cap exhaustion; progress committed by earlier tool calls is kept
// in all three cases. The only raised failure paths are decision-service
// errors and a failed notify_principal, since that tool is the sole channel
// back to the human.
func (l *Loop) Run(ctx context.Context, inv *Invocation) error {
	catalog := Catalog()
	transcript := []Entry{{Role: RoleUser, Text: inv.Prompt()}}

	for round := 1; round <= l.MaxRounds; round++ {
		decision, err := l.Decision.Converse(ctx, transcript, catalog)
		if err != nil {
			return fmt.Errorf("decision round %d failed: %w", round, err)
		}

		switch decision.StopReason {
		case StopEndTurn:
			l.Logger.Printf("Loop finished after %d round(s)", round)
			return nil
		case StopToolUse:
			// fall through to execution
		default:
			l.Logger.Printf("Decision service returned stop reason %q - ending loop", decision.StopReason)
			return nil
		}

		transcript = append(transcript, Entry{
			Role:      RoleModel,
			Text:      decision.Text,
			ToolCalls: decision.ToolCalls,
		})

		results := make([]ToolResult, 0, len(decision.ToolCalls))
		for _, call := range decision.ToolCalls {
			result := l.Tools.Execute(ctx, inv, call)

			if call.Name == ToolNotifyPrincipal {
				if success, _ := result["success"].(bool); !success {
					errMsg, _ := result["error"].(string)
					return fmt.Errorf("principal notification failed: %s", errMsg)
				}
			}

			results = append(results, ToolResult{Name: call.Name, Result: result})
		}

		transcript = append(transcript, Entry{Role: RoleTool, ToolResults: results})
	}

	l.Logger.Printf("WARNING: loop reached the %d-round cap without completing", l.MaxRounds)
	return nil
}
