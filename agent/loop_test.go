package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"

	"meetsync/models"

	"github.com/stretchr/testify/require"
)

type scriptedDecision struct {
	toolRounds int
	calls      int
}

func (s *scriptedDecision) Converse(ctx context.Context, transcript []Entry, tools []ToolDefinition) (*Decision, error) {
	s.calls++
	if s.toolRounds >= 0 && s.calls > s.toolRounds {
		return &Decision{StopReason: StopEndTurn, Text: "done"}, nil
	}
	return &Decision{
		StopReason: StopToolUse,
		ToolCalls:  []ToolCall{{Name: ToolUpdateRequest, Args: map[string]interface{}{}}},
	}, nil
}

type stubExecutor struct {
	executed []string
	results  map[string]map[string]interface{}
}

func (s *stubExecutor) Execute(ctx context.Context, inv *Invocation, call ToolCall) map[string]interface{} {
	s.executed = append(s.executed, call.Name)
	if r, ok := s.results[call.Name]; ok {
		return r
	}
	return map[string]interface{}{"success": true, "data": map[string]interface{}{}}
}

func testInvocation() *Invocation {
	return &Invocation{
		User:    &models.User{Name: "Dana", Email: "dana@example.com"},
		Prefs:   &models.SchedulingPreference{},
		Trigger: TriggerInboundEmail,
	}
}

func newTestLoop(decision DecisionService, tools ToolExecutor) *Loop {
	return NewLoop(decision, tools, 10, log.New(io.Discard, "", 0))
}

func TestLoopStopsCleanlyAfterToolRounds(t *testing.T) {
	decision := &scriptedDecision{toolRounds: 4}
	tools := &stubExecutor{}

	err := newTestLoop(decision, tools).Run(context.Background(), testInvocation())
	require.NoError(t, err)
	require.Len(t, tools.executed, 4)
	require.Equal(t, 5, decision.calls) // 4 tool rounds plus the end_turn round
}

func TestLoopRoundCapIsWarningNotError(t *testing.T) {
	decision := &scriptedDecision{toolRounds: -1} // never ends on its own
	tools := &stubExecutor{}

	err := newTestLoop(decision, tools).Run(context.Background(), testInvocation())
	require.NoError(t, err)
	require.Len(t, tools.executed, 10)
	require.Equal(t, 10, decision.calls)
}

func TestLoopExecutesCallsInRequestedOrder(t *testing.T) {
	decision := &orderedDecision{}
	tools := &stubExecutor{}

	err := newTestLoop(decision, tools).Run(context.Background(), testInvocation())
	require.NoError(t, err)
	require.Equal(t, []string{ToolCheckAvailability, ToolUpdateRequest, ToolSendEmail}, tools.executed)
}

type orderedDecision struct {
	calls int
}

func (o *orderedDecision) Converse(ctx context.Context, transcript []Entry, tools []ToolDefinition) (*Decision, error) {
	o.calls++
	if o.calls > 1 {
		return &Decision{StopReason: StopEndTurn}, nil
	}
	return &Decision{
		StopReason: StopToolUse,
		ToolCalls: []ToolCall{
			{Name: ToolCheckAvailability, Args: map[string]interface{}{}},
			{Name: ToolUpdateRequest, Args: map[string]interface{}{}},
			{Name: ToolSendEmail, Args: map[string]interface{}{}},
		},
	}, nil
}

func TestLoopRaisesOnFailedPrincipalNotification(t *testing.T) {
	decision := &orderedNotifyDecision{}
	tools := &stubExecutor{
		results: map[string]map[string]interface{}{
			ToolNotifyPrincipal: {"success": false, "error": "gateway unreachable"},
		},
	}

	err := newTestLoop(decision, tools).Run(context.Background(), testInvocation())
	require.Error(t, err)
	require.Contains(t, err.Error(), "gateway unreachable")
}

type orderedNotifyDecision struct{}

func (orderedNotifyDecision) Converse(ctx context.Context, transcript []Entry, tools []ToolDefinition) (*Decision, error) {
	return &Decision{
		StopReason: StopToolUse,
		ToolCalls:  []ToolCall{{Name: ToolNotifyPrincipal, Args: map[string]interface{}{}}},
	}, nil
}

func TestLoopToleratesRecoverableToolFailure(t *testing.T) {
	decision := &scriptedDecision{toolRounds: 1}
	tools := &stubExecutor{
		results: map[string]map[string]interface{}{
			ToolUpdateRequest: {"success": false, "error": "request 9 not found"},
		},
	}

	// A failed non-critical tool is fed back as a result, never raised
	err := newTestLoop(decision, tools).Run(context.Background(), testInvocation())
	require.NoError(t, err)
	require.Len(t, tools.executed, 1)
}

type failingDecision struct{}

func (failingDecision) Converse(ctx context.Context, transcript []Entry, tools []ToolDefinition) (*Decision, error) {
	return nil, fmt.Errorf("model overloaded")
}

func TestLoopPropagatesDecisionErrors(t *testing.T) {
	err := newTestLoop(failingDecision{}, &stubExecutor{}).Run(context.Background(), testInvocation())
	require.Error(t, err)
	require.Contains(t, err.Error(), "model overloaded")
}

func TestLoopTranscriptGrowsPerRound(t *testing.T) {
	decision := &transcriptRecorder{}
	tools := &stubExecutor{}

	err := newTestLoop(decision, tools).Run(context.Background(), testInvocation())
	require.NoError(t, err)

	// Opening prompt, then model turn plus tool results per executed round
	require.Equal(t, []int{1, 3, 5}, decision.lengths)
}

type transcriptRecorder struct {
	lengths []int
}

func (r *transcriptRecorder) Converse(ctx context.Context, transcript []Entry, tools []ToolDefinition) (*Decision, error) {
	r.lengths = append(r.lengths, len(transcript))
	if len(r.lengths) > 2 {
		return &Decision{StopReason: StopEndTurn}, nil
	}
	return &Decision{
		StopReason: StopToolUse,
		ToolCalls:  []ToolCall{{Name: ToolFetchThread, Args: map[string]interface{}{}}},
	}, nil
}
