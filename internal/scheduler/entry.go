package scheduler

import (
	"context"
	"fmt"

	"github.com/apexion-ai/apexion/internal/allowlist"
	"github.com/apexion-ai/apexion/internal/response"
	"github.com/apexion-ai/apexion/internal/suggest"
)

// admitOne runs the entry protocol for a single request (§4.1 steps 2–6)
// through to a scheduled, error, or cancelled terminal-for-this-phase
// state.
func (s *Scheduler) admitOne(ctx context.Context, batch *batchState, call *ToolCall) {
	req := call.Request

	tool, ok := s.registry.GetTool(req.Name)
	if !ok {
		msg := fmt.Sprintf("Tool %q not found.%s", req.Name, suggestionPhrase(req.Name, s.registry.GetAllToolNames()))
		batch.transition(call, StatusError, func() {
			call.Err = newError(ErrToolNotFound, msg, nil)
			call.Response = envelopePtr(response.ConvertToFunctionResponse(req.Name, req.CallID, response.LLMContent{Text: &msg}))
		})
		return
	}
	call.Tool = tool

	inv, err := tool.BuildInvocation(req.Args)
	if err != nil {
		batch.transition(call, StatusError, func() {
			call.Err = newError(ErrInvalidParameters, "invalid parameters", err)
		})
		return
	}
	call.Invocation = inv

	if ctx.Err() != nil {
		batch.transition(call, StatusCancelled, func() {
			call.Err = newError(ErrConfirmationAborted, "aborted before execution", ctx.Err())
		})
		return
	}

	if s.shortCircuitApproved(inv, req.Name) {
		batch.transition(call, StatusScheduled, nil)
		return
	}

	s.confirmLoop(ctx, batch, call, tool, inv)
}

// shortCircuitApproved implements §4.1 step 5: Yolo mode, AutoEdit mode
// for edit-kind tools, or an allowlist match all skip confirmation.
func (s *Scheduler) shortCircuitApproved(inv Invocation, toolName string) bool {
	mode := s.ApprovalMode()
	if mode == ApprovalYolo {
		return true
	}
	if mode == ApprovalAutoEdit && inv.Kind() == KindEdit {
		return true
	}
	return s.allowlistMatches(inv, toolName)
}

func (s *Scheduler) allowlistMatches(inv Invocation, toolName string) bool {
	command, hasCommand := inv.Command()
	invocation := allowlist.Invocation{
		ToolName:   toolName,
		Command:    command,
		HasCommand: hasCommand,
	}
	return allowlist.Matches(invocation, s.AllowedPatterns())
}

// confirmLoop asks the invocation whether it needs confirmation, and if
// so waits for the user's outcome, looping again after ModifyWithEditor
// regenerates the confirmation details (§4.1 step 6, "Awaiting approval").
func (s *Scheduler) confirmLoop(ctx context.Context, batch *batchState, call *ToolCall, tool Tool, inv Invocation) {
	for {
		details, err := inv.ShouldConfirmExecute(ctx)
		if err != nil {
			if ctx.Err() != nil {
				batch.transition(call, StatusCancelled, func() {
					call.Err = newError(ErrConfirmationAborted, "aborted during confirmation check", ctx.Err())
				})
			} else {
				batch.transition(call, StatusError, func() {
					call.Err = newError(ErrExecutionFailed, "shouldConfirmExecute failed", err)
				})
			}
			return
		}
		if details == nil {
			batch.transition(call, StatusScheduled, nil)
			return
		}

		outcomeCh := make(chan confirmResult, 1)
		wrapped := *details
		wrapped.OnConfirm = wrapOnConfirm(outcomeCh)
		call.Invocation = inv
		batch.transition(call, StatusAwaitingApproval, func() {
			call.ConfirmationDetails = &wrapped
		})

		select {
		case res := <-outcomeCh:
			next, done := s.handleOutcome(ctx, batch, call, tool, inv, &wrapped, res)
			if done {
				return
			}
			inv = next
		case <-ctx.Done():
			batch.transition(call, StatusCancelled, func() {
				call.Err = newError(ErrConfirmationAborted, "aborted while awaiting approval", ctx.Err())
				if details.Kind == KindEdit {
					call.ResultDisplay = &ResultDisplay{FileDiff: details.FileDiff, FileName: details.FileName}
				}
			})
			return
		}
	}
}

type confirmResult struct {
	outcome ConfirmationOutcome
	payload *ConfirmationPayload
}

// wrapOnConfirm produces the OnConfirm closure stored on
// ConfirmationDetails. It may fire at most once (invariant 2).
func wrapOnConfirm(ch chan confirmResult) func(context.Context, ConfirmationOutcome, *ConfirmationPayload) error {
	var fired bool
	return func(_ context.Context, outcome ConfirmationOutcome, payload *ConfirmationPayload) error {
		if fired {
			return fmt.Errorf("confirmation already resolved")
		}
		fired = true
		ch <- confirmResult{outcome: outcome, payload: payload}
		return nil
	}
}

// handleOutcome applies one ConfirmationOutcome. The returned bool
// reports whether the call reached a terminal-for-this-phase state
// (true) or confirmLoop should re-ask with a regenerated invocation
// (false, ModifyWithEditor only).
func (s *Scheduler) handleOutcome(ctx context.Context, batch *batchState, call *ToolCall, tool Tool, inv Invocation, details *ConfirmationDetails, res confirmResult) (Invocation, bool) {
	switch res.outcome {
	case Cancel:
		batch.transition(call, StatusCancelled, func() {
			call.Err = newError(ErrConfirmationAborted, "cancelled by user", nil)
			if details.Kind == KindEdit {
				call.ResultDisplay = &ResultDisplay{FileDiff: details.FileDiff, FileName: details.FileName}
			}
		})
		return inv, true

	case ProceedOnce:
		if res.payload != nil && res.payload.RevisedContent != "" {
			if revised, ok := inv.(Reviseable); ok {
				if next, err := revised.WithRevisedContent(res.payload.RevisedContent); err == nil {
					inv = next
				}
			}
		}
		batch.transition(call, StatusScheduled, func() {
			call.Invocation = inv
		})
		return inv, true

	case ProceedAlways:
		if details.Kind == KindEdit {
			s.SetApprovalMode(ApprovalAutoEdit)
			broadcastAutoEdit(batch, call)
		} else {
			s.addAllowedPattern(patternForAlways(call.Request.Name, details))
		}
		batch.transition(call, StatusScheduled, nil)
		return inv, true

	case ProceedAlwaysServer:
		if details.ServerName != "" {
			s.addAllowedPattern(allowlist.ParsePattern(details.ServerName))
		}
		batch.transition(call, StatusScheduled, nil)
		return inv, true

	case ProceedAlwaysTool:
		s.addAllowedPattern(allowlist.ParsePattern(call.Request.Name))
		batch.transition(call, StatusScheduled, nil)
		return inv, true

	case ModifyWithEditor:
		if s.getPreferredEditor == nil || s.onEditorClose == nil {
			batch.transition(call, StatusError, func() {
				call.Err = newError(ErrExecutionFailed, "no editor integration configured", nil)
			})
			return inv, true
		}
		editor := s.getPreferredEditor()
		edited, err := s.onEditorClose(editor, details.OriginalContent)
		if err != nil {
			batch.transition(call, StatusError, func() {
				call.Err = newError(ErrExecutionFailed, "editor integration failed", err)
			})
			return inv, true
		}
		if revised, ok := inv.(Reviseable); ok {
			if next, err := revised.WithRevisedContent(edited); err == nil {
				return next, false
			}
		}
		return inv, false

	default:
		batch.transition(call, StatusError, func() {
			call.Err = newError(ErrExecutionFailed, fmt.Sprintf("unknown confirmation outcome %q", res.outcome), nil)
		})
		return inv, true
	}
}

// broadcastAutoEdit resolves every other call in the batch that is
// currently awaiting_approval on an edit-kind confirmation, so an
// ApprovalAutoEdit flip takes effect for siblings already blocked in
// confirmLoop instead of leaving them for the real confirmer to prompt
// one at a time (§4.1 "Awaiting approval").
func broadcastAutoEdit(batch *batchState, except *ToolCall) {
	batch.mu.Lock()
	var pending []*ToolCall
	for _, c := range batch.calls {
		if c == except {
			continue
		}
		if c.Status == StatusAwaitingApproval && c.ConfirmationDetails != nil && c.ConfirmationDetails.Kind == KindEdit {
			pending = append(pending, c)
		}
	}
	batch.mu.Unlock()

	for _, c := range pending {
		c.ConfirmationDetails.OnConfirm(context.Background(), ProceedAlways, nil)
	}
}

// patternForAlways builds the allowlist pattern to remember for a
// ProceedAlways outcome on an exec-kind tool: the tool name scoped to
// the confirmed root command, so only that command family is
// auto-approved going forward.
func patternForAlways(toolName string, details *ConfirmationDetails) allowlist.Pattern {
	if details.RootCommand != "" {
		return allowlist.ParsePattern(toolName + "(" + details.RootCommand + ")")
	}
	return allowlist.ParsePattern(toolName)
}

func suggestionPhrase(want string, candidates []string) string {
	names := suggest.Names(want, candidates)
	switch len(names) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf(" Did you mean %q?", names[0])
	default:
		quoted := make([]string, len(names))
		for i, n := range names {
			quoted[i] = fmt.Sprintf("%q", n)
		}
		joined := quoted[0]
		for _, q := range quoted[1:] {
			joined += ", " + q
		}
		return fmt.Sprintf(" Did you mean one of: %s?", joined)
	}
}

func envelopePtr(e response.Envelope) *response.Envelope { return &e }
