package scheduler

import (
	"context"
	"time"

	"github.com/apexion-ai/apexion/internal/output"
	"github.com/apexion-ai/apexion/internal/response"
)

// executeOne runs a scheduled call's invocation and reduces its result to
// a terminal state (§4.1 "Execution").
func (s *Scheduler) executeOne(ctx context.Context, batch *batchState, call *ToolCall) {
	batch.transition(call, StatusExecuting, func() {
		call.StartTime = time.Now()
	})

	content, display, err := call.Invocation.Execute(ctx)

	if err != nil {
		if ctx.Err() != nil {
			batch.transition(call, StatusCancelled, func() {
				call.EndTime = time.Now()
				call.Err = newError(ErrConfirmationAborted, "aborted during execution", ctx.Err())
				call.ResultDisplay = &display
			})
			return
		}
		batch.transition(call, StatusError, func() {
			call.EndTime = time.Now()
			call.Err = newError(ErrExecutionFailed, "tool execution failed", err)
			call.ResultDisplay = &display
		})
		return
	}

	s.postprocess(call.Request.CallID, &content)
	env := response.ConvertToFunctionResponse(call.Request.Name, call.Request.CallID, content)

	batch.transition(call, StatusSuccess, func() {
		call.EndTime = time.Now()
		call.Response = &env
		call.ResultDisplay = &display
	})
}

// postprocess truncates content.Text in place via internal/output when it
// exceeds the scheduler's configured threshold (§4.4). Output-spill
// failures are non-fatal (§7 ErrOutputSpillFailed): TruncateAndSaveToFile
// already annotates the returned content when it couldn't write the file,
// so there is nothing further to surface here.
func (s *Scheduler) postprocess(callID string, content *response.LLMContent) {
	if content.Text == nil {
		return
	}
	res := output.TruncateAndSaveToFile(*content.Text, callID, s.tempDir, s.outputThresholdBytes, s.outputTruncateLines)
	*content.Text = res.Content
}
