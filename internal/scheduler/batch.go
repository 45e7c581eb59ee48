package scheduler

import (
	"context"
	"sync"

	"github.com/apexion-ai/apexion/internal/eventlog"
)

// batchState holds the working set for one batch and serializes mutation
// + observer notification so concurrently running calls never race each
// other's snapshot (§5 "the per-call state machine is the only mutator
// of its call"; snapshots must still be taken under a single lock since
// onToolCallsUpdate receives the whole batch).
type batchState struct {
	id    string
	mu    sync.Mutex
	calls []*ToolCall
	sched *Scheduler
}

func (b *batchState) snapshot() []ToolCall {
	out := make([]ToolCall, len(b.calls))
	for i, c := range b.calls {
		out[i] = c.snapshot()
	}
	return out
}

// transition applies mutate to call under the batch lock, sets its
// Status, and emits the resulting batch snapshot to the observer.
func (b *batchState) transition(call *ToolCall, status Status, mutate func()) {
	b.mu.Lock()
	if mutate != nil {
		mutate()
	}
	call.Status = status
	snap := b.snapshot()
	b.mu.Unlock()

	b.sched.onUpdate(snap)
	b.sched.logger.Log(b.id, statusEvent(status), map[string]any{
		"call_id": call.Request.CallID,
		"tool":    call.Request.Name,
		"status":  string(status),
	})
}

func statusEvent(s Status) eventlog.EventType {
	switch s {
	case StatusScheduled:
		return eventlog.EventToolCallScheduled
	case StatusAwaitingApproval:
		return eventlog.EventToolCallAwaitingApproval
	case StatusExecuting:
		return eventlog.EventToolCallExecuting
	default:
		return eventlog.EventToolCallCompleted
	}
}

// runBatch drives one batch through the entry protocol, confirmation,
// execution, and completion (§4.1). It never returns an error to the
// caller for per-call failures — those become terminal states on the
// individual calls — only for conditions that prevent the batch from
// running at all, which in this implementation never occur.
func (s *Scheduler) runBatch(ctx context.Context, requests []ToolRequest) error {
	calls := make([]*ToolCall, len(requests))
	for i, req := range requests {
		calls[i] = &ToolCall{Request: req, Status: StatusValidating}
	}

	batch := &batchState{id: newBatchID(), calls: calls, sched: s}

	// Emit the initial "validating" snapshot (§4.1 step 1) before any
	// per-call work begins.
	s.onUpdate(batch.snapshot())

	if ctx.Err() != nil {
		// Abort fired before schedule began work: every call becomes
		// cancelled immediately (§5).
		for _, call := range calls {
			batch.transition(call, StatusCancelled, func() {
				call.Err = newError(ErrConfirmationAborted, "aborted before scheduling", ctx.Err())
			})
		}
		s.finishBatch(batch)
		return nil
	}

	var wg sync.WaitGroup
	for _, call := range calls {
		wg.Add(1)
		go func(call *ToolCall) {
			defer wg.Done()
			s.admitOne(ctx, batch, call)
		}(call)
	}
	wg.Wait()

	var wg2 sync.WaitGroup
	for _, call := range calls {
		if call.Status != StatusScheduled {
			continue
		}
		wg2.Add(1)
		go func(call *ToolCall) {
			defer wg2.Done()
			s.executeOne(ctx, batch, call)
		}(call)
	}
	wg2.Wait()

	s.finishBatch(batch)
	return nil
}

func (s *Scheduler) finishBatch(batch *batchState) {
	snap := batch.snapshot()
	s.onComplete(snap)
	s.logger.Log(batch.id, eventlog.EventBatchComplete, map[string]any{"calls": len(snap)})
}
