package scheduler

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apexion-ai/apexion/internal/allowlist"
	"github.com/apexion-ai/apexion/internal/response"
)

// ---- test doubles -------------------------------------------------------

type fakeRegistry struct {
	tools map[string]*fakeTool
}

func newFakeRegistry(tools ...*fakeTool) *fakeRegistry {
	r := &fakeRegistry{tools: make(map[string]*fakeTool, len(tools))}
	for _, t := range tools {
		r.tools[t.name] = t
	}
	return r
}

func (r *fakeRegistry) GetTool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *fakeRegistry) GetAllToolNames() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}

type fakeTool struct {
	name  string
	build func(args json.RawMessage) (Invocation, error)
}

func (t *fakeTool) Name() string { return t.name }
func (t *fakeTool) BuildInvocation(args json.RawMessage) (Invocation, error) {
	return t.build(args)
}

// fakeInvocation backs exec-kind and other-kind calls.
type fakeInvocation struct {
	kind       ToolKind
	command    string
	hasCommand bool

	confirmDetails *ConfirmationDetails
	executed       int
	executeErr     error
	executeText    string
}

func (f *fakeInvocation) Kind() ToolKind { return f.kind }
func (f *fakeInvocation) Command() (string, bool) {
	return f.command, f.hasCommand
}
func (f *fakeInvocation) ShouldConfirmExecute(context.Context) (*ConfirmationDetails, error) {
	return f.confirmDetails, nil
}
func (f *fakeInvocation) Execute(context.Context) (response.LLMContent, ResultDisplay, error) {
	f.executed++
	if f.executeErr != nil {
		return response.LLMContent{}, ResultDisplay{}, f.executeErr
	}
	text := f.executeText
	return response.LLMContent{Text: &text}, ResultDisplay{Text: text}, nil
}

// fakeEditInvocation adds Reviseable and a FileDiff for cancel/revision tests.
type fakeEditInvocation struct {
	fakeInvocation
	diff    string
	content string
}

func (f *fakeEditInvocation) WithRevisedContent(content string) (Invocation, error) {
	return &fakeEditInvocation{
		fakeInvocation: fakeInvocation{
			kind:           KindEdit,
			confirmDetails: f.confirmDetails,
			executeText:    "applied:" + content,
		},
		diff:    f.diff,
		content: content,
	}, nil
}

// autoConfirmer drives OnToolCallsUpdate, resolving every awaiting_approval
// call whose tool name (or, if present, call ID) it has an outcome recorded
// for, at most once. Calls with neither a matching call-ID nor tool-name
// entry are left pending, so a test can check whether some other mechanism
// (e.g. a batch-wide approval-mode flip) resolves them instead.
type autoConfirmer struct {
	mu         sync.Mutex
	outcomes   map[string]ConfirmationOutcome
	byCallID   map[string]ConfirmationOutcome
	onlyListed bool
	resolved   map[string]bool
}

func newAutoConfirmer(outcomes map[string]ConfirmationOutcome) *autoConfirmer {
	return &autoConfirmer{outcomes: outcomes, resolved: make(map[string]bool)}
}

// newAutoConfirmerByCallID resolves only the listed call IDs, leaving every
// other awaiting_approval call pending indefinitely unless something else
// resolves it.
func newAutoConfirmerByCallID(outcomes map[string]ConfirmationOutcome) *autoConfirmer {
	return &autoConfirmer{byCallID: outcomes, onlyListed: true, resolved: make(map[string]bool)}
}

func (a *autoConfirmer) onUpdate(calls []ToolCall) {
	for _, call := range calls {
		if call.Status != StatusAwaitingApproval || call.ConfirmationDetails == nil {
			continue
		}

		var outcome ConfirmationOutcome
		var ok bool
		if a.onlyListed {
			outcome, ok = a.byCallID[call.Request.CallID]
			if !ok {
				continue
			}
		} else {
			outcome, ok = a.outcomes[call.Request.Name]
			if !ok {
				outcome = ProceedOnce
			}
		}

		a.mu.Lock()
		if a.resolved[call.Request.CallID] {
			a.mu.Unlock()
			continue
		}
		a.resolved[call.Request.CallID] = true
		a.mu.Unlock()

		_ = call.ConfirmationDetails.OnConfirm(context.Background(), outcome, nil)
	}
}

func waitComplete(t *testing.T, done chan []ToolCall) []ToolCall {
	t.Helper()
	select {
	case calls := <-done:
		return calls
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batch completion")
		return nil
	}
}

// ---- scenarios ------------------------------------------------------------

// A: a piped-suffix escalation must not be satisfied by an allowlist entry
// that only covers the command's first sub-command, in Default mode — the
// call must still require confirmation. In Yolo mode it proceeds without
// asking.
func TestPipedSuffixEscalation_BlockedInDefault_AllowedInYolo(t *testing.T) {
	buildShell := func(cmd string) *fakeInvocation {
		return &fakeInvocation{
			kind: KindExec, command: cmd, hasCommand: true,
			confirmDetails: &ConfirmationDetails{Kind: KindExec, Title: "run?", Command: cmd},
			executeText:    "ran",
		}
	}

	bashTool := &fakeTool{name: "bash", build: func(args json.RawMessage) (Invocation, error) {
		var p struct {
			Command string `json:"command"`
		}
		_ = json.Unmarshal(args, &p)
		return buildShell(p.Command), nil
	}}

	allowed := []allowlist.Pattern{allowlist.ParsePattern("bash(echo foo)")}

	// Default mode: the second sub-command ("echo \"evil\"") is not
	// covered, so the call must still hit confirmation.
	confirmer := newAutoConfirmer(map[string]ConfirmationOutcome{"bash": Cancel})
	done := make(chan []ToolCall, 1)
	sched := New(Config{
		Registry:               newFakeRegistry(bashTool),
		InitialApprovalMode:    ApprovalDefault,
		InitialAllowedPatterns: allowed,
		OnToolCallsUpdate:      confirmer.onUpdate,
		OnAllToolCallsComplete: func(calls []ToolCall) { done <- calls },
	})

	args, _ := json.Marshal(map[string]string{"command": `echo foo | echo "evil"`})
	if err := sched.Schedule(context.Background(), []ToolRequest{{CallID: "1", Name: "bash", Args: args}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	calls := waitComplete(t, done)
	if calls[0].Status != StatusCancelled {
		t.Fatalf("want cancelled (confirmation was required and denied), got %s", calls[0].Status)
	}

	// Yolo mode: skips confirmation entirely regardless of the allowlist.
	doneYolo := make(chan []ToolCall, 1)
	schedYolo := New(Config{
		Registry:               newFakeRegistry(bashTool),
		InitialApprovalMode:    ApprovalYolo,
		InitialAllowedPatterns: allowed,
		OnAllToolCallsComplete: func(calls []ToolCall) { doneYolo <- calls },
	})
	if err := schedYolo.Schedule(context.Background(), []ToolRequest{{CallID: "2", Name: "bash", Args: args}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	callsYolo := waitComplete(t, doneYolo)
	if callsYolo[0].Status != StatusSuccess {
		t.Fatalf("want success under yolo, got %s (err=%v)", callsYolo[0].Status, callsYolo[0].Err)
	}
}

// B: when every sub-command of a chained shell invocation independently
// matches an allowlist entry, the whole call is auto-approved.
func TestAllSubCommandsAllowed_AutoApproves(t *testing.T) {
	bashTool := &fakeTool{name: "bash", build: func(args json.RawMessage) (Invocation, error) {
		var p struct {
			Command string `json:"command"`
		}
		_ = json.Unmarshal(args, &p)
		return &fakeInvocation{
			kind: KindExec, command: p.Command, hasCommand: true,
			confirmDetails: &ConfirmationDetails{Kind: KindExec, Title: "run?", Command: p.Command},
			executeText:    "ran",
		}, nil
	}}

	allowed := []allowlist.Pattern{
		allowlist.ParsePattern("bash(echo foo)"),
		allowlist.ParsePattern("bash(echo bar)"),
	}

	done := make(chan []ToolCall, 1)
	sched := New(Config{
		Registry:               newFakeRegistry(bashTool),
		InitialApprovalMode:    ApprovalDefault,
		InitialAllowedPatterns: allowed,
		// No confirmer wired: if confirmation were requested, the call
		// would hang forever and the test would time out.
		OnAllToolCallsComplete: func(calls []ToolCall) { done <- calls },
	})

	args, _ := json.Marshal(map[string]string{"command": "echo foo && echo bar"})
	if err := sched.Schedule(context.Background(), []ToolRequest{{CallID: "1", Name: "bash", Args: args}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	calls := waitComplete(t, done)
	if calls[0].Status != StatusSuccess {
		t.Fatalf("want success, got %s (err=%v)", calls[0].Status, calls[0].Err)
	}
}

// C: ProceedAlways on an edit-kind call flips the session into AutoEdit
// mode, auto-approving a second, independent edit call awaiting approval
// in the same batch.
func TestProceedAlwaysEdit_AutoApprovesSiblingEditInSameBatch(t *testing.T) {
	makeEditTool := func(name string) *fakeTool {
		return &fakeTool{name: name, build: func(args json.RawMessage) (Invocation, error) {
			return &fakeEditInvocation{
				fakeInvocation: fakeInvocation{
					kind:           KindEdit,
					confirmDetails: &ConfirmationDetails{Kind: KindEdit, Title: "apply edit?", FileDiff: "-a\n+b\n"},
					executeText:    "edited",
				},
				diff: "-a\n+b\n",
			}, nil
		}}
	}

	reg := newFakeRegistry(makeEditTool("edit_file"))
	// Only call "1" ever gets an explicit outcome from the confirmer; call
	// "2" must reach success purely because the ProceedAlways flip on call
	// "1" re-resolves other awaiting_approval edit calls in the same batch.
	// If that propagation regresses, call "2" hangs until waitComplete's
	// timeout fires it as a failure.
	confirmer := newAutoConfirmerByCallID(map[string]ConfirmationOutcome{"1": ProceedAlways})

	done := make(chan []ToolCall, 1)
	sched := New(Config{
		Registry:               reg,
		InitialApprovalMode:    ApprovalDefault,
		OnToolCallsUpdate:      confirmer.onUpdate,
		OnAllToolCallsComplete: func(calls []ToolCall) { done <- calls },
	})

	reqs := []ToolRequest{
		{CallID: "1", Name: "edit_file", Args: json.RawMessage(`{}`)},
		{CallID: "2", Name: "edit_file", Args: json.RawMessage(`{}`)},
	}
	if err := sched.Schedule(context.Background(), reqs); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	calls := waitComplete(t, done)
	for _, c := range calls {
		if c.Status != StatusSuccess {
			t.Fatalf("call %s: want success, got %s (err=%v)", c.Request.CallID, c.Status, c.Err)
		}
	}
	if sched.ApprovalMode() != ApprovalAutoEdit {
		t.Fatalf("want session approval mode auto_edit after ProceedAlways on an edit, got %s", sched.ApprovalMode())
	}
}

// D: cancelling a pending edit confirmation still preserves the diff on
// ResultDisplay, even though the call ends in StatusCancelled.
func TestCancelEdit_PreservesDiff(t *testing.T) {
	diff := "-old\n+new\n"
	editTool := &fakeTool{name: "edit_file", build: func(args json.RawMessage) (Invocation, error) {
		return &fakeEditInvocation{
			fakeInvocation: fakeInvocation{
				kind:           KindEdit,
				confirmDetails: &ConfirmationDetails{Kind: KindEdit, Title: "apply edit?", FileDiff: diff, FileName: "f.go"},
				executeText:    "edited",
			},
			diff: diff,
		}, nil
	}}

	confirmer := newAutoConfirmer(map[string]ConfirmationOutcome{"edit_file": Cancel})
	done := make(chan []ToolCall, 1)
	sched := New(Config{
		Registry:               newFakeRegistry(editTool),
		OnToolCallsUpdate:      confirmer.onUpdate,
		OnAllToolCallsComplete: func(calls []ToolCall) { done <- calls },
	})

	if err := sched.Schedule(context.Background(), []ToolRequest{{CallID: "1", Name: "edit_file", Args: json.RawMessage(`{}`)}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	calls := waitComplete(t, done)
	if calls[0].Status != StatusCancelled {
		t.Fatalf("want cancelled, got %s", calls[0].Status)
	}
	if calls[0].ResultDisplay == nil || calls[0].ResultDisplay.FileDiff != diff {
		t.Fatalf("want cancelled call to retain FileDiff %q, got %+v", diff, calls[0].ResultDisplay)
	}
}

// E: a pre-aborted context cancels every call immediately without ever
// invoking the tool.
func TestPreAbortedContext_CancelsWithoutExecuting(t *testing.T) {
	inv := &fakeInvocation{kind: KindOther, executeText: "should not run"}
	tool := &fakeTool{name: "noop", build: func(json.RawMessage) (Invocation, error) { return inv, nil }}

	done := make(chan []ToolCall, 1)
	sched := New(Config{
		Registry:               newFakeRegistry(tool),
		OnAllToolCallsComplete: func(calls []ToolCall) { done <- calls },
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sched.Schedule(ctx, []ToolRequest{{CallID: "1", Name: "noop", Args: json.RawMessage(`{}`)}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	calls := waitComplete(t, done)
	if calls[0].Status != StatusCancelled {
		t.Fatalf("want cancelled, got %s", calls[0].Status)
	}
	if inv.executed != 0 {
		t.Fatalf("want Execute never called on a pre-aborted batch, got %d calls", inv.executed)
	}
}

// F: OnAllToolCallsComplete fires exactly once per batch, with every call
// in a terminal status, regardless of how many calls the batch contained
// or whether some needed confirmation.
func TestOnAllToolCallsComplete_FiresOnceWithAllCallsTerminal(t *testing.T) {
	plainTool := &fakeTool{name: "plain", build: func(json.RawMessage) (Invocation, error) {
		return &fakeInvocation{kind: KindOther, executeText: "ok"}, nil
	}}
	execTool := &fakeTool{name: "bash", build: func(args json.RawMessage) (Invocation, error) {
		var p struct {
			Command string `json:"command"`
		}
		_ = json.Unmarshal(args, &p)
		return &fakeInvocation{
			kind: KindExec, command: p.Command, hasCommand: true,
			confirmDetails: &ConfirmationDetails{Kind: KindExec, Title: "run?", Command: p.Command},
			executeText:    "ran",
		}, nil
	}}
	reg := newFakeRegistry(plainTool, execTool)
	confirmer := newAutoConfirmer(map[string]ConfirmationOutcome{"bash": ProceedOnce})

	var completeCount int
	var mu sync.Mutex
	done := make(chan []ToolCall, 1)
	sched := New(Config{
		Registry:          reg,
		OnToolCallsUpdate: confirmer.onUpdate,
		OnAllToolCallsComplete: func(calls []ToolCall) {
			mu.Lock()
			completeCount++
			mu.Unlock()
			done <- calls
		},
	})

	args, _ := json.Marshal(map[string]string{"command": "echo hi"})
	reqs := []ToolRequest{
		{CallID: "1", Name: "plain", Args: json.RawMessage(`{}`)},
		{CallID: "2", Name: "bash", Args: args},
		{CallID: "3", Name: "nonexistent_tool", Args: json.RawMessage(`{}`)},
	}
	if err := sched.Schedule(context.Background(), reqs); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	calls := waitComplete(t, done)

	if len(calls) != 3 {
		t.Fatalf("want 3 calls in final snapshot, got %d", len(calls))
	}
	for _, c := range calls {
		if c.Status != StatusSuccess && c.Status != StatusError {
			t.Fatalf("call %s: want terminal status, got %s", c.Request.CallID, c.Status)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if completeCount != 1 {
		t.Fatalf("want OnAllToolCallsComplete called exactly once, got %d", completeCount)
	}
}

// G: an unknown tool name produces a suggestion phrase in the error and
// terminates the call as StatusError without scheduling execution.
func TestUnknownTool_SuggestsNearestName(t *testing.T) {
	tool := &fakeTool{name: "bash", build: func(json.RawMessage) (Invocation, error) {
		return &fakeInvocation{kind: KindOther, executeText: "ok"}, nil
	}}

	done := make(chan []ToolCall, 1)
	sched := New(Config{
		Registry:               newFakeRegistry(tool),
		OnAllToolCallsComplete: func(calls []ToolCall) { done <- calls },
	})

	if err := sched.Schedule(context.Background(), []ToolRequest{{CallID: "1", Name: "bsah", Args: json.RawMessage(`{}`)}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	calls := waitComplete(t, done)
	if calls[0].Status != StatusError {
		t.Fatalf("want error, got %s", calls[0].Status)
	}
	if calls[0].Response == nil || !strings.Contains(calls[0].Response.FunctionResponse.Output, "bash") {
		t.Fatalf("want response output to suggest %q, got %+v", "bash", calls[0].Response)
	}
}
