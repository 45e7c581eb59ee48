// Package scheduler implements the core tool-call scheduler: the
// validation → confirmation → execution → completion lifecycle that
// mediates between a model-driven orchestrator and the tools it invokes.
package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apexion-ai/apexion/internal/response"
)

// ToolRequest is one tool invocation requested by the orchestrator. It is
// immutable once submitted to Schedule.
type ToolRequest struct {
	// CallID is unique within the batch.
	CallID string
	// Name is the tool identifier as the model referenced it.
	Name string
	// Args is the opaque, tool-specific structured parameters.
	Args json.RawMessage
	// IsClientInitiated is true when the request was synthesized
	// internally rather than requested by the model.
	IsClientInitiated bool
	// PromptID groups every request from one model turn.
	PromptID string
}

// Status is the tag of the ToolCall state machine.
type Status string

const (
	StatusValidating       Status = "validating"
	StatusScheduled        Status = "scheduled"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusExecuting        Status = "executing"
	StatusSuccess          Status = "success"
	StatusError            Status = "error"
	StatusCancelled        Status = "cancelled"
)

// terminal reports whether s is one of the terminal states.
func (s Status) terminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusCancelled
}

// ToolKind distinguishes the families of tool whose confirmation and
// approval-mode handling differ (§3 ConfirmationDetails, §4.1 entry
// protocol's AutoEdit short-circuit).
type ToolKind string

const (
	KindEdit  ToolKind = "edit"
	KindExec  ToolKind = "exec"
	KindMCP   ToolKind = "mcp"
	KindOther ToolKind = "other"
)

// ConfirmationOutcome is the user's response to a pending confirmation.
type ConfirmationOutcome string

const (
	ProceedOnce          ConfirmationOutcome = "proceed_once"
	ProceedAlways        ConfirmationOutcome = "proceed_always"
	ProceedAlwaysServer  ConfirmationOutcome = "proceed_always_server"
	ProceedAlwaysTool    ConfirmationOutcome = "proceed_always_tool"
	ModifyWithEditor     ConfirmationOutcome = "modify_with_editor"
	Cancel               ConfirmationOutcome = "cancel"
)

// ApprovalMode is the session-wide policy gating confirmations.
type ApprovalMode string

const (
	// ApprovalDefault prompts on every non-allowlisted call.
	ApprovalDefault ApprovalMode = "default"
	// ApprovalAutoEdit skips confirmation for edit-kind tools.
	ApprovalAutoEdit ApprovalMode = "auto_edit"
	// ApprovalYolo skips all confirmations.
	ApprovalYolo ApprovalMode = "yolo"
)

// ConfirmationDetails describes a pending confirmation. Kind selects which
// of the variant fields below are meaningful; callers must not read
// fields outside their Kind's set.
type ConfirmationDetails struct {
	Kind  ToolKind
	Title string

	// OnConfirm delivers the user's decision back to the scheduler. It
	// may be called at most once; later calls return an error.
	OnConfirm func(ctx context.Context, outcome ConfirmationOutcome, payload *ConfirmationPayload) error

	// edit
	FileName        string
	FilePath        string
	FileDiff        string
	OriginalContent string
	NewContent      string
	IsModifying     bool

	// exec
	Command     string
	RootCommand string

	// mcp
	ServerName      string
	ToolName        string
	ToolDisplayName string

	// info
	Prompt string
	URLs   []string
}

// ConfirmationPayload carries the optional data accompanying a
// ConfirmationOutcome, e.g. user-revised file content for ProceedOnce.
type ConfirmationPayload struct {
	RevisedContent string
}

// ResultDisplay is the human-renderable outcome of a terminal call,
// retained even on cancellation for diff-producing tools (invariant 5).
type ResultDisplay struct {
	FileDiff string
	FileName string
	Text     string
}

// ToolCall is the scheduler's per-request state. Status selects which of
// the state-specific fields are populated; see §3 of the design for the
// exact field set each status carries.
type ToolCall struct {
	Request    ToolRequest
	Status     Status
	Tool       Tool
	Invocation Invocation

	StartTime time.Time
	EndTime   time.Time

	// awaiting_approval
	ConfirmationDetails *ConfirmationDetails

	// success / error / cancelled
	Response      *response.Envelope
	ResultDisplay *ResultDisplay
	Err           error
}

// snapshot returns a shallow copy safe to hand to observers without
// exposing the live pointer the scheduler continues to mutate.
func (c *ToolCall) snapshot() ToolCall {
	return *c
}
