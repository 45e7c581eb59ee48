package scheduler

import (
	"context"
	"encoding/json"

	"github.com/apexion-ai/apexion/internal/response"
)

// Registry is the minimal shape the scheduler depends on (§4.8). A
// concrete registry may expose richer discovery behavior; the scheduler
// must not assume more than this.
type Registry interface {
	GetTool(name string) (Tool, bool)
	GetAllToolNames() []string
}

// Tool is a resolved, declarative tool the registry can hand back. It
// builds an Invocation for a concrete set of arguments.
type Tool interface {
	Name() string
	BuildInvocation(args json.RawMessage) (Invocation, error)
}

// Invocation is one concrete, parameter-bound call into a tool.
type Invocation interface {
	// Kind classifies the invocation for approval-mode and confirmation
	// purposes.
	Kind() ToolKind

	// ShouldConfirmExecute asks whether the call requires interactive
	// confirmation before running. Returning (nil, nil) means no
	// confirmation is needed.
	ShouldConfirmExecute(ctx context.Context) (*ConfirmationDetails, error)

	// Execute runs the tool and returns its raw content, a display form,
	// or an error. Execute must respect ctx cancellation.
	Execute(ctx context.Context) (response.LLMContent, ResultDisplay, error)

	// Command returns the shell command string for shell-like
	// invocations, and false for everything else.
	Command() (string, bool)
}

// Reviseable is implemented by invocations that can be rebuilt with
// user-revised content, e.g. an edit tool after ProceedOnce with a
// payload or after ModifyWithEditor closes. Invocations that don't
// support revision simply don't implement this interface.
type Reviseable interface {
	WithRevisedContent(content string) (Invocation, error)
}
