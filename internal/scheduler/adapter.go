package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/apexion-ai/apexion/internal/allowlist"
	"github.com/apexion-ai/apexion/internal/response"
	"github.com/apexion-ai/apexion/internal/tools"
)

// ToolRegistry is the subset of *tools.Registry the adapter needs,
// satisfied by *tools.Registry itself.
type ToolRegistry interface {
	Get(name string) (tools.Tool, bool)
	All() []tools.Tool
}

// shellStemmables are the multi-word command families whose confirmation
// and allowlist display should stem past the subcommand (e.g. "gh run").
var shellStemmables = []string{"git", "go", "npm", "npx", "yarn", "pnpm", "gh run", "gh pr", "docker", "kubectl"}

// RegistryAdapter wraps an internal/tools.Registry so it satisfies
// scheduler.Registry, translating each tools.Tool into a scheduler.Tool
// that builds kind-appropriate Invocations (§3, §4.1).
type RegistryAdapter struct {
	reg ToolRegistry
}

// NewRegistryAdapter adapts reg for use as a Scheduler's Registry.
func NewRegistryAdapter(reg ToolRegistry) *RegistryAdapter {
	return &RegistryAdapter{reg: reg}
}

func (a *RegistryAdapter) GetTool(name string) (Tool, bool) {
	t, ok := a.reg.Get(name)
	if !ok {
		return nil, false
	}
	return &toolAdapter{tool: t}, true
}

func (a *RegistryAdapter) GetAllToolNames() []string {
	all := a.reg.All()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Name()
	}
	return names
}

type toolAdapter struct {
	tool tools.Tool
}

func (t *toolAdapter) Name() string { return t.tool.Name() }

func (t *toolAdapter) kind() ToolKind {
	switch t.tool.Name() {
	case "edit_file", "write_file":
		return KindEdit
	}
	switch t.tool.PermissionLevel() {
	case tools.PermissionExecute, tools.PermissionDangerous:
		return KindExec
	default:
		return KindOther
	}
}

func (t *toolAdapter) BuildInvocation(args json.RawMessage) (Invocation, error) {
	switch t.tool.Name() {
	case "edit_file":
		return newEditInvocation(t.tool, args)
	case "write_file":
		return newWriteInvocation(t.tool, args)
	}
	if t.kind() == KindExec {
		return newExecInvocation(t.tool, args)
	}
	return &plainInvocation{tool: t.tool, args: args, kind: t.kind()}, nil
}

// plainInvocation covers read-only and otherwise unclassified tools:
// never asks for confirmation and executes the underlying tool directly.
type plainInvocation struct {
	tool tools.Tool
	args json.RawMessage
	kind ToolKind
}

func (p *plainInvocation) Kind() ToolKind { return p.kind }

func (p *plainInvocation) ShouldConfirmExecute(context.Context) (*ConfirmationDetails, error) {
	return nil, nil
}

func (p *plainInvocation) Command() (string, bool) { return "", false }

func (p *plainInvocation) Execute(ctx context.Context) (response.LLMContent, ResultDisplay, error) {
	res, err := p.tool.Execute(ctx, p.args)
	return toolResultToContent(res, err)
}

// execInvocation covers exec-kind tools (bash/run_shell_command/shell):
// confirmation shows the literal command and its recognized root prefix.
type execInvocation struct {
	tool    tools.Tool
	args    json.RawMessage
	command string
}

func newExecInvocation(tool tools.Tool, args json.RawMessage) (Invocation, error) {
	var p struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if p.Command == "" {
		return nil, fmt.Errorf("command is required")
	}
	return &execInvocation{tool: tool, args: args, command: p.Command}, nil
}

func (e *execInvocation) Kind() ToolKind { return KindExec }

func (e *execInvocation) Command() (string, bool) { return e.command, true }

func (e *execInvocation) ShouldConfirmExecute(context.Context) (*ConfirmationDetails, error) {
	root := allowlist.CommandPrefix(e.command, shellStemmables)
	return &ConfirmationDetails{
		Kind:        KindExec,
		Title:       "Run shell command?",
		Command:     e.command,
		RootCommand: root,
	}, nil
}

func (e *execInvocation) Execute(ctx context.Context) (response.LLMContent, ResultDisplay, error) {
	res, err := e.tool.Execute(ctx, e.args)
	return toolResultToContent(res, err)
}

// editInvocation covers write-kind file tools (edit_file/write_file):
// confirmation shows a unified diff of the pending change, and the
// content may be revised before execution (ProceedOnce payload or
// ModifyWithEditor).
type editInvocation struct {
	tool     tools.Tool
	filePath string
	original string
	proposed string
	execute  func(ctx context.Context, filePath, content string) (tools.ToolResult, error)
}

func newEditInvocation(tool tools.Tool, args json.RawMessage) (Invocation, error) {
	var p struct {
		FilePath  string `json:"file_path"`
		OldString string `json:"old_string"`
		NewString string `json:"new_string"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if p.FilePath == "" {
		return nil, fmt.Errorf("file_path is required")
	}
	original, err := readFileOrEmpty(p.FilePath)
	if err != nil {
		return nil, err
	}
	proposed, ok := tools.PreviewReplace(original, p.OldString, p.NewString)
	if !ok {
		proposed = original
	}
	return &editInvocation{
		tool:     tool,
		filePath: p.FilePath,
		original: original,
		proposed: proposed,
		execute: func(ctx context.Context, filePath, content string) (tools.ToolResult, error) {
			raw, _ := json.Marshal(map[string]string{
				"file_path":  filePath,
				"old_string": original,
				"new_string": content,
			})
			return tool.Execute(ctx, raw)
		},
	}, nil
}

func newWriteInvocation(tool tools.Tool, args json.RawMessage) (Invocation, error) {
	var p struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if p.FilePath == "" {
		return nil, fmt.Errorf("file_path is required")
	}
	original, err := readFileOrEmpty(p.FilePath)
	if err != nil {
		return nil, err
	}
	return &editInvocation{
		tool:     tool,
		filePath: p.FilePath,
		original: original,
		proposed: p.Content,
		execute: func(ctx context.Context, filePath, content string) (tools.ToolResult, error) {
			raw, _ := json.Marshal(map[string]string{
				"file_path": filePath,
				"content":   content,
			})
			return tool.Execute(ctx, raw)
		},
	}, nil
}

func (e *editInvocation) Kind() ToolKind          { return KindEdit }
func (e *editInvocation) Command() (string, bool) { return "", false }

func (e *editInvocation) ShouldConfirmExecute(context.Context) (*ConfirmationDetails, error) {
	diff := unifiedDiff(e.filePath, e.original, e.proposed)
	return &ConfirmationDetails{
		Kind:            KindEdit,
		Title:           "Apply file edit?",
		FileName:        e.filePath,
		FilePath:        e.filePath,
		FileDiff:        diff,
		OriginalContent: e.original,
		NewContent:      e.proposed,
	}, nil
}

func (e *editInvocation) WithRevisedContent(content string) (Invocation, error) {
	return &editInvocation{
		tool:     e.tool,
		filePath: e.filePath,
		original: e.original,
		proposed: content,
		execute:  e.execute,
	}, nil
}

func (e *editInvocation) Execute(ctx context.Context) (response.LLMContent, ResultDisplay, error) {
	res, err := e.execute(ctx, e.filePath, e.proposed)
	content, display, cerr := toolResultToContent(res, err)
	display.FileDiff = unifiedDiff(e.filePath, e.original, e.proposed)
	display.FileName = e.filePath
	return content, display, cerr
}

// toolResultToContent bridges internal/tools' (ToolResult, error) return
// shape into the scheduler's (LLMContent, ResultDisplay, error) shape.
func toolResultToContent(res tools.ToolResult, err error) (response.LLMContent, ResultDisplay, error) {
	if err != nil {
		return response.LLMContent{}, ResultDisplay{}, err
	}
	if res.UserCancelled {
		return response.LLMContent{}, ResultDisplay{Text: res.Content}, fmt.Errorf("tool execution cancelled")
	}
	if res.IsError {
		return response.LLMContent{}, ResultDisplay{Text: res.Content}, fmt.Errorf("%s", res.Content)
	}
	text := res.Content
	return response.LLMContent{Text: &text}, ResultDisplay{Text: res.Content}, nil
}

func readFileOrEmpty(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

func unifiedDiff(path, before, after string) string {
	if before == after {
		return ""
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}
