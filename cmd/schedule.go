package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/apexion-ai/apexion/internal/allowlist"
	"github.com/apexion-ai/apexion/internal/eventlog"
	"github.com/apexion-ai/apexion/internal/scheduler"
	"github.com/apexion-ai/apexion/internal/tools"
)

// scheduleRequest is the stdin wire shape for one pending tool call.
type scheduleRequest struct {
	CallID            string          `json:"call_id"`
	Name              string          `json:"name"`
	Args              json.RawMessage `json:"args"`
	IsClientInitiated bool            `json:"is_client_initiated"`
	PromptID          string          `json:"prompt_id"`
}

// scheduleResult is the stdout wire shape for one completed tool call.
type scheduleResult struct {
	CallID   string `json:"call_id"`
	Status   string `json:"status"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
	FileDiff string `json:"file_diff,omitempty"`
}

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run a batch of tool requests (read as a JSON array from stdin) through the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd)
		},
	}
	return cmd
}

func runSchedule(cmd *cobra.Command) error {
	cfg := initConfig()

	raw, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}
	var reqs []scheduleRequest
	if err := json.Unmarshal(raw, &reqs); err != nil {
		return fmt.Errorf("invalid tool request batch: %w", err)
	}

	requests := make([]scheduler.ToolRequest, len(reqs))
	for i, r := range reqs {
		requests[i] = scheduler.ToolRequest{
			CallID:            r.CallID,
			Name:              r.Name,
			Args:              r.Args,
			IsClientInitiated: r.IsClientInitiated,
			PromptID:          r.PromptID,
		}
	}

	var logger *eventlog.Logger
	if cfg.Scheduler.TempDir != "" {
		logger, _ = eventlog.New(cfg.Scheduler.TempDir)
		defer logger.Close()
	}

	registry := tools.DefaultRegistry(&tools.BashToolConfig{
		WorkDir:  cfg.Sandbox.WorkDir,
		AuditLog: cfg.Sandbox.AuditLog,
	})
	confirmer := newTerminalConfirmer(cmd.ErrOrStderr(), os.Stdin)

	approvalMode := scheduler.ApprovalDefault
	switch cfg.Permissions.Mode {
	case "yolo":
		approvalMode = scheduler.ApprovalYolo
	case "auto-edit", "auto-approve":
		approvalMode = scheduler.ApprovalAutoEdit
	}

	patterns := make([]allowlist.Pattern, 0, len(cfg.Permissions.AllowedCommands)+len(cfg.Permissions.AutoApproveTools))
	for _, name := range cfg.Permissions.AutoApproveTools {
		patterns = append(patterns, allowlist.ParsePattern(name))
	}
	for _, prefix := range cfg.Permissions.AllowedCommands {
		for _, shellName := range allowlist.ShellToolNames {
			patterns = append(patterns, allowlist.ParsePattern(shellName+"("+prefix+")"))
		}
	}

	var final []scheduler.ToolCall
	done := make(chan struct{})
	sched := scheduler.New(scheduler.Config{
		Registry:               scheduler.NewRegistryAdapter(registry),
		TempDir:                cfg.Scheduler.TempDir,
		OutputThresholdBytes:   cfg.Scheduler.OutputThresholdBytes,
		OutputTruncateLines:    cfg.Scheduler.OutputTruncateLines,
		InitialApprovalMode:    approvalMode,
		InitialAllowedPatterns: patterns,
		Logger:                 logger,
		OnToolCallsUpdate:      func(calls []scheduler.ToolCall) { announcePending(calls, confirmer) },
		OnAllToolCallsComplete: func(calls []scheduler.ToolCall) {
			final = calls
			close(done)
		},
	})

	if err := sched.Schedule(cmd.Context(), requests); err != nil {
		return err
	}
	<-done

	results := make([]scheduleResult, len(final))
	for i, call := range final {
		res := scheduleResult{CallID: call.Request.CallID, Status: string(call.Status)}
		if call.Response != nil {
			res.Output = call.Response.FunctionResponse.Output
		}
		if call.Err != nil {
			res.Error = call.Err.Error()
		}
		if call.ResultDisplay != nil {
			res.FileDiff = call.ResultDisplay.FileDiff
		}
		results[i] = res
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// announcePending resolves every awaiting_approval call in calls by
// prompting the terminal confirmer, once per call (the confirmer dedupes
// by call ID, so repeated snapshots of the same call don't re-prompt).
func announcePending(calls []scheduler.ToolCall, confirmer *terminalConfirmer) {
	for _, call := range calls {
		if call.Status != scheduler.StatusAwaitingApproval || call.ConfirmationDetails == nil {
			continue
		}
		confirmer.resolve(call)
	}
}

// terminalConfirmer prompts on a terminal for each confirmation it has not
// already resolved, tracked by call ID so concurrent repeat snapshots
// don't re-prompt.
type terminalConfirmer struct {
	mu       sync.Mutex
	out      io.Writer
	in       *bufio.Reader
	isTTY    bool
	resolved map[string]bool
}

func newTerminalConfirmer(out io.Writer, stdin *os.File) *terminalConfirmer {
	return &terminalConfirmer{
		out:      out,
		in:       bufio.NewReader(stdin),
		isTTY:    isatty.IsTerminal(stdin.Fd()),
		resolved: make(map[string]bool),
	}
}

func (c *terminalConfirmer) resolve(call scheduler.ToolCall) {
	c.mu.Lock()
	key := call.Request.CallID
	if c.resolved[key] {
		c.mu.Unlock()
		return
	}
	c.resolved[key] = true
	defer c.mu.Unlock()

	details := call.ConfirmationDetails
	fmt.Fprintf(c.out, "\n%s\n", details.Title)
	switch details.Kind {
	case scheduler.KindExec:
		fmt.Fprintf(c.out, "  command: %s\n", details.Command)
	case scheduler.KindEdit:
		fmt.Fprintf(c.out, "  file: %s\n%s\n", details.FileName, details.FileDiff)
	case scheduler.KindMCP:
		fmt.Fprintf(c.out, "  server: %s tool: %s\n", details.ServerName, details.ToolDisplayName)
	}

	outcome := scheduler.ProceedOnce
	if !c.isTTY {
		fmt.Fprintln(c.out, "  (no TTY attached, cancelling)")
		outcome = scheduler.Cancel
	} else {
		fmt.Fprint(c.out, "  allow? [y]es/[n]o/[a]lways/[c]ancel: ")
		line, _ := c.in.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes", "":
			outcome = scheduler.ProceedOnce
		case "a", "always":
			outcome = scheduler.ProceedAlways
		default:
			outcome = scheduler.Cancel
		}
	}

	if err := details.OnConfirm(context.Background(), outcome, nil); err != nil {
		fmt.Fprintf(c.out, "  confirmation error: %v\n", err)
	}
}
