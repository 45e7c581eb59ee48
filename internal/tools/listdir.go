package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ListDirTool lists the contents of a directory, one entry per line.
type ListDirTool struct{}

func (t *ListDirTool) Name() string                     { return "list_dir" }
func (t *ListDirTool) IsReadOnly() bool                 { return true }
func (t *ListDirTool) PermissionLevel() PermissionLevel { return PermissionRead }

func (t *ListDirTool) Description() string {
	return "List the contents of a directory, showing files and subdirectories with their sizes."
}

func (t *ListDirTool) Parameters() map[string]any {
	return map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Absolute path to the directory to list",
		},
	}
}

func (t *ListDirTool) Execute(_ context.Context, params json.RawMessage) (ToolResult, error) {
	var p struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return ToolResult{}, fmt.Errorf("invalid params: %w", err)
	}
	if p.Path == "" {
		return ToolResult{}, fmt.Errorf("path is required")
	}
	entries, err := os.ReadDir(p.Path)
	if err != nil {
		return ToolResult{}, fmt.Errorf("failed to read directory: %w", err)
	}
	if len(entries) == 0 {
		return ToolResult{Content: "(empty directory)"}, nil
	}
	var sb strings.Builder
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if entry.IsDir() {
			fmt.Fprintf(&sb, "[DIR]  %s\n", entry.Name())
		} else {
			fmt.Fprintf(&sb, "[FILE] %s (%s)\n", entry.Name(), formatEntrySize(info.Size()))
		}
	}
	return ToolResult{Content: sb.String()}, nil
}

func formatEntrySize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%dB", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
