package scheduler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apexion-ai/apexion/internal/tools"
)

func TestRegistryAdapter_GetToolAndNames(t *testing.T) {
	reg := tools.ReadOnlyRegistry()
	adapter := NewRegistryAdapter(reg)

	if _, ok := adapter.GetTool("nonexistent"); ok {
		t.Fatal("expected GetTool to report false for an unregistered name")
	}
	if _, ok := adapter.GetTool("read_file"); !ok {
		t.Fatal("expected GetTool to find read_file")
	}

	names := adapter.GetAllToolNames()
	found := false
	for _, n := range names {
		if n == "read_file" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected read_file in %v", names)
	}
}

func TestExecInvocation_ConfirmationShowsRootCommand(t *testing.T) {
	adapter := NewRegistryAdapter(tools.DefaultRegistry(nil))
	tool, ok := adapter.GetTool("bash")
	if !ok {
		t.Fatal("expected bash tool to be registered")
	}
	args, _ := json.Marshal(map[string]any{"command": "git status -s"})
	inv, err := tool.BuildInvocation(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Kind() != KindExec {
		t.Fatalf("expected KindExec, got %v", inv.Kind())
	}
	command, hasCommand := inv.Command()
	if !hasCommand || command != "git status -s" {
		t.Fatalf("expected command to round-trip, got %q, %v", command, hasCommand)
	}
	details, err := inv.ShouldConfirmExecute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details == nil {
		t.Fatal("expected confirmation details for an exec-kind tool")
	}
	if details.RootCommand != "git status" {
		t.Fatalf("expected root command %q, got %q", "git status", details.RootCommand)
	}
}

func TestExecInvocation_MissingCommand(t *testing.T) {
	adapter := NewRegistryAdapter(tools.DefaultRegistry(nil))
	tool, _ := adapter.GetTool("bash")
	args, _ := json.Marshal(map[string]any{})
	if _, err := tool.BuildInvocation(args); err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestEditInvocation_DiffAndRevision(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "file.txt")
	if err := os.WriteFile(path, []byte("hello world\n"), 0644); err != nil {
		t.Fatal(err)
	}

	adapter := NewRegistryAdapter(tools.DefaultRegistry(nil))
	tool, ok := adapter.GetTool("edit_file")
	if !ok {
		t.Fatal("expected edit_file tool to be registered")
	}
	args, _ := json.Marshal(map[string]string{
		"file_path":  path,
		"old_string": "hello world",
		"new_string": "hello there",
	})
	inv, err := tool.BuildInvocation(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Kind() != KindEdit {
		t.Fatalf("expected KindEdit, got %v", inv.Kind())
	}

	details, err := inv.ShouldConfirmExecute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details == nil || !strings.Contains(details.FileDiff, "-hello world") || !strings.Contains(details.FileDiff, "+hello there") {
		t.Fatalf("expected diff to show the replacement, got: %+v", details)
	}

	reviseable, ok := inv.(Reviseable)
	if !ok {
		t.Fatal("expected edit invocation to implement Reviseable")
	}
	revised, err := reviseable.WithRevisedContent("hello universe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, display, err := revised.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if display.FileName != path {
		t.Fatalf("expected display to name %q, got %q", path, display.FileName)
	}
	if content.Text == nil {
		t.Fatal("expected text content from edit execution")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello universe" {
		t.Fatalf("expected file to contain revised content, got %q", string(data))
	}
}

func TestWriteInvocation_NoPriorFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "new.txt")

	adapter := NewRegistryAdapter(tools.DefaultRegistry(nil))
	tool, _ := adapter.GetTool("write_file")
	args, _ := json.Marshal(map[string]string{"file_path": path, "content": "fresh content\n"})
	inv, err := tool.BuildInvocation(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	details, err := inv.ShouldConfirmExecute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(details.FileDiff, "+fresh content") {
		t.Fatalf("expected diff against empty original, got: %s", details.FileDiff)
	}

	if _, _, err := inv.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "fresh content\n" {
		t.Fatalf("unexpected file content: %q", string(data))
	}
}

func TestPlainInvocation_NeverConfirms(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "f.txt")
	os.WriteFile(path, []byte("data"), 0644)

	adapter := NewRegistryAdapter(tools.ReadOnlyRegistry())
	tool, _ := adapter.GetTool("read_file")
	args, _ := json.Marshal(map[string]string{"file_path": path})
	inv, err := tool.BuildInvocation(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	details, err := inv.ShouldConfirmExecute(context.Background())
	if err != nil || details != nil {
		t.Fatalf("expected read-only tool to skip confirmation, got %+v, %v", details, err)
	}
}
