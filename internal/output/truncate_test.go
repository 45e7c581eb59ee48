package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTruncateAndSaveToFile_NoOpBelowThreshold(t *testing.T) {
	res := TruncateAndSaveToFile("short content", "call-1", t.TempDir(), 1000, 100)
	if res.Content != "short content" {
		t.Fatalf("expected unchanged content, got %q", res.Content)
	}
	if res.OutputFile != "" {
		t.Fatalf("expected no output file below threshold, got %q", res.OutputFile)
	}
}

func TestTruncateAndSaveToFile_PathSanitization(t *testing.T) {
	tmp := t.TempDir()
	content := strings.Repeat("a", 2_000_000)
	res := TruncateAndSaveToFile(content, "../../etc/passwd", tmp, 10, 20)

	want := filepath.Join(tmp, "passwd.output")
	if res.OutputFile != want {
		t.Fatalf("OutputFile = %q, want %q", res.OutputFile, want)
	}
	if filepath.Dir(res.OutputFile) != tmp {
		t.Fatalf("saved file must live directly under tempDir, got parent %q", filepath.Dir(res.OutputFile))
	}
	if _, err := os.Stat(res.OutputFile); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}

func TestTruncateAndSaveToFile_HeadTailSeparator(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, "line")
	}
	content := strings.Join(lines, "\n")
	res := TruncateAndSaveToFile(content, "call-2", t.TempDir(), 10, 20)

	if !strings.Contains(res.Content, separatorLine) {
		t.Fatalf("expected truncation separator in content")
	}
	if !strings.Contains(res.Content, "read_file") {
		t.Fatalf("expected usage hint naming read_file tool")
	}
}

func TestTruncateAndSaveToFile_SaveFailureAnnotates(t *testing.T) {
	// Point tempDir at a path that cannot be written to.
	res := TruncateAndSaveToFile(strings.Repeat("x", 100), "call-3", "/nonexistent/\x00bad", 5, 10)
	if res.OutputFile != "" {
		t.Fatalf("expected no output file on save failure")
	}
	if !strings.Contains(res.Content, cantSaveNotice) {
		t.Fatalf("expected save-failure notice in content")
	}
}
