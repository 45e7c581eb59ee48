// Package output implements the tool-output post-processor: line-wrapping,
// head+tail truncation, and spilling the full output to a sanitized file
// path for later retrieval via the read_file tool.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	wrapWidth      = 120
	separatorLine  = "... [CONTENT TRUNCATED] ..."
	cantSaveNotice = "[Note: Could not save full output to file]"
)

// Result is the outcome of TruncateAndSaveToFile.
type Result struct {
	Content    string // the (possibly truncated) content to show the model
	OutputFile string // absolute path of the saved full copy, "" if none was written
}

// TruncateAndSaveToFile truncates content to a head+tail view of at most
// truncateLines lines and writes the full (line-wrapped) content to
// tempDir/<sanitized callId>.output. content below threshold bytes is
// returned unchanged with no file written (§4.4).
func TruncateAndSaveToFile(content, callID, tempDir string, threshold int, truncateLines int) Result {
	if len(content) <= threshold {
		return Result{Content: content}
	}

	lines := normalizeLines(content)

	outputFile, _ := save(lines, callID, tempDir)

	headCount := truncateLines / 5
	tailCount := truncateLines - headCount
	truncated := headTail(lines, headCount, tailCount)

	var b strings.Builder
	fmt.Fprintf(&b, "Output was too long (%d lines, %d bytes) and has been truncated.\n", len(lines), len(content))
	if outputFile != "" {
		fmt.Fprintf(&b, "The full output was saved to: %s\n", outputFile)
		b.WriteString("Use the read_file tool with offset/limit parameters on that path to read more of it.\n")
	} else {
		b.WriteString(cantSaveNotice + "\n")
	}
	b.WriteString("\n")
	b.WriteString(truncated)

	return Result{Content: b.String(), OutputFile: outputFile}
}

// normalizeLines turns content into a line list. If the content already
// splits into many short lines, those lines are used as-is; otherwise the
// content is wrapped at wrapWidth columns.
func normalizeLines(content string) []string {
	rawLines := strings.Split(content, "\n")
	if looksLineOriented(rawLines) {
		return rawLines
	}
	return wrap(content, wrapWidth)
}

// looksLineOriented reports whether content is already mostly composed of
// many lines that are individually short — i.e. wrapping would not help.
func looksLineOriented(lines []string) bool {
	if len(lines) < 10 {
		return false
	}
	longCount := 0
	for _, l := range lines {
		if len(l) > wrapWidth {
			longCount++
		}
	}
	// "most are short": fewer than a quarter of lines exceed the wrap width.
	return longCount*4 < len(lines)
}

func wrap(content string, width int) []string {
	var lines []string
	for _, paragraph := range strings.Split(content, "\n") {
		if paragraph == "" {
			lines = append(lines, "")
			continue
		}
		for len(paragraph) > width {
			lines = append(lines, paragraph[:width])
			paragraph = paragraph[width:]
		}
		lines = append(lines, paragraph)
	}
	return lines
}

// headTail keeps the first headCount lines and the last (total-headCount)
// lines, joined by the truncation separator.
func headTail(lines []string, headCount, tailCount int) string {
	if headCount+tailCount >= len(lines) {
		return strings.Join(lines, "\n")
	}
	head := lines[:headCount]
	tail := lines[len(lines)-tailCount:]
	return strings.Join(head, "\n") + "\n" + separatorLine + "\n" + strings.Join(tail, "\n")
}

// save sanitizes callID to a basename and writes the full, untruncated
// (post-wrap) line sequence to tempDir/<sanitized>.output.
func save(lines []string, callID, tempDir string) (string, error) {
	name := filepath.Base(callID) + ".output"
	path := filepath.Join(tempDir, name)
	data := []byte(strings.Join(lines, "\n"))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
