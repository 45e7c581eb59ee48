// Package eventlog provides structured JSONL logging of tool-call
// lifecycle events for the scheduler.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventType classifies an event in the scheduler's event stream.
type EventType string

const (
	EventToolCallScheduled        EventType = "tool_call_scheduled"
	EventToolCallAwaitingApproval EventType = "tool_call_awaiting_approval"
	EventToolCallExecuting        EventType = "tool_call_executing"
	EventToolCallCompleted        EventType = "tool_call_completed"
	EventBatchComplete            EventType = "batch_complete"
)

// Event is a single structured event in the event stream.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"ts"`
	BatchID   string    `json:"batch_id"`
	Data      any       `json:"data,omitempty"`
}

// Logger writes structured JSONL events to a file. A nil *Logger is valid
// and discards events, so callers needn't special-case "no logging".
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	enc     *json.Encoder
	logPath string
}

// New creates a logger that appends JSONL events to
// <dir>/scheduler-events.jsonl, creating dir if necessary.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create event log directory: %w", err)
	}

	logPath := filepath.Join(dir, "scheduler-events.jsonl")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	return &Logger{
		file:    f,
		enc:     json.NewEncoder(f),
		logPath: logPath,
	}, nil
}

// Log writes an event to the JSONL file. Safe to call on a nil *Logger.
func (l *Logger) Log(batchID string, evtType EventType, data any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	evt := Event{
		Type:      evtType,
		Timestamp: time.Now(),
		BatchID:   batchID,
		Data:      data,
	}
	_ = l.enc.Encode(evt)
}

// Close flushes and closes the event log file. Safe to call on a nil *Logger.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}

// ReadRecent reads the last n events from the log file (n ≤ 0 means all).
func (l *Logger) ReadRecent(n int) ([]Event, error) {
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	path := l.logPath
	l.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		var evt Event
		if json.Unmarshal(scanner.Bytes(), &evt) == nil {
			events = append(events, evt)
		}
	}

	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

// FormatEvents renders events for terminal display.
func FormatEvents(events []Event, title string) string {
	if len(events) == 0 {
		return "No events recorded."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%d events):\n", title, len(events))
	for _, evt := range events {
		ts := evt.Timestamp.Format("15:04:05")
		dataStr := ""
		if evt.Data != nil {
			if raw, err := json.Marshal(evt.Data); err == nil {
				dataStr = truncate(string(raw), 80)
			}
		}
		if dataStr != "" {
			fmt.Fprintf(&sb, "  %s  %-28s  %s\n", ts, evt.Type, dataStr)
		} else {
			fmt.Fprintf(&sb, "  %s  %s\n", ts, evt.Type)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
