package scheduler

import (
	"context"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/apexion-ai/apexion/internal/allowlist"
	"github.com/apexion-ai/apexion/internal/eventlog"
)

// Config bundles the host-provided dependencies the scheduler needs
// (§6 "Scheduler surface"): the registry, temp-file/truncation settings,
// and the editor integration callbacks for ModifyWithEditor.
type Config struct {
	Registry Registry

	// TempDir is where oversized tool output is spilled. Empty =
	// os.TempDir().
	TempDir string
	// OutputThresholdBytes and OutputTruncateLines configure the output
	// post-processor (§4.4). Zero values fall back to built-in defaults.
	OutputThresholdBytes int
	OutputTruncateLines  int

	// InitialApprovalMode seeds the scheduler's shared approval mode.
	InitialApprovalMode ApprovalMode
	// InitialAllowedPatterns seeds the session allowlist.
	InitialAllowedPatterns []allowlist.Pattern

	// OnToolCallsUpdate is invoked with the full batch snapshot whenever
	// any call's status or payload changes.
	OnToolCallsUpdate func(calls []ToolCall)
	// OnAllToolCallsComplete is invoked once per batch when every call
	// has reached a terminal state.
	OnAllToolCallsComplete func(calls []ToolCall)

	// GetPreferredEditor returns the command the host wants used for
	// ModifyWithEditor. Leaving it or OnEditorClose nil disables the
	// feature.
	GetPreferredEditor func() string
	// OnEditorClose is invoked with the editor command and the content
	// being edited; it returns the user's final content.
	OnEditorClose func(editor, original string) (string, error)

	// Logger records scheduler lifecycle events as JSONL. Nil disables
	// logging.
	Logger *eventlog.Logger
}

const (
	defaultOutputThresholdBytes = 80_000
	defaultOutputTruncateLines  = 1000
)

// Scheduler is the batch entry point described in §4.1. It admits
// batches of ToolRequests, serializing them FIFO, and drives each call
// through validation, confirmation, execution, and completion.
type Scheduler struct {
	registry Registry

	tempDir              string
	outputThresholdBytes int
	outputTruncateLines  int

	onUpdate           func([]ToolCall)
	onComplete         func([]ToolCall)
	getPreferredEditor func() string
	onEditorClose      func(editor, original string) (string, error)

	logger *eventlog.Logger

	// sharedMu guards approvalMode and allowedPatterns, which are
	// process-wide and read-through (§5 "Shared resources").
	sharedMu        sync.Mutex
	approvalMode    ApprovalMode
	allowedPatterns []allowlist.Pattern

	queueMu    sync.Mutex
	queue      []*batchJob
	processing bool
}

type batchJob struct {
	ctx      context.Context
	requests []ToolRequest
	done     chan error
}

// New constructs a Scheduler from cfg.
func New(cfg Config) *Scheduler {
	threshold := cfg.OutputThresholdBytes
	if threshold <= 0 {
		threshold = defaultOutputThresholdBytes
	}
	lines := cfg.OutputTruncateLines
	if lines <= 0 {
		lines = defaultOutputTruncateLines
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	mode := cfg.InitialApprovalMode
	if mode == "" {
		mode = ApprovalDefault
	}

	onUpdate := cfg.OnToolCallsUpdate
	if onUpdate == nil {
		onUpdate = func([]ToolCall) {}
	}
	onComplete := cfg.OnAllToolCallsComplete
	if onComplete == nil {
		onComplete = func([]ToolCall) {}
	}

	return &Scheduler{
		registry:             cfg.Registry,
		tempDir:              tempDir,
		outputThresholdBytes: threshold,
		outputTruncateLines:  lines,
		onUpdate:             onUpdate,
		onComplete:           onComplete,
		getPreferredEditor:   cfg.GetPreferredEditor,
		onEditorClose:        cfg.OnEditorClose,
		logger:               cfg.Logger,
		approvalMode:         mode,
		allowedPatterns:      append([]allowlist.Pattern(nil), cfg.InitialAllowedPatterns...),
	}
}

// ApprovalMode returns the current session approval mode (read-through,
// not cached — reflects the most recent ProceedAlways in any batch).
func (s *Scheduler) ApprovalMode() ApprovalMode {
	s.sharedMu.Lock()
	defer s.sharedMu.Unlock()
	return s.approvalMode
}

// SetApprovalMode updates the session approval mode.
func (s *Scheduler) SetApprovalMode(mode ApprovalMode) {
	s.sharedMu.Lock()
	defer s.sharedMu.Unlock()
	s.approvalMode = mode
}

// AllowedPatterns returns a snapshot of the session allowlist.
func (s *Scheduler) AllowedPatterns() []allowlist.Pattern {
	s.sharedMu.Lock()
	defer s.sharedMu.Unlock()
	return append([]allowlist.Pattern(nil), s.allowedPatterns...)
}

func (s *Scheduler) addAllowedPattern(p allowlist.Pattern) {
	s.sharedMu.Lock()
	defer s.sharedMu.Unlock()
	s.allowedPatterns = append(s.allowedPatterns, p)
}

// Schedule admits a batch of requests (§4.1). If another batch is
// currently non-terminal, the new batch is queued and Schedule blocks
// until the queued batch completes. Batches are processed strictly in
// submission order; synchronous back-to-back calls are all admitted
// because enqueue only appends to the pending-job slice under a mutex
// before returning.
func (s *Scheduler) Schedule(ctx context.Context, requests []ToolRequest) error {
	job := &batchJob{ctx: ctx, requests: requests, done: make(chan error, 1)}

	s.queueMu.Lock()
	s.queue = append(s.queue, job)
	startWorker := !s.processing
	if startWorker {
		s.processing = true
	}
	s.queueMu.Unlock()

	if startWorker {
		go s.drainQueue()
	}

	return <-job.done
}

// drainQueue processes queued batches one at a time in FIFO order, per
// the "conceptual mutex" serialization model of §5.
func (s *Scheduler) drainQueue() {
	for {
		s.queueMu.Lock()
		if len(s.queue) == 0 {
			s.processing = false
			s.queueMu.Unlock()
			return
		}
		job := s.queue[0]
		s.queue = s.queue[1:]
		s.queueMu.Unlock()

		job.done <- s.runBatch(job.ctx, job.requests)
	}
}

func newBatchID() string {
	return uuid.New().String()[:8]
}
