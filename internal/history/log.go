// Package history persists one JSONL log per agent run and answers
// questions about past runs with DuckDB.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strrl/statement-agent/internal/agent"
	"github.com/strrl/statement-agent/internal/ai"
)

const (
	KindMessage = "message"
	KindOutcome = "outcome"

	// fixed width so lexical order matches time order
	timestampLayout = "2006-01-02T15:04:05.000000Z"
)

// Record is one JSONL line. Every field is always written so that DuckDB
// infers a stable schema across files.
type Record struct {
	RunID      string   `json:"run_id"`
	Target     string   `json:"target"`
	Kind       string   `json:"kind"`
	Seq        int      `json:"seq"`
	Iteration  int      `json:"iteration"`
	Timestamp  string   `json:"timestamp"`
	Role       string   `json:"role"`
	Tool       string   `json:"tool"`
	ToolCallID string   `json:"tool_call_id"`
	ToolCalls  []string `json:"tool_calls"`
	Content    string   `json:"content"`
	Phase      string   `json:"phase"`
	Passed     bool     `json:"passed"`
	Attempts   int      `json:"attempts"`
	FinalTest  string   `json:"final_test"`
	Error      string   `json:"error"`
}

// Log appends the records of a single run to <dir>/<run-id>.jsonl. The file
// is created by the first record, so a run that stops before its first
// message leaves nothing behind.
type Log struct {
	mu     sync.Mutex
	runID  string
	target string
	dir    string
	path   string
	f      *os.File
	enc    *json.Encoder
	closed bool
	seq    int
	now    func() time.Time
}

func Create(dir, target string) (*Log, error) {
	if dir == "" {
		return nil, fmt.Errorf("runs directory is required")
	}

	runID := uuid.NewString()

	return &Log{
		runID:  runID,
		target: target,
		dir:    dir,
		path:   filepath.Join(dir, runID+".jsonl"),
		now:    time.Now,
	}, nil
}

func (l *Log) open() error {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create run log: %w", err)
	}

	l.f = f
	l.enc = json.NewEncoder(f)
	return nil
}

func (l *Log) RunID() string {
	return l.runID
}

func (l *Log) Path() string {
	return l.path
}

func (l *Log) RecordMessage(iteration int, msg ai.Message) error {
	calls := make([]string, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		calls = append(calls, call.Name)
	}

	tool := ""
	if msg.Role == ai.RoleTool {
		tool = msg.Name
	}

	return l.write(Record{
		Kind:       KindMessage,
		Iteration:  iteration,
		Role:       string(msg.Role),
		Tool:       tool,
		ToolCallID: msg.ToolCallID,
		ToolCalls:  calls,
		Content:    msg.Content,
	})
}

func (l *Log) RecordOutcome(outcome *agent.Outcome) error {
	rec := Record{
		Kind:      KindOutcome,
		Iteration: outcome.Iterations,
		ToolCalls: []string{},
		Phase:     string(outcome.Phase),
		Passed:    outcome.Passed(),
		Attempts:  outcome.Attempts,
		Error:     outcome.Error,
	}
	if outcome.FinalTest != nil {
		rec.FinalTest = outcome.FinalTest.Message
	}
	return l.write(rec)
}

func (l *Log) write(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("run log %s is closed", l.runID)
	}
	if l.f == nil {
		if err := l.open(); err != nil {
			return err
		}
	}

	l.seq++
	rec.RunID = l.runID
	rec.Target = l.target
	rec.Seq = l.seq
	rec.Timestamp = l.now().UTC().Format(timestampLayout)

	if err := l.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to append run log: %w", err)
	}
	return nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
