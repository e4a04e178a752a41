// Package agent drives the model through the write/test/repair cycle that
// produces a bank statement parser.
package agent

import (
	"context"
	"errors"

	"github.com/strrl/statement-agent/internal/ai"
	"github.com/strrl/statement-agent/internal/pdfcontent"
	"github.com/strrl/statement-agent/internal/schema"
	"github.com/strrl/statement-agent/internal/testrunner"
)

const (
	DefaultMaxAttempts   = 3
	DefaultMaxIterations = 30
)

var ErrSamplesMissing = errors.New("sample files not found")

type Phase string

const (
	PhaseRunning          Phase = "running"
	PhaseAwaitingModel    Phase = "awaiting_model"
	PhaseDispatchingTools Phase = "dispatching_tools"
	PhaseFinished         Phase = "finished"
	PhaseAborted          Phase = "aborted"
)

// State is the loop's mutable bookkeeping. It is passed through each round
// and never shared.
type State struct {
	Phase     Phase
	Iteration int
	Attempts  int
	Final     *testrunner.Result
}

type Options struct {
	Target        string
	PDFPath       string
	CSVPath       string
	MaxAttempts   int
	MaxIterations int
}

// Completer is the model side of the conversation.
type Completer interface {
	Complete(ctx context.Context, messages []ai.Message, tools []ai.ToolDefinition) (*ai.Response, error)
}

// Toolbox executes the operations behind the tool catalog for one target.
type Toolbox interface {
	PDFContent(ctx context.Context) (*pdfcontent.Content, error)
	ExpectedInfo(ctx context.Context) (*schema.Info, error)
	WriteCode(code string) (string, error)
	RunTest(ctx context.Context) testrunner.Result
}

// Recorder receives every transcript entry and the final outcome.
type Recorder interface {
	RecordMessage(iteration int, msg ai.Message) error
	RecordOutcome(outcome *Outcome) error
}

// Outcome summarizes a finished or aborted run.
type Outcome struct {
	Target     string             `json:"target"`
	Phase      Phase              `json:"phase"`
	Iterations int                `json:"iterations"`
	Attempts   int                `json:"attempts"`
	FinalTest  *testrunner.Result `json:"final_test,omitempty"`
	ToolCalls  map[string]int     `json:"tool_calls"`
	Usage      ai.Usage           `json:"usage"`
	Error      string             `json:"error,omitempty"`
}

// Passed reports whether the run ended with a passing final test.
func (o *Outcome) Passed() bool {
	return o.FinalTest != nil && o.FinalTest.Passed()
}
