package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/strrl/statement-agent/internal/ai"
	"github.com/strrl/statement-agent/internal/tools"
)

const previewLen = 100

// Loop owns one conversation with the model for one target.
type Loop struct {
	opts       Options
	model      Completer
	toolbox    Toolbox
	recorder   Recorder
	out        io.Writer
	logger     *slog.Logger
	transcript *Transcript

	toolCalls map[string]int
	usage     ai.Usage
}

type Option func(*Loop)

func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// WithOutput sets where progress lines are printed (stdout by default).
func WithOutput(w io.Writer) Option {
	return func(l *Loop) { l.out = w }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// New validates the sample files and seeds the transcript.
func New(model Completer, toolbox Toolbox, opts Options, options ...Option) (*Loop, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	if !fileExists(opts.PDFPath) || !fileExists(opts.CSVPath) {
		return nil, fmt.Errorf("%w for %s: ensure %s and %s exist",
			ErrSamplesMissing, opts.Target, opts.PDFPath, opts.CSVPath)
	}

	l := &Loop{
		opts:      opts,
		model:     model,
		toolbox:   toolbox,
		out:       os.Stdout,
		logger:    slog.Default(),
		toolCalls: make(map[string]int),
	}
	for _, opt := range options {
		opt(l)
	}

	l.logger = l.logger.With("target", opts.Target)

	systemPrompt, userPrompt := ai.BuildPrompt(opts.Target, opts.MaxAttempts)
	l.transcript = NewTranscript()
	l.append(0, ai.Message{Role: ai.RoleSystem, Content: systemPrompt})
	l.append(0, ai.Message{Role: ai.RoleUser, Content: userPrompt})

	return l, nil
}

// Transcript exposes the conversation so far.
func (l *Loop) Transcript() *Transcript {
	return l.transcript
}

// Run drives the conversation until the model finishes or the iteration
// ceiling is reached. Only a failed model call is returned as an error.
func (l *Loop) Run(ctx context.Context) (*Outcome, error) {
	fmt.Fprintf(l.out, "Starting agent for %s...\n", l.opts.Target)

	st := State{Phase: PhaseRunning}
	catalog := tools.Catalog()

	for st.Iteration < l.opts.MaxIterations {
		var err error
		st, err = l.step(ctx, st, catalog)
		if err != nil {
			outcome := l.outcome(st)
			outcome.Error = err.Error()
			l.finish(outcome)
			return nil, err
		}
		if st.Phase == PhaseFinished {
			outcome := l.outcome(st)
			l.finish(outcome)
			return outcome, nil
		}
	}

	st.Phase = PhaseAborted
	fmt.Fprintln(l.out, "Max iterations reached.")
	l.logger.Warn("iteration ceiling reached", "iterations", st.Iteration, "attempts", st.Attempts)

	outcome := l.outcome(st)
	l.finish(outcome)
	return outcome, nil
}

func (l *Loop) step(ctx context.Context, st State, catalog []ai.ToolDefinition) (State, error) {
	st.Iteration++
	st.Phase = PhaseAwaitingModel

	resp, err := l.model.Complete(ctx, l.transcript.Messages(), catalog)
	if err != nil {
		return st, fmt.Errorf("failed to get model response: %w", err)
	}
	l.usage.Add(resp.Usage)
	l.logger.Debug("model responded",
		"iteration", st.Iteration,
		"tool_calls", len(resp.ToolCalls),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	if len(resp.ToolCalls) > 0 {
		st.Phase = PhaseDispatchingTools
		l.append(st.Iteration, ai.Message{
			Role:      ai.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			st = l.dispatch(ctx, st, call)
		}
		st.Phase = PhaseRunning
		return st, nil
	}

	l.append(st.Iteration, ai.Message{Role: ai.RoleAssistant, Content: resp.Content})
	fmt.Fprintf(l.out, "Agent: %s\n", resp.Content)

	if !ai.IsFinish(resp.Content) {
		st.Phase = PhaseRunning
		return st, nil
	}

	final := l.toolbox.RunTest(ctx)
	st.Final = &final
	st.Phase = PhaseFinished

	fmt.Fprintf(l.out, "Agent complete. Final test: %s\n", final.Message)
	if final.Passed() {
		fmt.Fprintln(l.out, "Parser successful!")
	} else {
		fmt.Fprintln(l.out, "Max attempts reached, but parser written for manual fix.")
	}
	return st, nil
}

// dispatch resolves one tool call and appends exactly one result entry.
func (l *Loop) dispatch(ctx context.Context, st State, call ai.ToolCall) State {
	logger := l.logger.With("iteration", st.Iteration, "tool", call.Name, "tool_call_id", call.ID)
	l.toolCalls[call.Name]++

	if call.ID == "" {
		logger.Warn("tool call missing tool_call_id")
		l.append(st.Iteration, ai.Message{
			Role:    ai.RoleTool,
			Name:    call.Name,
			Content: fmt.Sprintf("Error: Tool call for %s missing tool_call_id", call.Name),
		})
		return st
	}

	reply := func(content string) {
		l.append(st.Iteration, ai.Message{
			Role:       ai.RoleTool,
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    content,
		})
	}

	inv, decodeErr := tools.Decode(call.Name, call.Arguments)
	if errors.Is(decodeErr, tools.ErrUnknownTool) {
		logger.Warn("unknown tool requested")
		reply(fmt.Sprintf("Unknown tool: %s", call.Name))
		return st
	}

	var (
		result any
		err    error
	)
	switch inv := inv.(type) {
	case tools.FetchPDFContent:
		if decodeErr != nil {
			result = argumentFailure(decodeErr)
			break
		}
		result, err = l.toolbox.PDFContent(ctx)
	case tools.FetchExpectedSchema:
		if decodeErr != nil {
			result = argumentFailure(decodeErr)
			break
		}
		result, err = l.toolbox.ExpectedInfo(ctx)
	case tools.WriteParserCode:
		st.Attempts++
		switch {
		case st.Attempts > l.opts.MaxAttempts:
			result = fmt.Sprintf("Max attempts (%d) reached. Cannot write more code.", l.opts.MaxAttempts)
		case decodeErr != nil:
			result = argumentFailure(decodeErr)
		default:
			result, err = l.toolbox.WriteCode(inv.Code)
		}
		logger.Debug("write attempt", "attempts", st.Attempts)
	case tools.RunTest:
		if decodeErr != nil {
			result = argumentFailure(decodeErr)
			break
		}
		result = l.toolbox.RunTest(ctx).Message
	default:
		err = fmt.Errorf("unhandled tool %s", call.Name)
	}

	if err != nil {
		logger.Warn("tool failed", "error", err)
		fmt.Fprintf(l.out, "Tool %s failed: %v\n", call.Name, err)
		reply(fmt.Sprintf("Tool error: %v", err))
		return st
	}

	payload, err := json.Marshal(result)
	if err != nil {
		logger.Warn("failed to serialize tool result", "error", err)
		reply(fmt.Sprintf("Tool error: %v", err))
		return st
	}

	reply(string(payload))
	fmt.Fprintf(l.out, "Tool %s executed: %s...\n", call.Name, preview(string(payload)))
	return st
}

func argumentFailure(err error) string {
	return fmt.Sprintf("Failed to parse tool arguments: %v", err)
}

func (l *Loop) append(iteration int, msg ai.Message) {
	l.transcript.Append(msg)
	if l.recorder == nil {
		return
	}
	if err := l.recorder.RecordMessage(iteration, msg); err != nil {
		l.logger.Warn("failed to record message", "error", err)
	}
}

func (l *Loop) outcome(st State) *Outcome {
	calls := make(map[string]int, len(l.toolCalls))
	for name, n := range l.toolCalls {
		calls[name] = n
	}
	return &Outcome{
		Target:     l.opts.Target,
		Phase:      st.Phase,
		Iterations: st.Iteration,
		Attempts:   st.Attempts,
		FinalTest:  st.Final,
		ToolCalls:  calls,
		Usage:      l.usage,
	}
}

func (l *Loop) finish(outcome *Outcome) {
	l.logger.Info("agent stopped",
		"phase", outcome.Phase,
		"iterations", outcome.Iterations,
		"attempts", outcome.Attempts,
		"passed", outcome.Passed())
	if l.recorder == nil {
		return
	}
	if err := l.recorder.RecordOutcome(outcome); err != nil {
		l.logger.Warn("failed to record outcome", "error", err)
	}
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLen {
		return s
	}
	return string([]rune(s)[:previewLen])
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
