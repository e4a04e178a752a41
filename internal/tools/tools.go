// Package tools defines the closed set of operations the model may invoke
// during a parser generation run.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/strrl/statement-agent/internal/ai"
)

type Name string

const (
	NameGetPDFContent   Name = "get_pdf_content"
	NameGetExpectedInfo Name = "get_expected_info"
	NameWriteParserCode Name = "write_parser_code"
	NameRunTest         Name = "run_test"
)

var ErrUnknownTool = errors.New("unknown tool")

// Invocation is one decoded tool call. The set of implementations is closed.
type Invocation interface {
	ToolName() Name
	isInvocation()
}

type FetchPDFContent struct{}

type FetchExpectedSchema struct{}

type WriteParserCode struct {
	Code string `json:"code"`
}

type RunTest struct{}

func (FetchPDFContent) ToolName() Name     { return NameGetPDFContent }
func (FetchExpectedSchema) ToolName() Name { return NameGetExpectedInfo }
func (WriteParserCode) ToolName() Name     { return NameWriteParserCode }
func (RunTest) ToolName() Name             { return NameRunTest }

func (FetchPDFContent) isInvocation()     {}
func (FetchExpectedSchema) isInvocation() {}
func (WriteParserCode) isInvocation()     {}
func (RunTest) isInvocation()             {}

// ArgumentError reports arguments that are not valid JSON or do not match
// the tool's schema.
type ArgumentError struct {
	Tool Name
	Err  error
}

func (e *ArgumentError) Error() string {
	return e.Err.Error()
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

type definition struct {
	description string
	parameters  map[string]any
}

func emptyParameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []any{},
	}
}

var definitions = map[Name]definition{
	NameGetPDFContent: {
		description: "Get raw text and extracted tables from the sample PDF to analyze format.",
		parameters:  emptyParameters(),
	},
	NameGetExpectedInfo: {
		description: "Get columns, shape, dtypes, and sample rows from the expected CSV.",
		parameters:  emptyParameters(),
	},
	NameWriteParserCode: {
		description: "Write the FULL Go source file (package main, imports, func Parse(pdfPath string) ([]string, [][]string, error)). Use github.com/dslipak/pdf for extraction.",
		parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Full source code.",
				},
			},
			"required": []any{"code"},
		},
	},
	NameRunTest: {
		description: "Test the current parser against the sample CSV. Returns 'TEST PASSED' or error details.",
		parameters:  emptyParameters(),
	},
}

var order = []Name{NameGetPDFContent, NameGetExpectedInfo, NameWriteParserCode, NameRunTest}

// Catalog returns the tool definitions offered to the model.
func Catalog() []ai.ToolDefinition {
	defs := make([]ai.ToolDefinition, 0, len(order))
	for _, name := range order {
		s := definitions[name]
		defs = append(defs, ai.ToolDefinition{
			Name:        string(name),
			Description: s.description,
			Parameters:  s.parameters,
		})
	}
	return defs
}

var (
	compileOnce sync.Once
	compiled    map[Name]*jsonschema.Schema
	compileErr  error
)

func compileSchemas() (map[Name]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		out := make(map[Name]*jsonschema.Schema, len(definitions))
		for _, name := range order {
			raw, err := json.Marshal(definitions[name].parameters)
			if err != nil {
				compileErr = fmt.Errorf("failed to marshal %s schema: %w", name, err)
				return
			}
			doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
			if err != nil {
				compileErr = fmt.Errorf("failed to parse %s schema: %w", name, err)
				return
			}
			url := string(name) + ".json"
			if err := c.AddResource(url, doc); err != nil {
				compileErr = fmt.Errorf("failed to add %s schema: %w", name, err)
				return
			}
			sch, err := c.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("failed to compile %s schema: %w", name, err)
				return
			}
			out[name] = sch
		}
		compiled = out
	})
	return compiled, compileErr
}

// Decode maps a tool call onto its variant. For a known tool the variant is
// always returned, even when the arguments are invalid; in that case the
// error is an *ArgumentError. An unknown name yields ErrUnknownTool.
func Decode(name, arguments string) (Invocation, error) {
	var inv Invocation
	switch Name(name) {
	case NameGetPDFContent:
		inv = FetchPDFContent{}
	case NameGetExpectedInfo:
		inv = FetchExpectedSchema{}
	case NameWriteParserCode:
		inv = WriteParserCode{}
	case NameRunTest:
		inv = RunTest{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	schemas, err := compileSchemas()
	if err != nil {
		return inv, err
	}

	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(arguments))
	if err != nil {
		return inv, &ArgumentError{Tool: Name(name), Err: err}
	}
	if err := schemas[Name(name)].Validate(doc); err != nil {
		return inv, &ArgumentError{Tool: Name(name), Err: err}
	}

	if w, ok := inv.(WriteParserCode); ok {
		if err := json.Unmarshal([]byte(arguments), &w); err != nil {
			return inv, &ArgumentError{Tool: Name(name), Err: err}
		}
		inv = w
	}

	return inv, nil
}
