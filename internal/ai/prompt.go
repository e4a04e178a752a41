package ai

import (
	"fmt"
	"strings"
)

// FinishMarker is the token the model emits when it considers the task done.
const FinishMarker = "FINISH"

// BuildPrompt returns the seed system and user messages for a parser
// generation run.
func BuildPrompt(target string, maxAttempts int) (string, string) {
	systemPrompt := fmt.Sprintf(`You are a coding agent for writing bank statement PDF parsers in Go.

Target bank: %[1]s

Goal: Generate %[1]s_parser.go with:
- Package: MUST be `+"`package main`"+`
- PDF library: use `+"`github.com/dslipak/pdf`"+` (pdf.Open, Reader.NumPage, Reader.Page, Page.GetTextByRow, Page.GetPlainText); only the standard library otherwise
- Function: func Parse(pdfPath string) ([]string, [][]string, error)
  returning the header and the rows in statement order
- No func main; it is provided
- The table must match the CSV schema exactly (rows, columns, values, dtypes)

Use tools:
1. Call get_pdf_content to inspect the PDF (text/tables for %[1]s-specific format, e.g. transaction tables).
2. Call get_expected_info for the schema (columns like 'Date', 'Description', etc.; match exactly incl. dtypes and empty cells).
3. Plan: analyze the PDF structure (e.g. extract the table from every page, parse dates/debits). Handle %[1]s quirks (e.g. multi-line descriptions, repeated page headers).
4. Generate the FULL source file, starting with `+"`package main`"+` and its imports. Process all pages and return errors instead of panicking.
5. Call write_parser_code with the complete source.
6. Call run_test. If 'TEST PASSED', think "Success!" and %[2]s.
7. If the test fails, analyze the error (e.g. wrong columns, parsing bug), fix the code and rewrite (max %[3]d attempts). On attempt %[3]d failing, %[2]s anyway.

Output only tool calls or a final thought + '%[2]s'. Keep code clean, typed and documented.`,
		target, FinishMarker, maxAttempts)

	userPrompt := fmt.Sprintf("Begin: Write parser for %s bank statements.", target)

	return systemPrompt, userPrompt
}

// IsFinish reports whether the model's text carries the completion marker.
func IsFinish(content string) bool {
	return strings.Contains(strings.ToUpper(content), FinishMarker)
}
