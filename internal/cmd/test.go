package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var testFlags targetFlags

var errTestFailed = errors.New("parser test failed")

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test an existing parser against the reference CSV",
	Long: `Build <out-dir>/<target>_parser.go, run it on the sample PDF and compare its
output with the reference CSV. No model is involved. Exits with status 1 when
the test fails.`,
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
	testFlags.register(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	testFlags.apply(cmd)

	pdfPath, csvPath := cfg.SamplePaths(testFlags.target)

	env, err := newTestEnv()
	if err != nil {
		return err
	}

	fmt.Printf("Testing %s against %s\n", env.writer.Path(testFlags.target), csvPath)

	result := env.runner.Run(cmd.Context(), testFlags.target, pdfPath, csvPath)
	fmt.Println(result.Message)

	if !result.Passed() {
		return errTestFailed
	}
	return nil
}
