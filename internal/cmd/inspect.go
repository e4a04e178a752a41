package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/strrl/statement-agent/internal/db"
	"github.com/strrl/statement-agent/internal/pdfcontent"
	"github.com/strrl/statement-agent/internal/schema"
)

var inspectFlags targetFlags

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print what the model sees for a target",
	Long: `Print the extracted PDF content and the expected CSV schema for a target as
indented JSON, exactly as the get_pdf_content and get_expected_info tools
return them.`,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectFlags.register(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	inspectFlags.apply(cmd)

	pdfPath, csvPath := cfg.SamplePaths(inspectFlags.target)

	content, err := pdfcontent.Read(cmd.Context(), pdfPath)
	if err != nil {
		return err
	}

	conn, err := db.GetDB()
	if err != nil {
		return fmt.Errorf("failed to get database: %w", err)
	}

	info, err := schema.Read(cmd.Context(), conn, csvPath)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		PDF      *pdfcontent.Content `json:"pdf"`
		Expected *schema.Info        `json:"expected"`
	}{content, info})
}
