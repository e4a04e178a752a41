package cmd

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strrl/statement-agent/internal/codegen"
	"github.com/strrl/statement-agent/internal/db"
	"github.com/strrl/statement-agent/internal/plugin"
	"github.com/strrl/statement-agent/internal/testrunner"
)

type targetFlags struct {
	target  string
	dataDir string
	outDir  string
}

func (f *targetFlags) register(c *cobra.Command) {
	c.Flags().StringVarP(&f.target, "target", "t", "", "Bank identifier, e.g. icici")
	c.Flags().StringVar(&f.dataDir, "data-dir", "", "Directory holding <target>/<target>_sample.{pdf,csv}")
	c.Flags().StringVar(&f.outDir, "out-dir", "", "Directory generated parsers are written to")
	_ = c.MarkFlagRequired("target")
}

// apply copies explicitly set flags over the loaded configuration.
func (f *targetFlags) apply(c *cobra.Command) {
	if c.Flags().Changed("data-dir") {
		cfg.DataDir = f.dataDir
	}
	if c.Flags().Changed("out-dir") {
		cfg.OutDir = f.outDir
	}
}

type testEnv struct {
	db     *sql.DB
	writer *codegen.Writer
	runner *testrunner.Runner
}

func newTestEnv() (*testEnv, error) {
	conn, err := db.GetDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	loader := plugin.NewGoLoader(cfg.WorkDir)
	loader.GoBinary = cfg.GoBinary
	loader.Timeout = cfg.ParserTimeout

	writer := codegen.NewWriter(cfg.OutDir)

	return &testEnv{
		db:     conn,
		writer: writer,
		runner: testrunner.New(conn, writer, loader),
	}, nil
}
