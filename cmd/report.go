package main

import (
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/contractor-pipeline/internal/normalize"
	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
)

var (
	reportJSON  bool
	statsState  string
	reportLimit int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize contractor coverage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openReportStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.GetStats(cmd.Context(), normalize.State(statsState))
		if err != nil {
			return eris.Wrap(err, "stats")
		}
		if reportJSON {
			return writeJSON(os.Stdout, stats)
		}
		formatStats(os.Stdout, stats)
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openReportStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListPipelineRuns(cmd.Context(), reportLimit)
		if err != nil {
			return eris.Wrap(err, "runs")
		}
		if reportJSON {
			return writeJSON(os.Stdout, runs)
		}
		formatRuns(os.Stdout, runs)
		return nil
	},
}

var importsCmd = &cobra.Command{
	Use:   "imports",
	Short: "List recent file imports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openReportStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		imports, err := st.ListFileImports(cmd.Context(), reportLimit)
		if err != nil {
			return eris.Wrap(err, "imports")
		}
		if reportJSON {
			return writeJSON(os.Stdout, imports)
		}
		formatImports(os.Stdout, imports)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <contractor-id>",
	Short: "Show the change trail of one contractor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		st, err := openReportStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.GetContractorHistory(cmd.Context(), id)
		if err != nil {
			return eris.Wrapf(err, "history %d", id)
		}
		if reportJSON {
			return writeJSON(os.Stdout, entries)
		}
		formatHistory(os.Stdout, entries)
		return nil
	},
}

func openReportStore(cmd *cobra.Command) (*pipelinedb.DB, error) {
	if err := cfg.Validate("report"); err != nil {
		return nil, err
	}
	return openStore(cmd.Context())
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("invalid id %q", s)
	}
	return id, nil
}

func init() {
	for _, c := range []*cobra.Command{statsCmd, runsCmd, importsCmd, historyCmd} {
		c.Flags().BoolVar(&reportJSON, "json", false, "print JSON instead of a table")
	}
	statsCmd.Flags().StringVar(&statsState, "state", "", "restrict to one state")
	runsCmd.Flags().IntVar(&reportLimit, "limit", 20, "maximum rows")
	importsCmd.Flags().IntVar(&reportLimit, "limit", 20, "maximum rows")
	rootCmd.AddCommand(statsCmd, runsCmd, importsCmd, historyCmd)
}
