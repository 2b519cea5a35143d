package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/ingest"
	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
)

var (
	importSource    string
	importOEMSource string
	importOEMName   string
	importReimport  bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import state license exports",
	Long:  "Deduplicates each license file into the contractor store. Files already imported are skipped; --reimport retries files whose import failed or was rolled back.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImports(cmd, args, func(in *ingest.Ingester, path string) (*ingest.Result, error) {
			return in.ImportFile(cmd.Context(), path, importSource)
		})
	},
}

var importOEMCmd = &cobra.Command{
	Use:   "import-oem <file>...",
	Short: "Import OEM dealer locator scrapes",
	Long:  "Deduplicates dealer rows into the contractor store and records a certification for each brand.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImports(cmd, args, func(in *ingest.Ingester, path string) (*ingest.Result, error) {
			return in.ImportOEMFile(cmd.Context(), path, importOEMSource, importOEMName)
		})
	},
}

func runImports(cmd *cobra.Command, paths []string, run func(*ingest.Ingester, string) (*ingest.Result, error)) error {
	if err := cfg.Validate("import"); err != nil {
		return err
	}

	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	opts := []ingest.Option{ingest.WithLogger(zap.L())}
	if importReimport {
		opts = append(opts, ingest.WithReimport())
	}
	in := ingest.New(st, opts...)

	var results []*ingest.Result
	for _, path := range paths {
		res, err := run(in, path)
		if eris.Is(err, pipelinedb.ErrAlreadyImported) {
			zap.L().Warn("skipping file", zap.String("file", path), zap.Error(err))
			continue
		}
		if err != nil {
			return eris.Wrapf(err, "import %s", path)
		}
		results = append(results, res)
	}

	formatImportResults(os.Stdout, results)
	return nil
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "state_license", "source label recorded on each row")
	importOEMCmd.Flags().StringVar(&importOEMSource, "source", "oem_locator", "source label recorded on each row")
	importOEMCmd.Flags().StringVar(&importOEMName, "oem", "", "brand for rows without an OEM column")
	for _, c := range []*cobra.Command{importCmd, importOEMCmd} {
		c.Flags().BoolVar(&importReimport, "reimport", false, "retry files whose earlier import failed or was rolled back")
	}
	rootCmd.AddCommand(importCmd, importOEMCmd)
}
