package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/blob"
	"github.com/sells-group/contractor-pipeline/internal/normalize"
	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
)

var (
	exportDir           string
	exportFormats       []string
	exportState         string
	exportMinCategories int
	exportRequireEmail  bool
	exportLimit         int
	exportUnicorns      bool
	exportUpload        bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export multi-license contractor leads",
	Long:  "Writes the filtered, ranked contractor list as CSV, JSON and XLSX, optionally uploading the files to S3.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		mode := "report"
		if exportUpload {
			mode = "upload"
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		f, dir, formats := exportSettings(cmd)

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var results []pipelinedb.ExportResult
		if exportUnicorns {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return eris.Wrapf(err, "create export dir %s", dir)
			}
			f.MinCategories = 3
			res, err := st.ExportUnicorns(ctx, filepath.Join(dir, pipelinedb.ExportFileName(f, pipelinedb.FormatCSV)), f.State, f.RequireEmail)
			if err != nil {
				return eris.Wrap(err, "export unicorns")
			}
			results = append(results, *res)
		} else {
			results, err = st.ExportAll(ctx, dir, f, formats)
			if err != nil {
				return eris.Wrap(err, "export")
			}
		}
		formatExports(os.Stdout, results)

		if !exportUpload {
			return nil
		}
		up, err := blob.New(ctx, cfg.S3, zap.L())
		if err != nil {
			return err
		}
		uploads, err := up.UploadExports(ctx, results)
		if err != nil {
			return eris.Wrap(err, "upload exports")
		}
		for _, u := range uploads {
			zap.L().Info("export uploaded", zap.String("uri", u.URI), zap.Int64("bytes", u.Size))
		}
		return nil
	},
}

// exportSettings merges explicit flags over the configured export defaults.
func exportSettings(cmd *cobra.Command) (pipelinedb.ContractorFilter, string, []string) {
	flags := cmd.Flags()
	f := pipelinedb.ContractorFilter{
		State:         normalize.State(exportState),
		MinCategories: cfg.Export.MinCategories,
		RequireEmail:  cfg.Export.RequireEmail,
		Limit:         exportLimit,
	}
	if flags.Changed("min-categories") {
		f.MinCategories = exportMinCategories
	}
	if flags.Changed("require-email") {
		f.RequireEmail = exportRequireEmail
	}

	dir := cfg.Export.Dir
	if flags.Changed("dir") {
		dir = exportDir
	}
	formats := cfg.Export.Formats
	if flags.Changed("format") {
		formats = exportFormats
	}
	return f, dir, formats
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "dir", "exports", "output directory")
	exportCmd.Flags().StringSliceVar(&exportFormats, "format", []string{"csv", "json", "xlsx"}, "formats to write")
	exportCmd.Flags().StringVar(&exportState, "state", "", "restrict to one state")
	exportCmd.Flags().IntVar(&exportMinCategories, "min-categories", 2, "minimum distinct license categories")
	exportCmd.Flags().BoolVar(&exportRequireEmail, "require-email", false, "only contractors with an email")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "maximum contractors (0 = all)")
	exportCmd.Flags().BoolVar(&exportUnicorns, "unicorns", false, "write the 3+ category CSV only")
	exportCmd.Flags().BoolVar(&exportUpload, "upload", false, "upload the files to S3")
	rootCmd.AddCommand(exportCmd)
}
