package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/db"
	"github.com/sells-group/contractor-pipeline/internal/normalize"
	"github.com/sells-group/contractor-pipeline/internal/outreach"
	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
	"github.com/sells-group/contractor-pipeline/internal/warehouse"
	"github.com/sells-group/contractor-pipeline/pkg/notion"
	"github.com/sells-group/contractor-pipeline/pkg/salesforce"
)

var (
	publishState         string
	publishMinCategories int
	publishRequireEmail  bool
	publishLimit         int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Send contractors to downstream systems",
}

var publishWarehouseCmd = &cobra.Command{
	Use:   "warehouse",
	Short: "Upsert the contractor snapshot into Postgres",
	Long:  "Publishes contractors and license types to the warehouse schema. An unfiltered publish prunes rows no longer in the store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("warehouse"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pool, err := db.Connect(ctx, cfg.Warehouse.DatabaseURL, cfg.Warehouse.Pool)
		if err != nil {
			return err
		}
		defer pool.Close()

		pub := warehouse.New(pool,
			warehouse.WithSchema(cfg.Warehouse.Schema),
			warehouse.WithBatchSize(cfg.Warehouse.BatchSize),
			warehouse.WithLogger(zap.L()),
		)
		if err := pub.Migrate(ctx); err != nil {
			return err
		}
		res, err := pub.Publish(ctx, st, publishFilter())
		if err != nil {
			return eris.Wrap(err, "publish warehouse")
		}
		return writeJSON(os.Stdout, res)
	},
}

var publishSalesforceCmd = &cobra.Command{
	Use:   "salesforce",
	Short: "Upsert contractors as Salesforce accounts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("salesforce"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sf, err := salesforce.Connect(cfg.Salesforce)
		if err != nil {
			return err
		}
		res, err := outreach.New(st, zap.L()).PushSalesforce(ctx, sf, publishFilter())
		if err != nil {
			return eris.Wrap(err, "publish salesforce")
		}
		return writeJSON(os.Stdout, res)
	},
}

var publishNotionCmd = &cobra.Command{
	Use:   "notion",
	Short: "Sync contractors into the Notion lead database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("notion"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads := notion.NewLeadDB(cfg.Notion.Token, cfg.Notion.LeadDB, notion.WithRateLimit(cfg.Notion.RateLimit))
		res, err := outreach.New(st, zap.L()).PushNotion(ctx, leads, publishFilter())
		if err != nil {
			return eris.Wrap(err, "publish notion")
		}
		return writeJSON(os.Stdout, res)
	},
}

func publishFilter() pipelinedb.ContractorFilter {
	return pipelinedb.ContractorFilter{
		State:         normalize.State(publishState),
		MinCategories: publishMinCategories,
		RequireEmail:  publishRequireEmail,
		Limit:         publishLimit,
	}
}

func init() {
	flags := publishCmd.PersistentFlags()
	flags.StringVar(&publishState, "state", "", "restrict to one state")
	flags.IntVar(&publishMinCategories, "min-categories", 0, "minimum distinct license categories")
	flags.BoolVar(&publishRequireEmail, "require-email", false, "only contractors with an email")
	flags.IntVar(&publishLimit, "limit", 0, "maximum contractors (0 = all)")

	publishCmd.AddCommand(publishWarehouseCmd, publishSalesforceCmd, publishNotionCmd)
	rootCmd.AddCommand(publishCmd)
}
