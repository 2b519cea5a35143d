package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	deleteReason string
	resetConfirm bool
	lockForce    bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <import-id>",
	Short: "Undo a file import",
	Long:  "Soft-deletes every contractor the import created and marks the import rolled back. Contractors it only merged into are kept.",
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

		n, err := st.RollbackImport(cmd.Context(), id)
		if err != nil {
			return eris.Wrapf(err, "rollback import %d", id)
		}
		_, _ = fmt.Fprintf(os.Stdout, "Rolled back import %d: %d contractors deleted.\n", id, n)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <contractor-id>",
	Short: "Soft-delete a contractor",
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

		ok, err := st.SoftDeleteContractor(cmd.Context(), id, deleteReason)
		if err != nil {
			return eris.Wrapf(err, "delete contractor %d", id)
		}
		if !ok {
			_, _ = fmt.Fprintf(os.Stdout, "Contractor %d not found or already deleted.\n", id)
			return nil
		}
		_, _ = fmt.Fprintf(os.Stdout, "Contractor %d deleted.\n", id)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <contractor-id>",
	Short: "Restore a soft-deleted contractor",
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

		ok, err := st.RestoreContractor(cmd.Context(), id)
		if err != nil {
			return eris.Wrapf(err, "restore contractor %d", id)
		}
		if !ok {
			_, _ = fmt.Fprintf(os.Stdout, "Contractor %d not found or not deleted.\n", id)
			return nil
		}
		_, _ = fmt.Fprintf(os.Stdout, "Contractor %d restored.\n", id)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all contractor data",
	Long:  "Empties every table including the audit trail. Requires --yes.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openReportStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.ResetDatabase(cmd.Context(), resetConfirm); err != nil {
			return err
		}
		zap.L().Warn("database reset", zap.String("path", cfg.Store.Path))
		_, _ = fmt.Fprintln(os.Stdout, "Database reset.")
		return nil
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect or release the import lock",
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current lock holder",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openReportStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		info, err := st.CheckLock(cmd.Context())
		if err != nil {
			return err
		}
		formatLock(os.Stdout, info)
		return nil
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release the import lock",
	Long:  "Releases a lock held by this process token. --force clears a lock held by any process.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openReportStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lock := st.Lock()
		release := lock.Release
		if lockForce {
			release = lock.ForceRelease
		}
		ok, err := release(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "release lock")
		}
		if !ok {
			_, _ = fmt.Fprintln(os.Stdout, "No lock released.")
			return nil
		}
		zap.L().Warn("import lock released", zap.Bool("force", lockForce))
		_, _ = fmt.Fprintln(os.Stdout, "Lock released.")
		return nil
	},
}

func init() {
	deleteCmd.Flags().StringVar(&deleteReason, "reason", "", "reason recorded on the contractor")
	resetCmd.Flags().BoolVar(&resetConfirm, "yes", false, "confirm deleting all data")
	lockReleaseCmd.Flags().BoolVar(&lockForce, "force", false, "release a lock held by another process")
	lockCmd.AddCommand(lockStatusCmd, lockReleaseCmd)
	rootCmd.AddCommand(rollbackCmd, deleteCmd, restoreCmd, resetCmd, lockCmd)
}
