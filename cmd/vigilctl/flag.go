package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/vigil/internal/flags"
	"github.com/JaimeStill/vigil/pkg/database"
)

func newFlagCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flag",
		Short: "Inspect persisted flags",
	}

	get := &cobra.Command{
		Use:   "get <flag-id>",
		Short: "Show a flag by id in any status",
		Long: `Reads a flag directly by id. Unlike the guardian API, flags on
sensitive hold are returned, along with their releasable time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := database.New(&cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Connection().Close()

			flagsSystem := flags.New(db.Connection(), logger, cfg.API.Pagination, cfg.Pipeline.FlagConcurrency)
			f, err := flagsSystem.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return opts.write(cmd.OutOrStdout(), f, func(w io.Writer) {
				printFlag(w, f)
			})
		},
	}

	cmd.AddCommand(get)
	return cmd
}

func printFlag(w io.Writer, f *flags.Flag) {
	fmt.Fprintf(w, "id:          %s\n", f.ID)
	fmt.Fprintf(w, "child:       %s (family %s)\n", f.ChildID, f.FamilyID)
	fmt.Fprintf(w, "screenshot:  %s\n", f.ScreenshotID)
	fmt.Fprintf(w, "concern:     %s %s %d\n", f.Category, f.Severity, f.Confidence)
	fmt.Fprintf(w, "status:      %s\n", f.Status)
	fmt.Fprintf(w, "detected:    %s\n", f.DetectedAt.UTC().Format(time.RFC3339))
	if f.SuppressionReason != "" {
		fmt.Fprintf(w, "suppression: %s\n", f.SuppressionReason)
	}
	if f.ReleasableAfter != nil {
		fmt.Fprintf(w, "releasable:  %s\n", f.ReleasableAfter.UTC().Format(time.RFC3339))
	}
	if f.ReleasedAt != nil {
		fmt.Fprintf(w, "released:    %s\n", f.ReleasedAt.UTC().Format(time.RFC3339))
	}
	if f.Throttled && f.ThrottledAt != nil {
		fmt.Fprintf(w, "throttled:   %s\n", f.ThrottledAt.UTC().Format(time.RFC3339))
	}
}
