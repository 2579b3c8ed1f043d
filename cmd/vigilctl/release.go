package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/vigil/internal/flags"
	"github.com/JaimeStill/vigil/pkg/database"
)

func newReleaseCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "release",
		Short: "Release held flags whose hold window has elapsed",
		Long: `Runs one pass of the held-flag release job outside the server's schedule.
Flags on sensitive hold past their releasable time return to pending.`,
		Args: cobra.NoArgs,
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
			n, err := flagsSystem.ReleaseHeld(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}

			result := map[string]int{"released": n}
			return opts.write(cmd.OutOrStdout(), result, func(w io.Writer) {
				fmt.Fprintf(w, "released %d held flag(s)\n", n)
			})
		},
	}
}
