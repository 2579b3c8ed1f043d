package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/vigil/internal/throttle"
	"github.com/JaimeStill/vigil/pkg/cache"
	"github.com/JaimeStill/vigil/pkg/database"
)

type throttleStatus struct {
	FamilyID  string         `json:"familyId"`
	ChildID   string         `json:"childId"`
	Level     throttle.Level `json:"level"`
	MaxAlerts *int           `json:"maxAlerts"`
	State     throttle.State `json:"state"`
}

func newThrottleCommand(opts *rootOptions) *cobra.Command {
	var familyID, childID string

	cmd := &cobra.Command{
		Use:   "throttle",
		Short: "Inspect notification throttle state",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show a child's throttle level and today's counters",
		Args:  cobra.NoArgs,
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

			sys := throttle.New(db.Connection(), cache.NewMemory(time.Now), cfg.Cache.TTLDuration(), logger)
			ctx := cmd.Context()

			level, err := sys.Level(ctx, familyID)
			if err != nil {
				return err
			}
			state, err := sys.State(ctx, familyID, childID, time.Now())
			if err != nil {
				return err
			}

			result := throttleStatus{
				FamilyID: familyID,
				ChildID:  childID,
				Level:    level,
				State:    state,
			}
			if limit, bounded := level.MaxAlerts(); bounded {
				result.MaxAlerts = &limit
			}

			return opts.write(cmd.OutOrStdout(), result, func(w io.Writer) {
				limit := "unbounded"
				if result.MaxAlerts != nil {
					limit = fmt.Sprint(*result.MaxAlerts)
				}
				fmt.Fprintf(w, "level:     %s (max %s)\n", level, limit)
				fmt.Fprintf(w, "date:      %s\n", state.Date)
				fmt.Fprintf(w, "alerts:    %d\n", state.AlertsSentToday)
				fmt.Fprintf(w, "throttled: %d\n", state.ThrottledToday)
				fmt.Fprintf(w, "severity:  high=%d medium=%d low=%d\n",
					state.SeverityCounts.High, state.SeverityCounts.Medium, state.SeverityCounts.Low)
			})
		},
	}
	status.Flags().StringVar(&familyID, "family", "", "family id")
	status.Flags().StringVar(&childID, "child", "", "child id")
	status.MarkFlagRequired("family")
	status.MarkFlagRequired("child")

	cmd.AddCommand(status)
	return cmd
}
