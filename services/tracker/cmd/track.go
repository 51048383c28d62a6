package main

import (
	"fmt"
	"time"

	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
	"github.com/spf13/cobra"
)

func newTrackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "track <shipment-id>",
		Short: "Follow a shipment's live position until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			tr, err := a.Track(args[0], func(p contracts.RoutePoint) {
				fmt.Fprintf(out, "%s  %.6f, %.6f\n", p.Timestamp.Format(time.RFC3339), p.Coordinates[0], p.Coordinates[1])
			})
			if err != nil {
				return err
			}
			defer tr.Close()

			if err := tr.Run(ctx); err != nil {
				return err
			}
			trail := tr.Trail()
			fmt.Fprintf(out, "%s: %d positions, socket %s\n", args[0], len(trail.Route), tr.Status())
			return nil
		},
	}
}
