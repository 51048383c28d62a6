package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/shipments"
	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
	"github.com/spf13/cobra"
)

func newFetchCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch shipments from the API and update the local copy",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Store.FetchShipments(ctx); err != nil {
				return fmt.Errorf("fetch shipments: %w", err)
			}
			list, err := shipmentsToShow(a.Views, a.Store.GetState(), status)
			if err != nil {
				return err
			}
			printShipments(cmd.OutOrStdout(), list)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only show shipments with this status")
	return cmd
}

// shipmentsToShow applies a one-off status filter without touching the
// saved one; an empty status shows what the saved filter lets through.
func shipmentsToShow(views *shipments.Selectors, state shipments.State, status string) ([]contracts.ShipmentRecord, error) {
	if status == "" {
		return views.VisibleShipments(state)
	}
	return views.FilteredShipments(state, status)
}

func newCreateCmd() *cobra.Command {
	var (
		input contracts.CreateShipmentInput
		route string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a shipment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if route != "" {
				points, err := parseRoute(route, time.Now().UTC())
				if err != nil {
					return err
				}
				input.Route = points
			}

			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Store.CreateShipment(ctx, input)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}

	cmd.Flags().StringVar(&input.ShipmentID, "shipment-id", "", "Shipment id")
	cmd.Flags().StringVar(&input.ContainerID, "container-id", "", "Container id (required)")
	cmd.Flags().StringVar(&input.CurrentLocation, "location", "", "Current location")
	cmd.Flags().Float64Var(&input.AverageSpeed, "speed", 0, "Average speed")
	cmd.Flags().StringVar(&route, "route", "", `Route as "lat,lng;lat,lng" (required)`)
	return cmd
}

func newStatsCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show shipment counts per status from the local copy",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if refresh {
				if err := a.Store.FetchShipments(ctx); err != nil {
					return fmt.Errorf("fetch shipments: %w", err)
				}
			}
			stats, err := a.Views.ShipmentStats(a.Store.GetState())
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch from the API first")
	return cmd
}

// parseRoute reads "lat,lng;lat,lng". Every point is stamped with at.
func parseRoute(s string, at time.Time) ([]contracts.RoutePoint, error) {
	var points []contracts.RoutePoint
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		coords := strings.Split(part, ",")
		if len(coords) != 2 {
			return nil, fmt.Errorf("route point %q: want lat,lng", part)
		}
		var p contracts.RoutePoint
		for i, c := range coords {
			v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
			if err != nil {
				return nil, fmt.Errorf("route point %q: %w", part, err)
			}
			p.Coordinates[i] = v
		}
		p.Timestamp = at
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("route %q has no points", s)
	}
	return points, nil
}

func printShipments(w io.Writer, list []contracts.ShipmentRecord) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No shipments found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SHIPMENT\tCONTAINER\tSTATUS\tLOCATION\tETA")
	for _, s := range list {
		eta := "-"
		if s.CurrentEta != nil {
			eta = s.CurrentEta.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ShipmentID, s.ContainerID, s.Status, s.CurrentLocation, eta)
	}
	_ = tw.Flush()
}

// printStats prints the total first, then each status alphabetically.
func printStats(w io.Writer, stats shipments.Stats) {
	fmt.Fprintf(w, "%-12s %d\n", "total", stats["total"])
	keys := make([]string, 0, len(stats))
	for k := range stats {
		if k != "total" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-12s %d\n", k, stats[k])
	}
}
