package main

import (
	"context"
	"log/slog"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/realtime"
	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		track     string
		skipFetch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tracker with its diagnostics server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var tr *realtime.Tracker
			if track != "" {
				tr, err = a.Track(track, func(p contracts.RoutePoint) {
					a.Logger.Info("position update",
						slog.String("shipment_id", track),
						slog.Float64("lat", p.Coordinates[0]),
						slog.Float64("lng", p.Coordinates[1]),
					)
				})
				if err != nil {
					return err
				}
				defer tr.Close()
			}

			if !skipFetch {
				// a failed initial fetch is recorded in the store; keep serving the cached copy
				if err := a.Store.FetchShipments(ctx); err != nil {
					a.Logger.Warn("initial fetch failed", slog.Any("error", err))
				}
			}

			var f follower
			if tr != nil {
				f = tr
			}
			return serveAndFollow(ctx, a, f)
		},
	}

	cmd.Flags().StringVar(&track, "track", "", "Shipment id to follow live")
	cmd.Flags().BoolVar(&skipFetch, "skip-fetch", false, "Serve the cached copy without fetching first")
	return cmd
}

type server interface {
	Serve(ctx context.Context) error
}

// follower keeps a live socket open; failures show in its status only.
type follower interface {
	Follow(ctx context.Context)
}

// serveAndFollow runs the server until ctx ends. The follower runs beside it
// and is stopped, and waited for, before returning. It never stops the server.
func serveAndFollow(ctx context.Context, srv server, f follower) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	followed := make(chan struct{})
	if f != nil {
		go func() {
			defer close(followed)
			f.Follow(ctx)
		}()
	} else {
		close(followed)
	}

	err := srv.Serve(ctx)
	cancel()
	<-followed
	return err
}
