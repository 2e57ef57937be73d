package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mockcarpool/carpool/internal/session"
)

var (
	routeJSON    bool
	routeTimeout time.Duration
)

var routeCmd = &cobra.Command{
	Use:   "route [from] [to]",
	Short: "Compute a driving route between two places",
	Long: `Resolves both locations to their best match and prints the driving
distance and travel time between them.`,
	Args: cobra.ExactArgs(2),
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().BoolVar(&routeJSON, "json", false, "output the final session snapshot as JSON")
	routeCmd.Flags().DurationVar(&routeTimeout, "timeout", 30*time.Second, "give up after this long")
	rootCmd.AddCommand(routeCmd)
}

func runRoute(cmd *cobra.Command, args []string) error {
	sessions, closeFn, err := openSessions(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	sess, err := sessions.Create()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), routeTimeout)
	defer cancel()

	snap, err := planRoute(ctx, sess, args[0], args[1])
	if err != nil {
		return err
	}

	if routeJSON {
		if err := outputRouteJSON(cmd, snap); err != nil {
			return err
		}
	} else {
		outputRouteText(cmd, snap)
	}

	switch {
	case snap.Phase == session.PhaseRouteReady:
		return nil
	case snap.LastError != nil:
		return fmt.Errorf("no route: %w", snap.LastError)
	default:
		return fmt.Errorf("no route: session ended in phase %s", snap.Phase)
	}
}

// planRoute enters both locations, requests the route and waits for the
// pipeline to settle.
func planRoute(ctx context.Context, sess *session.Session, from, to string) (*session.Snapshot, error) {
	updates, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	if _, err := sess.SetText(ctx, session.FieldStart, from); err != nil {
		return nil, fmt.Errorf("set start: %w", err)
	}
	if _, err := sess.SetText(ctx, session.FieldEnd, to); err != nil {
		return nil, fmt.Errorf("set end: %w", err)
	}
	snap, err := sess.RequestRoute(ctx)
	if err != nil {
		return nil, fmt.Errorf("request route: %w", err)
	}

	for !settled(snap) {
		select {
		case _, ok := <-updates:
			if !ok {
				return nil, session.ErrSessionClosed
			}
			if latest := sess.Snapshot(); latest.Version > snap.Version {
				snap = latest
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for route: %w", ctx.Err())
		}
	}
	return snap, nil
}

func settled(snap *session.Snapshot) bool {
	if snap.Busy {
		return false
	}
	switch snap.Phase {
	case session.PhaseRouteReady, session.PhaseRouteFailed, session.PhaseResolutionFailed:
		return true
	}
	return false
}

func outputRouteJSON(cmd *cobra.Command, snap *session.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func outputRouteText(cmd *cobra.Command, snap *session.Snapshot) {
	out := cmd.OutOrStdout()
	for _, f := range session.Fields {
		view := snap.Field(f)
		if view.Place == nil {
			continue
		}
		fmt.Fprintf(out, "%-6s %s (%.5f, %.5f)\n", string(f)+":", view.Place.DisplayName,
			view.Place.Coordinate.Lat, view.Place.Coordinate.Lon)
	}
	if snap.Route == nil {
		return
	}
	fmt.Fprintf(out, "Distance:    %s\n", snap.Route.Distance)
	fmt.Fprintf(out, "Travel time: %s\n", snap.Route.TravelTime)
}
