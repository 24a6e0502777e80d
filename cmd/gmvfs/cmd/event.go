package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tsarna/gmvfs/pkg/gmvfs/events"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Add and remove object events",
	Long: `Add and remove object events.

Events are named by identifier (create, step, draw-gui, ...), by file
name (Create_0, Step_0, ...) or by display name ("Draw GUI"). Run
"gmvfs event list-missing <object>" to see which ones an object lacks.`,
}

var eventCreateCmd = &cobra.Command{
	Use:   "create <object> <event>",
	Short: "Add an event to an object and open it",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		kind, err := events.Parse(args[1])
		if err != nil {
			return err
		}
		object, err := resolveObject(ctx, a.tree, args[0])
		if err != nil {
			return err
		}
		return a.ops.CreateEvent(ctx, object, kind)
	}),
}

var eventDeleteCmd = &cobra.Command{
	Use:   "delete <object> <event>",
	Short: "Remove an event from an object",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		kind, err := events.Parse(args[1])
		if err != nil {
			return err
		}
		object, err := resolveObject(ctx, a.tree, args[0])
		if err != nil {
			return err
		}
		if err := a.ops.DeleteEvent(ctx, object, kind); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted %s event of %s\n", kind.Pretty(), object.Name)
		return nil
	}),
}

var eventListMissingCmd = &cobra.Command{
	Use:   "list-missing <object>",
	Short: "List the events an object does not have yet",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		object, err := resolveObject(ctx, a.tree, args[0])
		if err != nil {
			return err
		}
		missing, err := a.tree.MissingEvents(ctx, object)
		if err != nil {
			return err
		}
		for _, kind := range missing {
			fmt.Fprintf(a.out, "%-20s %s\n", kind.String(), kind.Pretty())
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(eventCreateCmd, eventDeleteCmd, eventListMissingCmd)
}
