package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tsarna/gmvfs/pkg/gmvfs/events"
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a script or an event in the editor",
	Long: `Open the source file of a script or an object event in $VISUAL or
$EDITOR. When neither is set the file's path is printed.`,
}

var openScriptCmd = &cobra.Command{
	Use:   "script <name>",
	Short: "Open a script",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		script, err := resolveResource(ctx, a.tree, args[0])
		if err != nil {
			return err
		}
		return a.ops.OpenScript(ctx, script)
	}),
}

var openEventCmd = &cobra.Command{
	Use:   "event <object> <event>",
	Short: "Open an object event",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		kind, err := events.Parse(args[1])
		if err != nil {
			return err
		}
		event, err := resolveEvent(ctx, a.tree, args[0], kind)
		if err != nil {
			return err
		}
		return a.ops.OpenEvent(ctx, event)
	}),
}

func init() {
	rootCmd.AddCommand(openCmd)
	openCmd.AddCommand(openScriptCmd, openEventCmd)
}
