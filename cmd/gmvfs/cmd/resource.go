package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var resourceParent string

var resourceCmd = &cobra.Command{
	Use:   "resource",
	Short: "Create, rename and delete resources",
}

var resourceCreateCmd = &cobra.Command{
	Use:   "create <kind> <name>",
	Short: "Create a resource",
	Long: `Create a resource in the project root, or in the folder given by --in.

New objects start with a Create event. New scripts are opened in the
editor afterwards.

Kinds: ` + resourceKindNames(),
	Args: cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		kind, err := parseResourceKind(args[0])
		if err != nil {
			return err
		}
		parent, err := resolveFolder(ctx, a.tree, resourceParent)
		if err != nil {
			return err
		}
		if err := a.ops.CreateResource(ctx, parent, kind, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Created %s %s\n", strings.ToLower(string(kind)), args[1])
		return nil
	}),
}

var resourceRenameCmd = &cobra.Command{
	Use:   "rename <name> <new-name>",
	Short: "Rename a resource",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		res, err := resolveResource(ctx, a.tree, args[0])
		if err != nil {
			return err
		}
		if err := a.ops.RenameResource(ctx, res, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Renamed %s %s to %s\n", strings.ToLower(string(res.Resource)), res.Name, args[1])
		return nil
	}),
}

var resourceDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a resource",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		res, err := resolveResource(ctx, a.tree, args[0])
		if err != nil {
			return err
		}
		if err := a.ops.DeleteResource(ctx, res); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted %s %s\n", strings.ToLower(string(res.Resource)), res.Name)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(resourceCmd)
	resourceCmd.AddCommand(resourceCreateCmd, resourceRenameCmd, resourceDeleteCmd)

	resourceCreateCmd.Flags().StringVar(&resourceParent, "in", "", "parent folder (default the project root)")
}
