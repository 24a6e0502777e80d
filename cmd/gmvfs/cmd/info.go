package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the open project",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		metadata := a.tree.Metadata()
		out := a.out

		fmt.Fprintf(out, "Project:     %s\n", metadata.Name)
		if metadata.ProjectFile != "" {
			fmt.Fprintf(out, "File:        %s\n", metadata.ProjectFile)
		} else if a.projectPath != "" {
			fmt.Fprintf(out, "File:        %s\n", a.projectPath)
		}
		if metadata.IDEVersion != "" {
			fmt.Fprintf(out, "IDE version: %s\n", metadata.IDEVersion)
		}
		fmt.Fprintf(out, "Root folder: %s\n", metadata.Root.Path)
		if logFile := a.session.LogFile(); logFile != "" {
			fmt.Fprintf(out, "Server log:  %s\n", logFile)
		}
		if a.cfg.Source != "" {
			fmt.Fprintf(out, "Config:      %s\n", a.cfg.Source)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
