package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tsarna/gmvfs/pkg/gmvfs/transform"
	"github.com/tsarna/gmvfs/pkg/gmvfs/vfs"
)

var (
	treeDepth int
	treeIDs   bool
	queryJq   string
)

var treeCmd = &cobra.Command{
	Use:   "tree [folder]",
	Short: "Print the project tree",
	Long: `Print the project tree, or the part of it below a folder.

The folder may be given as a view path or as folder names separated by
slashes.

Examples:
  gmvfs tree
  gmvfs tree --depth 1
  gmvfs tree Sprites/Enemies
  gmvfs tree folders/Sprites.yy`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(runTree),
}

var queryCmd = &cobra.Command{
	Use:   "query [folder]",
	Short: "Print the project tree as JSON, optionally filtered with jq",
	Long: `Print the project tree as JSON records. With --jq the records are run
through a jq program and each result is printed on its own line. The
program can use $project, the project name.

Examples:
  gmvfs query
  gmvfs query --jq '[.. | objects | select(.resource == "Script") | .name]'
  gmvfs query Objects --jq '.[] | select(.children | length == 0) | .name'`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(runQuery),
}

func init() {
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(queryCmd)

	treeCmd.Flags().IntVar(&treeDepth, "depth", 0, "levels to expand (0 for all)")
	treeCmd.Flags().BoolVar(&treeIDs, "ids", false, "show node ids")

	queryCmd.Flags().IntVar(&treeDepth, "depth", 0, "levels to expand (0 for all)")
	queryCmd.Flags().StringVar(&queryJq, "jq", "", "jq program applied to the records")
}

func startFolder(ctx context.Context, a *app, args []string) (*vfs.Node, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return resolveFolder(ctx, a.tree, args[0])
}

func runTree(ctx context.Context, a *app, args []string) error {
	start, err := startFolder(ctx, a, args)
	if err != nil {
		return err
	}

	out := a.out
	if start == nil {
		fmt.Fprintln(out, a.tree.Metadata().Name)
	} else {
		fmt.Fprintln(out, start.Label())
	}

	return a.tree.Walk(ctx, start, func(n *vfs.Node, depth int) bool {
		line := strings.Repeat("  ", depth+1) + n.Tooltip()
		if treeIDs {
			line += "  [" + n.ID() + "]"
		}
		fmt.Fprintln(out, line)
		return treeDepth <= 0 || depth+1 < treeDepth
	})
}

func runQuery(ctx context.Context, a *app, args []string) error {
	start, err := startFolder(ctx, a, args)
	if err != nil {
		return err
	}

	records, err := transform.Records(ctx, a.tree, start, treeDepth)
	if err != nil {
		return err
	}

	out := a.out
	if queryJq == "" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	query, err := transform.NewJqQuery(queryJq)
	if err != nil {
		return err
	}
	results, err := query.Run(ctx, records, a.tree.Metadata().Name)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
