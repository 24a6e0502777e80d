package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var folderParent string

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Create, rename and delete folders",
}

var folderCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a folder",
	Long: `Create a folder in the project root, or in the folder given by --in.

Without a name the folder is called "New Folder". When the name is already
taken the folder is called "New Folder 1", "New Folder 2" and so on, up to 9.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		parent, err := resolveFolder(ctx, a.tree, folderParent)
		if err != nil {
			return err
		}

		var name string
		if len(args) > 0 {
			name = args[0]
		}
		created, err := a.ops.CreateFolder(ctx, parent, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Created folder %s (%s)\n", created.Name, created.Path)
		return nil
	}),
}

var folderRenameCmd = &cobra.Command{
	Use:   "rename <folder> <new-name>",
	Short: "Rename a folder",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		folder, err := resolveFolder(ctx, a.tree, args[0])
		if err != nil {
			return err
		}
		if folder == nil {
			return fmt.Errorf("the project root cannot be renamed")
		}
		if err := a.ops.RenameFolder(ctx, folder, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Renamed folder %s to %s\n", folder.Name, args[1])
		return nil
	}),
}

var folderDeleteCmd = &cobra.Command{
	Use:   "delete <folder>",
	Short: "Delete a folder and everything in it",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		folder, err := resolveFolder(ctx, a.tree, args[0])
		if err != nil {
			return err
		}
		if folder == nil {
			return fmt.Errorf("the project root cannot be deleted")
		}
		if err := a.ops.DeleteFolder(ctx, folder); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted folder %s\n", folder.Name)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(folderCmd)
	folderCmd.AddCommand(folderCreateCmd, folderRenameCmd, folderDeleteCmd)

	folderCreateCmd.Flags().StringVar(&folderParent, "in", "", "parent folder (default the project root)")
}
