package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"notesync/internal/notes"
)

func newFolderCommand(ctx *commandContext) *cobra.Command {
	folderCmd := &cobra.Command{
		Use:     "folders",
		Aliases: []string{"folder"},
		Short:   "Manage local folders",
	}

	var includeDeleted bool
	var jsonOutput bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *notes.Store) error {
				folders, err := store.Folders(cmd.Context(), includeDeleted)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, folders)
				}
				if len(folders) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No folders")
					return nil
				}
				rows := make([][]string, 0, len(folders))
				for _, folder := range folders {
					children, err := store.NotesInFolder(cmd.Context(), folder.ID)
					if err != nil {
						return err
					}
					rows = append(rows, []string{
						strconv.FormatInt(folder.ID, 10),
						folder.Title,
						strconv.Itoa(countLive(children)),
						syncState(folder),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Notes", "Sync"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&includeDeleted, "deleted", false, "Include folders pending deletion")
	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a folder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *notes.Store) error {
				folder, err := store.CreateFolder(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created folder %d (%s)\n", folder.ID, folder.Title)
				return nil
			})
		},
	}

	renameCmd := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a folder",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *notes.Store) error {
				if err := store.RenameFolder(cmd.Context(), id, strings.Join(args[1:], " ")); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed folder %d\n", id)
				return nil
			})
		},
	}

	removeCmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Delete a folder and its notes",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *notes.Store) error {
				if err := store.DeleteFolder(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted folder %d; the deletion syncs on the next session\n", id)
				return nil
			})
		},
	}

	folderCmd.AddCommand(listCmd, addCmd, renameCmd, removeCmd)
	return folderCmd
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", value)
	}
	return id, nil
}

func countLive(items []notes.Note) int {
	n := 0
	for _, item := range items {
		if !item.Deleted {
			n++
		}
	}
	return n
}

func syncState(n notes.Note) string {
	switch {
	case n.Deleted:
		return "delete pending"
	case !n.Synced():
		return "new"
	case n.LocalModified:
		return "modified"
	default:
		return "synced"
	}
}
