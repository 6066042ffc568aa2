package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"notesync/internal/notes"
)

func newNoteCommand(ctx *commandContext) *cobra.Command {
	noteCmd := &cobra.Command{
		Use:     "notes",
		Aliases: []string{"note"},
		Short:   "Manage local notes",
	}

	var (
		listFolder int64
		jsonOutput bool
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *notes.Store) error {
				folders, err := store.Folders(cmd.Context(), false)
				if err != nil {
					return err
				}
				var listed []notes.Note
				names := make(map[int64]string, len(folders))
				for _, folder := range folders {
					names[folder.ID] = folder.Title
					if listFolder != 0 && folder.ID != listFolder {
						continue
					}
					children, err := store.NotesInFolder(cmd.Context(), folder.ID)
					if err != nil {
						return err
					}
					for _, child := range children {
						if !child.Deleted {
							listed = append(listed, child)
						}
					}
				}
				if jsonOutput {
					return writeJSON(cmd, listed)
				}
				if len(listed) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No notes")
					return nil
				}
				rows := make([][]string, 0, len(listed))
				for _, note := range listed {
					rows = append(rows, []string{
						strconv.FormatInt(note.ID, 10),
						names[note.ParentID],
						note.Title,
						note.ModifiedAt.Local().Format(time.DateTime),
						syncState(note),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Folder", "Title", "Modified", "Sync"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
	listCmd.Flags().Int64Var(&listFolder, "folder", 0, "Only list notes in this folder id")
	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *notes.Store) error {
				note, err := store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if note == nil || note.IsFolder() || note.Deleted {
					return fmt.Errorf("note %d: %w", id, notes.ErrNotFound)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, note.Title)
				if note.Body != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, note.Body)
				}
				data, err := store.DataForNote(cmd.Context(), id)
				if err != nil {
					return err
				}
				if data != nil && data.MimeType != "" {
					fmt.Fprintf(out, "\n[%s] %s\n", data.MimeType, data.Content)
				}
				return nil
			})
		},
	}

	var (
		addFolder int64
		addBody   string
	)
	addCmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if addFolder <= 0 {
				return errors.New("--folder is required")
			}
			return ctx.withStore(func(store *notes.Store) error {
				note, err := store.CreateNote(cmd.Context(), addFolder, args[0], addBody)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created note %d\n", note.ID)
				return nil
			})
		},
	}
	addCmd.Flags().Int64Var(&addFolder, "folder", 0, "Folder id")
	addCmd.Flags().StringVar(&addBody, "body", "", "Note body")

	var (
		editTitle string
		editBody  string
	)
	editCmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a note's title or body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			titleSet := cmd.Flags().Changed("title")
			bodySet := cmd.Flags().Changed("body")
			if !titleSet && !bodySet {
				return errors.New("nothing to change; pass --title and/or --body")
			}
			return ctx.withStore(func(store *notes.Store) error {
				note, err := store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if note == nil || note.IsFolder() || note.Deleted {
					return fmt.Errorf("note %d: %w", id, notes.ErrNotFound)
				}
				title, body := note.Title, note.Body
				if titleSet {
					title = editTitle
				}
				if bodySet {
					body = editBody
				}
				if err := store.EditNote(cmd.Context(), id, title, body); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated note %d\n", id)
				return nil
			})
		},
	}
	editCmd.Flags().StringVar(&editTitle, "title", "", "New title")
	editCmd.Flags().StringVar(&editBody, "body", "", "New body")

	moveCmd := &cobra.Command{
		Use:   "mv <id> <folder-id>",
		Short: "Move a note to another folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			folderID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *notes.Store) error {
				if err := store.MoveNote(cmd.Context(), id, folderID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved note %d to folder %d\n", id, folderID)
				return nil
			})
		},
	}

	removeCmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Delete a note",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *notes.Store) error {
				if err := store.DeleteNote(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted note %d\n", id)
				return nil
			})
		},
	}

	noteCmd.AddCommand(listCmd, showCmd, addCmd, editCmd, moveCmd, removeCmd)
	return noteCmd
}
