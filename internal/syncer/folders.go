package syncer

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"notesync/internal/entity"
	"notesync/internal/logging"
	"notesync/internal/notes"
)

var nameFolder = cases.Fold()

// nameKey normalizes a folder or list name for matching.
func nameKey(name string) string {
	return nameFolder.String(norm.NFC.String(strings.TrimSpace(name)))
}

// syncLocalFolders pushes folder creations, renames and deletions.
func (s *session) syncLocalFolders(ctx context.Context) error {
	folders, err := s.store.Folders(ctx, true)
	if err != nil {
		return s.localErr("list folders", err)
	}
	for _, folder := range folders {
		if folder.RemoteID != "" && !folder.Deleted {
			s.claimed[folder.RemoteID] = folder.ID
		}
	}
	for _, folder := range folders {
		if err := s.checkpoint(); err != nil {
			return err
		}
		if err := s.syncFolder(ctx, folder); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) syncFolder(ctx context.Context, folder notes.Note) error {
	listID, mapped := s.payload.ListFor(folder.ID)
	if !mapped && folder.RemoteID != "" {
		listID = folder.RemoteID
	}
	list, alive := s.lists[listID]

	switch {
	case folder.Deleted:
		if alive {
			node := entity.NewTaskList(folder.ID, folder.Title)
			if err := node.ApplyRemoteSnapshot(list); err != nil {
				return err
			}
			if err := s.remote.DeleteEntity(ctx, node); err != nil {
				return err
			}
			s.stats.RemoteDeletes++
			s.dropList(listID)
		}
		s.payload.Unbind(folder.ID)
		ok, err := s.store.DeleteGuarded(ctx, folder.ID, folder.Version)
		if err != nil {
			return s.localErr("purge deleted folder", err)
		}
		if !ok {
			s.deferItem(ctx, "folder changed during sync", folder.ID)
		}
		return nil

	case !mapped:
		return s.bindFolder(ctx, folder)

	case !alive:
		// Notes with unsynced edits survive and keep the folder; the unbound
		// folder is pushed as a new list next session.
		s.payload.Unbind(folder.ID)
		ok, err := s.store.DeleteGuarded(ctx, folder.ID, folder.Version)
		if err != nil {
			return s.localErr("delete folder of removed list", err)
		}
		if !ok {
			s.deferItem(ctx, "folder changed or holds local edits", folder.ID)
			return nil
		}
		s.stats.LocalDeletes++
		s.logger.Info("remote list removed; deleted local folder",
			logging.Int64(logging.FieldNoteID, folder.ID),
			logging.String(logging.FieldRemoteID, listID),
		)
		return nil

	case folder.LocalModified:
		node := entity.NewTaskList(folder.ID, list.Name)
		if err := node.ApplyRemoteSnapshot(list); err != nil {
			return err
		}
		node.SetName(folder.Title)
		if node.Changed() {
			if err := s.remote.AddUpdate(ctx, node); err != nil {
				return err
			}
			s.stats.RemoteUpdates++
			s.touched[listID] = true
			list.Name = folder.Title
			s.lists[listID] = list
		}
		return s.clearFolder(ctx, folder)
	}
	return nil
}

// bindFolder maps an unmapped live folder to a list, reusing a list it was
// bound to before or one with the same name, and creating one otherwise.
func (s *session) bindFolder(ctx context.Context, folder notes.Note) error {
	listID := ""
	if _, ok := s.lists[folder.RemoteID]; ok && folder.RemoteID != "" && !s.listBound(folder.RemoteID) {
		listID = folder.RemoteID
	}
	if listID == "" {
		listID = s.matchList(folder.Title)
	}

	if listID != "" {
		list := s.lists[listID]
		node := entity.NewTaskList(folder.ID, list.Name)
		if err := node.ApplyRemoteSnapshot(list); err != nil {
			return err
		}
		node.SetName(folder.Title)
		if node.Changed() {
			if err := s.remote.AddUpdate(ctx, node); err != nil {
				return err
			}
			s.stats.RemoteUpdates++
			list.Name = folder.Title
			s.lists[listID] = list
		}
		s.logger.Info("bound folder to existing list",
			logging.Int64(logging.FieldNoteID, folder.ID),
			logging.String(logging.FieldRemoteID, listID),
		)
	} else {
		node := entity.NewTaskList(folder.ID, folder.Title)
		node.Index = len(s.listOrder)
		if err := s.remote.CreateTaskList(ctx, node); err != nil {
			return err
		}
		s.stats.RemoteCreates++
		listID = node.RemoteID
		s.addList(entity.Snapshot{ID: listID, Name: folder.Title, Type: entity.EntityGroup})
		s.listTasks[listID] = nil
	}

	s.payload.Bind(folder.ID, listID)
	s.claimed[listID] = folder.ID
	s.touched[listID] = true
	if folder.RemoteID != listID {
		if err := s.store.SetRemoteID(ctx, folder.ID, listID); err != nil {
			return s.localErr("record folder remote id", err)
		}
	}
	return s.clearFolder(ctx, folder)
}

func (s *session) clearFolder(ctx context.Context, folder notes.Note) error {
	if !folder.LocalModified {
		return nil
	}
	ok, err := s.store.ClearLocalModified(ctx, folder.ID, folder.Version)
	if err != nil {
		return s.localErr("clear folder modified flag", err)
	}
	if !ok {
		s.deferItem(ctx, "folder changed during sync", folder.ID)
	}
	return nil
}

func (s *session) listBound(listID string) bool {
	_, ok := s.payload.FolderFor(listID)
	return ok
}

// matchList returns an unbound, unclaimed list whose name matches.
func (s *session) matchList(name string) string {
	key := nameKey(name)
	for _, listID := range s.listOrder {
		if s.listBound(listID) {
			continue
		}
		if _, claimed := s.claimed[listID]; claimed {
			continue
		}
		if nameKey(s.lists[listID].Name) == key {
			return listID
		}
	}
	return ""
}

func (s *session) dropList(listID string) {
	delete(s.lists, listID)
	for i, id := range s.listOrder {
		if id == listID {
			s.listOrder = append(s.listOrder[:i], s.listOrder[i+1:]...)
			break
		}
	}
}

// syncRemoteLists materializes folders for unmapped lists and applies remote
// renames to folders without local edits.
func (s *session) syncRemoteLists(ctx context.Context) error {
	for _, listID := range s.listOrder {
		if err := s.checkpoint(); err != nil {
			return err
		}
		list := s.lists[listID]

		if folderID, ok := s.payload.FolderFor(listID); ok {
			if err := s.pullFolderName(ctx, folderID, list); err != nil {
				return err
			}
			continue
		}

		existing, err := s.store.NoteByRemoteID(ctx, listID)
		if err != nil {
			return s.localErr("find folder by remote id", err)
		}
		if existing != nil && existing.IsFolder() && !existing.Deleted {
			s.payload.Bind(existing.ID, listID)
			if err := s.pullFolderName(ctx, existing.ID, list); err != nil {
				return err
			}
			continue
		}

		folder, err := s.store.MaterializeFolder(ctx, list.Name, listID)
		if err != nil {
			return s.localErr("materialize folder", err)
		}
		s.stats.LocalCreates++
		s.payload.Bind(folder.ID, listID)
		s.logger.Info("materialized folder from remote list",
			logging.Int64(logging.FieldNoteID, folder.ID),
			logging.String(logging.FieldRemoteID, listID),
		)
	}
	return nil
}

func (s *session) pullFolderName(ctx context.Context, folderID int64, list entity.Snapshot) error {
	folder, err := s.store.Get(ctx, folderID)
	if err != nil {
		return s.localErr("load folder", err)
	}
	if folder == nil || folder.Deleted || folder.LocalModified || folder.Title == list.Name {
		return nil
	}
	ok, err := s.store.ApplyRemoteFolderName(ctx, folder.ID, folder.Version, list.Name)
	if err != nil {
		return s.localErr("rename folder", err)
	}
	if !ok {
		s.deferItem(ctx, "folder changed during sync", folder.ID)
		return nil
	}
	s.stats.LocalUpdates++
	return nil
}
