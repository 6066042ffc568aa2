package syncer

import (
	"context"
	"errors"
	"time"

	"notesync/internal/entity"
	"notesync/internal/logging"
	"notesync/internal/notes"
	"notesync/internal/services"
	"notesync/internal/subrecord"
)

// syncNotes reconciles the notes of every mapped folder with the tasks of its
// list.
func (s *session) syncNotes(ctx context.Context) error {
	for _, folderID := range s.payload.FolderIDs() {
		if err := s.checkpoint(); err != nil {
			return err
		}
		listID, _ := s.payload.ListFor(folderID)
		if err := s.syncPair(services.WithNoteID(ctx, folderID), folderID, listID); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) syncPair(ctx context.Context, folderID int64, listID string) error {
	local, err := s.store.NotesInFolder(ctx, folderID)
	if err != nil {
		return s.localErr("list notes", err)
	}

	if s.canSkip(listID, local) {
		s.stats.SkippedLists++
		s.logger.Debug("list unchanged since last sync; skipping fetch",
			logging.Int64(logging.FieldNoteID, folderID),
			logging.String(logging.FieldRemoteID, listID),
		)
		return nil
	}
	if err := s.fetch(ctx, listID); err != nil {
		return err
	}

	for _, note := range local {
		if note.RemoteID != "" && s.handled[note.RemoteID] {
			continue
		}
		if err := s.syncLocalNote(ctx, listID, note); err != nil {
			return err
		}
	}

	for _, task := range s.listTasks[listID] {
		if s.handled[task.ID] || task.Deleted {
			continue
		}
		if err := s.syncRemoteTask(ctx, folderID, task); err != nil {
			return err
		}
	}
	return nil
}

// canSkip reports whether a pair's fetch can be skipped: the list was mapped
// before this session and not written since, is not newer than the
// watermark, and the folder holds no pending local work.
func (s *session) canSkip(listID string, local []notes.Note) bool {
	if !s.preMapped[listID] || s.touched[listID] {
		return false
	}
	if _, fetched := s.listTasks[listID]; fetched {
		return false
	}
	list, ok := s.lists[listID]
	if !ok || list.LastModified > s.payload.SyncPoint {
		return false
	}
	for _, note := range local {
		if note.LocalModified || note.Deleted || note.RemoteID == "" {
			return false
		}
	}
	return true
}

func (s *session) fetch(ctx context.Context, listID string) error {
	if _, ok := s.listTasks[listID]; ok {
		return nil
	}
	tasks, err := s.remote.FetchList(ctx, listID)
	if err != nil {
		return err
	}
	live := tasks[:0]
	for _, task := range tasks {
		if entity.IsMetaTask(task) {
			continue
		}
		live = append(live, task)
		s.tasks[task.ID] = task
		if !task.Deleted {
			s.tail[listID] = task.ID
		}
	}
	s.listTasks[listID] = live
	s.stats.FetchedLists++
	return nil
}

// lookupTask finds a task by id, fetching the remaining mapped lists when it
// is not in any list fetched so far.
func (s *session) lookupTask(ctx context.Context, remoteID string) (entity.Snapshot, bool, error) {
	if task, ok := s.tasks[remoteID]; ok {
		return task, true, nil
	}
	for _, folderID := range s.payload.FolderIDs() {
		listID, _ := s.payload.ListFor(folderID)
		if _, fetched := s.listTasks[listID]; fetched {
			continue
		}
		if _, alive := s.lists[listID]; !alive {
			continue
		}
		if err := s.fetch(ctx, listID); err != nil {
			return entity.Snapshot{}, false, err
		}
		if task, ok := s.tasks[remoteID]; ok {
			return task, true, nil
		}
	}
	return entity.Snapshot{}, false, nil
}

func (s *session) syncLocalNote(ctx context.Context, listID string, note notes.Note) error {
	if note.RemoteID == "" {
		if note.Deleted {
			if err := s.store.PurgeNote(ctx, note.ID); err != nil {
				return s.localErr("purge unsynced note", err)
			}
			return nil
		}
		return s.createRemoteNote(ctx, listID, note)
	}

	task, found, err := s.lookupTask(ctx, note.RemoteID)
	if err != nil {
		return err
	}
	if !found || task.Deleted {
		s.handled[note.RemoteID] = true
		return s.remoteGone(ctx, listID, note)
	}
	return s.reconcile(ctx, note, task)
}

func (s *session) syncRemoteTask(ctx context.Context, folderID int64, task entity.Snapshot) error {
	note, err := s.store.NoteByRemoteID(ctx, task.ID)
	if err != nil {
		return s.localErr("find note by remote id", err)
	}
	if note == nil || note.IsFolder() {
		return s.materialize(ctx, folderID, task)
	}
	return s.reconcile(ctx, *note, task)
}

func (s *session) createRemoteNote(ctx context.Context, listID string, note notes.Note) error {
	content, err := s.encodeNote(ctx, note)
	if err != nil {
		return err
	}
	node := entity.NewTask(note.ID, listID, note.Title, content)
	node.PriorSiblingID = s.tail[listID]
	node.Index = len(s.listTasks[listID])
	if err := s.remote.CreateTask(ctx, node); err != nil {
		return err
	}
	s.stats.RemoteCreates++

	snapshot := entity.Snapshot{ID: node.RemoteID, Name: note.Title, Notes: content, ListID: listID, Type: entity.EntityTask}
	s.listTasks[listID] = append(s.listTasks[listID], snapshot)
	s.tasks[node.RemoteID] = snapshot
	s.tail[listID] = node.RemoteID
	s.handled[node.RemoteID] = true
	s.touched[listID] = true
	s.pushed[node.RemoteID] = note.ID

	if err := s.store.SetRemoteID(ctx, note.ID, node.RemoteID); err != nil {
		return s.localErr("record note remote id", err)
	}
	return s.clearNote(ctx, note)
}

// remoteGone handles a synced note whose task no longer exists remotely. An
// unsynced local edit wins over the remote deletion and recreates the task.
func (s *session) remoteGone(ctx context.Context, listID string, note notes.Note) error {
	if note.Deleted {
		if err := s.store.PurgeNote(ctx, note.ID); err != nil {
			return s.localErr("purge note", err)
		}
		return nil
	}
	if note.LocalModified {
		s.logger.Info("task removed remotely but note edited locally; recreating",
			logging.Int64(logging.FieldNoteID, note.ID),
			logging.String(logging.FieldRemoteID, note.RemoteID),
		)
		return s.createRemoteNote(ctx, listID, note)
	}
	ok, err := s.store.DeleteGuarded(ctx, note.ID, note.Version)
	if err != nil {
		return s.localErr("delete note removed remotely", err)
	}
	if !ok {
		s.deferItem(ctx, "note edited during sync", note.ID)
		return nil
	}
	s.stats.LocalDeletes++
	return nil
}

func (s *session) reconcile(ctx context.Context, note notes.Note, task entity.Snapshot) error {
	s.handled[task.ID] = true
	ctx = services.WithNoteID(ctx, note.ID)

	if note.Deleted {
		node := entity.NewTask(note.ID, task.ListID, "", "")
		if err := node.ApplyRemoteSnapshot(task); err != nil {
			return services.Wrap(services.ErrProtocol, s.stepName, "load task", "", err)
		}
		if err := s.remote.DeleteEntity(ctx, node); err != nil {
			return err
		}
		s.stats.RemoteDeletes++
		s.touched[task.ListID] = true
		s.gone[task.ID] = true
		if err := s.store.PurgeNote(ctx, note.ID); err != nil {
			return s.localErr("purge deleted note", err)
		}
		return nil
	}

	expected, mapped := s.payload.ListFor(note.ParentID)
	if !mapped {
		s.deferItem(ctx, "note folder has no remote list", note.ID)
		return nil
	}

	if task.ListID != expected {
		if note.LocalModified {
			node := entity.NewTask(note.ID, task.ListID, "", "")
			if err := node.ApplyRemoteSnapshot(task); err != nil {
				return services.Wrap(services.ErrProtocol, s.stepName, "load task", "", err)
			}
			node.PriorSiblingID = s.tail[expected]
			from := task.ListID
			if err := s.remote.MoveTask(ctx, node, from, expected); err != nil {
				return err
			}
			s.stats.RemoteMoves++
			s.touched[from] = true
			s.touched[expected] = true
			s.pushed[task.ID] = note.ID
			s.tail[expected] = task.ID
			task.ListID = expected
			s.tasks[task.ID] = task
		} else {
			folderID, ok := s.payload.FolderFor(task.ListID)
			if !ok {
				s.deferItem(ctx, "task moved to an unmapped list", note.ID)
				return nil
			}
			return s.pull(ctx, note, folderID, task)
		}
	}

	localChanged := note.LocalModified
	remoteChanged := task.LastModified > note.SyncID
	switch {
	case localChanged && remoteChanged:
		if note.ModifiedAt.UnixMilli() >= task.LastModified {
			return s.push(ctx, note, task)
		}
		s.logger.Info("remote edit newer than local edit; keeping remote",
			logging.Int64(logging.FieldNoteID, note.ID),
			logging.String(logging.FieldRemoteID, task.ID),
		)
		return s.pull(ctx, note, note.ParentID, task)
	case localChanged:
		return s.push(ctx, note, task)
	case remoteChanged:
		return s.pull(ctx, note, note.ParentID, task)
	}
	return nil
}

func (s *session) push(ctx context.Context, note notes.Note, task entity.Snapshot) error {
	content, err := s.encodeNote(ctx, note)
	if err != nil {
		return err
	}
	node := entity.NewTask(note.ID, task.ListID, "", "")
	if err := node.ApplyRemoteSnapshot(task); err != nil {
		return services.Wrap(services.ErrProtocol, s.stepName, "load task", "", err)
	}
	node.SetName(note.Title)
	node.SetNotes(content)
	if node.Changed() {
		if err := s.remote.AddUpdate(ctx, node); err != nil {
			return err
		}
		s.stats.RemoteUpdates++
		s.touched[task.ListID] = true
		s.pushed[task.ID] = note.ID
	}
	return s.clearNote(ctx, note)
}

func (s *session) pull(ctx context.Context, note notes.Note, folderID int64, task entity.Snapshot) error {
	blob := entity.DecodeContent(task.Notes)
	ok, err := s.store.ApplyRemoteNote(ctx, note.ID, note.Version, folderID, remoteNote(task, blob))
	if err != nil {
		return s.localErr("apply remote note", err)
	}
	if !ok {
		s.deferItem(ctx, "note edited during sync", note.ID)
		return nil
	}
	s.stats.LocalUpdates++
	guard := note.Version
	return s.commitData(ctx, note.ID, blob, &guard)
}

func (s *session) materialize(ctx context.Context, folderID int64, task entity.Snapshot) error {
	s.handled[task.ID] = true
	blob := entity.DecodeContent(task.Notes)
	note, err := s.store.MaterializeNote(ctx, folderID, remoteNote(task, blob))
	if err != nil {
		return s.localErr("materialize note", err)
	}
	s.stats.LocalCreates++
	return s.commitData(services.WithNoteID(ctx, note.ID), note.ID, blob, nil)
}

func remoteNote(task entity.Snapshot, blob entity.ContentBlob) notes.RemoteNote {
	rn := notes.RemoteNote{
		Title:    task.Name,
		Body:     blob.Body,
		RemoteID: task.ID,
		SyncID:   task.LastModified,
	}
	if task.LastModified > 0 {
		rn.ModifiedAt = time.UnixMilli(task.LastModified).UTC()
	}
	return rn
}

// commitData merges the first remote sub-record into the note's local one.
func (s *session) commitData(ctx context.Context, noteID int64, blob entity.ContentBlob, guard *int64) error {
	if len(blob.Data) == 0 {
		return nil
	}
	existing, err := s.store.DataForNote(ctx, noteID)
	if err != nil {
		return s.localErr("load sub-record", err)
	}
	var tracker *subrecord.Tracker
	if existing == nil {
		tracker = subrecord.New(s.logger)
	} else {
		tracker = subrecord.Load(existing.ID, subrecord.Values{
			MimeType: existing.MimeType,
			Content:  existing.Content,
			Data1:    existing.Data1,
			Data3:    existing.Data3,
		}, s.logger)
	}
	tracker.SetFromRemote(blob.Data[0])

	outcome, err := tracker.Commit(ctx, s.store, noteID, guard)
	switch {
	case errors.Is(err, subrecord.ErrCreation):
		s.deferItem(ctx, "sub-record could not be created", noteID)
		return nil
	case err != nil:
		return s.localErr("commit sub-record", err)
	case outcome == subrecord.OutcomeGuardRejected:
		s.deferItem(ctx, "sub-record edited during sync", noteID)
	}
	return nil
}

func (s *session) encodeNote(ctx context.Context, note notes.Note) (string, error) {
	blob := entity.ContentBlob{Body: note.Body}
	data, err := s.store.DataForNote(ctx, note.ID)
	if err != nil {
		return "", s.localErr("load sub-record", err)
	}
	if data != nil {
		blob.Data = []entity.DataRecord{{
			MimeType: data.MimeType,
			Content:  data.Content,
			Data1:    data.Data1,
			Data3:    data.Data3,
		}}
	}
	content, err := entity.EncodeContent(blob)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, s.stepName, "encode note", "", err)
	}
	return content, nil
}

func (s *session) clearNote(ctx context.Context, note notes.Note) error {
	if !note.LocalModified {
		return nil
	}
	ok, err := s.store.ClearLocalModified(ctx, note.ID, note.Version)
	if err != nil {
		return s.localErr("clear note modified flag", err)
	}
	if !ok {
		s.deferItem(ctx, "note edited during sync", note.ID)
	}
	return nil
}
