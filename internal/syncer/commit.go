package syncer

import (
	"context"
	"sort"

	"notesync/internal/entity"
	"notesync/internal/logging"
	"notesync/internal/services"
)

// commit flushes queued updates, records the sync ids of pushed tasks and
// writes the mapping and watermark back to the meta task.
func (s *session) commit(ctx context.Context) error {
	if err := s.remote.FlushPending(ctx); err != nil {
		return err
	}

	watermark := s.payload.SyncPoint
	if s.snapshotPoint > watermark {
		watermark = s.snapshotPoint
	}
	if len(s.touched) > 0 {
		own, err := s.refreshTouched(ctx)
		if err != nil {
			return err
		}
		// Read-back timestamps only count when every change since the
		// metadata step was written by this session.
		if own {
			for _, listID := range s.listOrder {
				if lm := s.lists[listID].LastModified; lm > watermark {
					watermark = lm
				}
			}
		} else {
			s.logger.Debug("lists changed by another writer during sync; keeping snapshot watermark",
				logging.Int64("sync_point", watermark),
			)
		}
	}
	s.payload.SyncPoint = watermark

	encoded, err := s.payload.Encode()
	if err != nil {
		return services.Wrap(services.ErrProtocol, s.stepName, "encode metadata", "", err)
	}
	s.metaTask.SetNotes(encoded)
	if s.metaTask.Changed() {
		if err := s.remote.AddUpdate(ctx, s.metaTask); err != nil {
			return err
		}
		s.logger.Debug("metadata updated",
			logging.Int("folders", len(s.payload.Folders)),
			logging.Int64("sync_point", watermark),
		)
	}
	return s.remote.FlushPending(ctx)
}

// refreshTouched re-reads list timestamps and the tasks of every list written
// to in this session, so pushed notes record the last_modified the service
// assigned. It reports whether the lists differ from the metadata snapshot
// only by this session's own writes.
func (s *session) refreshTouched(ctx context.Context) (bool, error) {
	lists, err := s.remote.FetchAllLists(ctx)
	if err != nil {
		return false, err
	}
	s.lists = make(map[string]entity.Snapshot, len(lists))
	s.listOrder = s.listOrder[:0]
	own := true
	for _, list := range lists {
		if list.Deleted || entity.IsMetaList(list) {
			continue
		}
		s.addList(list)
		if seen, ok := s.seen[list.ID]; ok && !s.touched[list.ID] && list.LastModified > seen {
			own = false
		}
	}

	touched := make([]string, 0, len(s.touched))
	for listID := range s.touched {
		if _, ok := s.lists[listID]; ok {
			touched = append(touched, listID)
		}
	}
	sort.Strings(touched)

	for _, listID := range touched {
		if !own && len(s.pushed) == 0 {
			break
		}
		tasks, err := s.remote.FetchList(ctx, listID)
		if err != nil {
			return false, err
		}
		if own && !s.ownChanges(listID, tasks) {
			own = false
		}
		for _, task := range tasks {
			noteID, ok := s.pushed[task.ID]
			if !ok {
				continue
			}
			if err := s.store.SetSyncID(ctx, noteID, task.LastModified); err != nil {
				return false, s.localErr("record sync id", err)
			}
			delete(s.pushed, task.ID)
		}
	}
	return own, nil
}

// ownChanges reports whether tasks, read back after the flush, differ from
// the list as fetched earlier only by tasks this session wrote or deleted.
func (s *session) ownChanges(listID string, tasks []entity.Snapshot) bool {
	known, fetched := s.listTasks[listID]
	if !fetched {
		return false
	}
	since := s.seen[listID]
	expected := make(map[string]bool, len(known))
	for _, task := range known {
		if task.Deleted || s.gone[task.ID] || s.tasks[task.ID].ListID != listID {
			continue
		}
		expected[task.ID] = true
	}
	for _, task := range tasks {
		if entity.IsMetaTask(task) {
			continue
		}
		if _, wrote := s.pushed[task.ID]; !wrote && (task.LastModified > since || !expected[task.ID]) {
			return false
		}
		delete(expected, task.ID)
	}
	return len(expected) == 0
}
