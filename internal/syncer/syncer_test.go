package syncer_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"notesync/internal/entity"
	"notesync/internal/logging"
	"notesync/internal/notes"
	"notesync/internal/remote"
	"notesync/internal/services"
	"notesync/internal/syncer"
	"notesync/internal/testsupport"
)

type harness struct {
	fake   *testsupport.FakeRemote
	store  *notes.Store
	client *remote.Client
	creds  remote.CredentialsProvider
	syncer *syncer.Syncer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := testsupport.NewFakeRemote(t)
	cfg := testsupport.NewConfig(t, testsupport.WithRemote(fake))
	store := testsupport.MustOpenStore(t, cfg)
	client, err := remote.New(remote.Config{
		BaseURL:        fake.BaseURL(),
		PrimaryDomains: []string{"gmail.com"},
		HTTPClient:     fake.Client(),
	})
	if err != nil {
		t.Fatalf("remote.New returned error: %v", err)
	}
	creds := remote.NewStaticCredentials(cfg.Remote.Account, fake.Token())
	return &harness{
		fake:   fake,
		store:  store,
		client: client,
		creds:  creds,
		syncer: syncer.New(store, client, creds, logging.NewNop()),
	}
}

func (h *harness) run(t *testing.T) syncer.Result {
	t.Helper()
	return h.runWith(t, nil)
}

func (h *harness) runWith(t *testing.T, progress syncer.ProgressFunc) syncer.Result {
	t.Helper()
	result := h.syncer.Run(context.Background(), progress)
	if result.State != syncer.StateSuccess {
		t.Fatalf("sync finished with %s: %v", result.State, result.Err)
	}
	return result
}

// interleavedStore lands a local edit right before the first remote note is
// applied, the way the interactive writer can between a session's read and
// its guarded write.
type interleavedStore struct {
	*notes.Store
	once sync.Once
	edit func()
}

func (s *interleavedStore) ApplyRemoteNote(ctx context.Context, id, version, folderID int64, rn notes.RemoteNote) (bool, error) {
	s.once.Do(s.edit)
	return s.Store.ApplyRemoteNote(ctx, id, version, folderID, rn)
}

// contentCreates returns create actions outside the metadata list.
func contentCreates(actions []entity.Action) []entity.Action {
	var out []entity.Action
	for _, action := range actions {
		if action.ActionType != entity.ActionCreate || action.EntityDelta == nil || action.EntityDelta.Name == nil {
			continue
		}
		name := *action.EntityDelta.Name
		if name == entity.MetaListName || name == entity.MetaNoteName {
			continue
		}
		out = append(out, action)
	}
	return out
}

func metaPayload(t *testing.T, fake *testsupport.FakeRemote) entity.MetaPayload {
	t.Helper()
	list, ok := fake.ListByName(entity.MetaListName)
	if !ok {
		t.Fatalf("metadata list missing")
	}
	for _, task := range fake.Tasks(list.ID) {
		if task.Name != entity.MetaNoteName {
			continue
		}
		payload, err := entity.DecodeMetaPayload(task.Notes)
		if err != nil {
			t.Fatalf("DecodeMetaPayload returned error: %v", err)
		}
		return payload
	}
	t.Fatalf("meta task missing")
	return entity.MetaPayload{}
}

func TestFirstSyncPushesLocalFolderAndNote(t *testing.T) {
	h := newHarness(t)
	folder := testsupport.NewFolder(t, h.store, "Groceries")
	note := testsupport.NewNote(t, h.store, folder.ID, "Milk", "2 litres")

	result := h.run(t)

	creates := contentCreates(h.fake.Actions())
	if len(creates) != 2 {
		t.Fatalf("expected 2 content creates, got %d: %+v", len(creates), creates)
	}
	if creates[0].EntityDelta.EntityType != entity.EntityGroup || *creates[0].EntityDelta.Name != "Groceries" {
		t.Fatalf("first create should be the Groceries list, got %+v", creates[0])
	}
	if creates[1].EntityDelta.EntityType != entity.EntityTask || *creates[1].EntityDelta.Name != "Milk" {
		t.Fatalf("second create should be the Milk task, got %+v", creates[1])
	}

	list, ok := h.fake.ListByName("Groceries")
	if !ok {
		t.Fatalf("Groceries list not created")
	}
	if creates[1].ListID != list.ID {
		t.Fatalf("task created in %q, want %q", creates[1].ListID, list.ID)
	}
	if result.Stats.RemoteCreates != 2 {
		t.Fatalf("expected 2 remote creates, got %+v", result.Stats)
	}

	synced := testsupport.MustGet(t, h.store, note.ID)
	if synced.RemoteID == "" || synced.LocalModified {
		t.Fatalf("note not marked synced: %+v", synced)
	}
	task, ok := h.fake.Task(synced.RemoteID)
	if !ok {
		t.Fatalf("task %q missing remotely", synced.RemoteID)
	}
	if synced.SyncID != task.LastModified {
		t.Fatalf("sync id %d, want %d", synced.SyncID, task.LastModified)
	}
	if body := entity.DecodeContent(task.Notes).Body; body != "2 litres" {
		t.Fatalf("remote body = %q", body)
	}
	if listID, _ := metaPayload(t, h.fake).ListFor(folder.ID); listID != list.ID {
		t.Fatalf("mapping for folder %d = %q, want %q", folder.ID, listID, list.ID)
	}
}

func TestFirstSyncMaterializesRemoteLists(t *testing.T) {
	h := newHarness(t)
	listID := h.fake.AddList("Work")
	taskID := h.fake.AddTask(listID, "Plan",
		`{"body":"ship it","data":[{"mime_type":"call_note","content":"555-0100","data1":3}]}`)

	result := h.run(t)

	if len(h.fake.MutatingActions()) == 0 {
		t.Fatalf("expected metadata writes")
	}
	if creates := contentCreates(h.fake.Actions()); len(creates) != 0 {
		t.Fatalf("expected no content creates, got %+v", creates)
	}
	if result.Stats.LocalCreates != 2 {
		t.Fatalf("expected folder and note materialized, got %+v", result.Stats)
	}

	folder, err := h.store.NoteByRemoteID(context.Background(), listID)
	if err != nil || folder == nil {
		t.Fatalf("folder for %q not found: %v", listID, err)
	}
	if folder.Title != "Work" || !folder.IsFolder() || folder.LocalModified {
		t.Fatalf("unexpected folder: %+v", folder)
	}
	note, err := h.store.NoteByRemoteID(context.Background(), taskID)
	if err != nil || note == nil {
		t.Fatalf("note for %q not found: %v", taskID, err)
	}
	if note.ParentID != folder.ID || note.Title != "Plan" || note.Body != "ship it" || note.LocalModified {
		t.Fatalf("unexpected note: %+v", note)
	}
	task, _ := h.fake.Task(taskID)
	if note.SyncID != task.LastModified {
		t.Fatalf("sync id %d, want %d", note.SyncID, task.LastModified)
	}
	data, err := h.store.DataForNote(context.Background(), note.ID)
	if err != nil || data == nil {
		t.Fatalf("sub-record missing: %v", err)
	}
	if data.MimeType != entity.MimeCallNote || data.Content != "555-0100" || data.Data1 != 3 {
		t.Fatalf("unexpected sub-record: %+v", data)
	}

	payload := metaPayload(t, h.fake)
	if mapped, _ := payload.ListFor(folder.ID); mapped != listID {
		t.Fatalf("mapping for folder %d = %q, want %q", folder.ID, mapped, listID)
	}
	if payload.SyncPoint < task.LastModified {
		t.Fatalf("sync point %d behind task %d", payload.SyncPoint, task.LastModified)
	}
}

func TestLoginFailureEndsWithNetworkError(t *testing.T) {
	h := newHarness(t)
	h.fake.RejectLogins(true)
	testsupport.NewFolder(t, h.store, "Groceries")

	var steps []string
	result := h.syncer.Run(context.Background(), func(step, _ string) {
		steps = append(steps, step)
	})

	if result.State != syncer.StateNetworkError {
		t.Fatalf("expected NETWORK_ERROR, got %s (%v)", result.State, result.Err)
	}
	if !errors.Is(result.Err, syncer.ErrLoginFailed) {
		t.Fatalf("expected ErrLoginFailed, got %v", result.Err)
	}
	if len(steps) != 1 || steps[0] != syncer.StepLogin {
		t.Fatalf("expected only the login step, got %v", steps)
	}
	if actions := h.fake.Actions(); len(actions) != 0 {
		t.Fatalf("expected no actions, got %+v", actions)
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	folder := testsupport.NewFolder(t, h.store, "Groceries")
	testsupport.NewNote(t, h.store, folder.ID, "Milk", "2 litres")
	listID := h.fake.AddList("Work")
	h.fake.AddTask(listID, "Plan", "plain text body")

	h.run(t)
	h.fake.ResetActions()

	result := h.run(t)
	if actions := h.fake.MutatingActions(); len(actions) != 0 {
		t.Fatalf("expected no mutating actions, got %+v", actions)
	}
	if result.Stats.RemoteChanges() != 0 || result.Stats.LocalChanges() != 0 {
		t.Fatalf("expected no changes, got %+v", result.Stats)
	}
	if result.Stats.SkippedLists != 2 {
		t.Fatalf("expected both lists skipped, got %+v", result.Stats)
	}
}

func TestRemoteEditDuringCommitIsPulledNextRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	folder := testsupport.NewFolder(t, h.store, "Groceries")
	milk := testsupport.NewNote(t, h.store, folder.ID, "Milk", "2 litres")
	listID := h.fake.AddList("Work")
	taskID := h.fake.AddTask(listID, "Plan", `{"body":"draft"}`)
	h.run(t)

	if err := h.store.EditNote(ctx, milk.ID, "Oat milk", "1 litre"); err != nil {
		t.Fatalf("EditNote returned error: %v", err)
	}
	result := h.runWith(t, func(step, _ string) {
		if step == syncer.StepCommit {
			h.fake.EditTask(taskID, "Plan v2", `{"body":"revised"}`)
		}
	})
	if result.Stats.SkippedLists != 1 || result.Stats.RemoteUpdates != 1 {
		t.Fatalf("expected Work skipped and Milk pushed, got %+v", result.Stats)
	}

	edited, _ := h.fake.Task(taskID)
	if payload := metaPayload(t, h.fake); payload.SyncPoint >= edited.LastModified {
		t.Fatalf("sync point %d covers edit at %d made during the session", payload.SyncPoint, edited.LastModified)
	}

	h.run(t)
	plan, err := h.store.NoteByRemoteID(ctx, taskID)
	if err != nil || plan == nil {
		t.Fatalf("note for %q not found: %v", taskID, err)
	}
	if plan.Title != "Plan v2" || plan.Body != "revised" {
		t.Fatalf("remote edit not pulled: %+v", plan)
	}
}

func TestLocalEditDuringPullIsDeferredThenPushed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	folder := testsupport.NewFolder(t, h.store, "Groceries")
	note := testsupport.NewNote(t, h.store, folder.ID, "Milk", "2 litres")
	h.run(t)

	synced := testsupport.MustGet(t, h.store, note.ID)
	h.fake.EditTask(synced.RemoteID, "Bread", `{"body":"rye"}`)
	store := &interleavedStore{Store: h.store, edit: func() {
		if err := h.store.EditNote(ctx, note.ID, "Oat milk", "1 litre"); err != nil {
			t.Errorf("EditNote returned error: %v", err)
		}
	}}

	result := syncer.New(store, h.client, h.creds, logging.NewNop()).Run(ctx, nil)
	if result.State != syncer.StateSuccess {
		t.Fatalf("sync finished with %s: %v", result.State, result.Err)
	}
	if result.Stats.Deferred != 1 || result.Stats.LocalUpdates != 0 {
		t.Fatalf("expected the pull deferred, got %+v", result.Stats)
	}
	local := testsupport.MustGet(t, h.store, note.ID)
	if local.Title != "Oat milk" || !local.LocalModified {
		t.Fatalf("local edit overwritten: %+v", local)
	}

	h.run(t)
	if task, _ := h.fake.Task(synced.RemoteID); task.Name != "Oat milk" {
		t.Fatalf("local edit not pushed: %+v", task)
	}
	if testsupport.MustGet(t, h.store, note.ID).LocalModified {
		t.Fatalf("note still marked modified after push")
	}

	h.fake.ResetActions()
	h.run(t)
	if actions := h.fake.MutatingActions(); len(actions) != 0 {
		t.Fatalf("expected convergence, got %+v", actions)
	}
}

func TestLocalEditIsPushed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	folder := testsupport.NewFolder(t, h.store, "Groceries")
	note := testsupport.NewNote(t, h.store, folder.ID, "Milk", "2 litres")
	h.run(t)

	if err := h.store.EditNote(ctx, note.ID, "Oat milk", "1 litre"); err != nil {
		t.Fatalf("EditNote returned error: %v", err)
	}
	if err := h.store.SetNoteData(ctx, note.ID, entity.MimeCallNote, "555-0199", 1, "mobile"); err != nil {
		t.Fatalf("SetNoteData returned error: %v", err)
	}
	result := h.run(t)

	if result.Stats.RemoteUpdates != 1 {
		t.Fatalf("expected one remote update, got %+v", result.Stats)
	}
	synced := testsupport.MustGet(t, h.store, note.ID)
	task, _ := h.fake.Task(synced.RemoteID)
	if task.Name != "Oat milk" {
		t.Fatalf("remote name = %q", task.Name)
	}
	blob := entity.DecodeContent(task.Notes)
	if blob.Body != "1 litre" || len(blob.Data) != 1 || blob.Data[0].Data3 != "mobile" {
		t.Fatalf("unexpected remote content: %+v", blob)
	}
	if synced.LocalModified || synced.SyncID != task.LastModified {
		t.Fatalf("note not settled after push: %+v", synced)
	}

	h.fake.ResetActions()
	h.run(t)
	if actions := h.fake.MutatingActions(); len(actions) != 0 {
		t.Fatalf("expected no mutating actions after push, got %+v", actions)
	}
}

func TestLocalPushKeepsRemoteCompletion(t *testing.T) {
	h := newHarness(t)
	folder := testsupport.NewFolder(t, h.store, "Groceries")
	note := testsupport.NewNote(t, h.store, folder.ID, "Milk", "2 litres")
	h.run(t)

	remoteID := testsupport.MustGet(t, h.store, note.ID).RemoteID
	h.fake.CompleteTask(remoteID)
	if err := h.store.EditNote(context.Background(), note.ID, "Milk", "3 litres"); err != nil {
		t.Fatalf("EditNote returned error: %v", err)
	}
	h.run(t)

	task, _ := h.fake.Task(remoteID)
	if !task.Completed {
		t.Fatalf("push cleared remote completion: %+v", task)
	}
	if body := entity.DecodeContent(task.Notes).Body; body != "3 litres" {
		t.Fatalf("remote body = %q, want pushed edit", body)
	}
}

func TestRemoteEditIsPulled(t *testing.T) {
	h := newHarness(t)
	folder := testsupport.NewFolder(t, h.store, "Groceries")
	note := testsupport.NewNote(t, h.store, folder.ID, "Milk", "2 litres")
	h.run(t)

	synced := testsupport.MustGet(t, h.store, note.ID)
	h.fake.EditTask(synced.RemoteID, "Bread", `{"body":"rye"}`)
	result := h.run(t)

	if result.Stats.LocalUpdates != 1 || result.Stats.RemoteChanges() != 0 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}
	pulled := testsupport.MustGet(t, h.store, note.ID)
	if pulled.Title != "Bread" || pulled.Body != "rye" || pulled.LocalModified {
		t.Fatalf("unexpected pulled note: %+v", pulled)
	}
	if pulled.Version != synced.Version {
		t.Fatalf("engine write changed version %d -> %d", synced.Version, pulled.Version)
	}
}

func TestConcurrentEditsKeepNewerSide(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	folder := testsupport.NewFolder(t, h.store, "Groceries")
	note := testsupport.NewNote(t, h.store, folder.ID, "Milk", "2 litres")
	h.run(t)

	synced := testsupport.MustGet(t, h.store, note.ID)
	// The fake clock sits in 2023, so the local edit is always newer.
	h.fake.EditTask(synced.RemoteID, "Remote title", "remote body")
	if err := h.store.EditNote(ctx, note.ID, "Local title", "local body"); err != nil {
		t.Fatalf("EditNote returned error: %v", err)
	}
	h.run(t)

	task, _ := h.fake.Task(synced.RemoteID)
	if task.Name != "Local title" || entity.DecodeContent(task.Notes).Body != "local body" {
		t.Fatalf("local edit lost: %+v", task)
	}
}

func TestDeletesPropagate(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		h := newHarness(t)
		folder := testsupport.NewFolder(t, h.store, "Groceries")
		note := testsupport.NewNote(t, h.store, folder.ID, "Milk", "2 litres")
		h.run(t)
		remoteID := testsupport.MustGet(t, h.store, note.ID).RemoteID

		if err := h.store.DeleteNote(context.Background(), note.ID); err != nil {
			t.Fatalf("DeleteNote returned error: %v", err)
		}
		result := h.run(t)

		if result.Stats.RemoteDeletes != 1 {
			t.Fatalf("expected one remote delete, got %+v", result.Stats)
		}
		if task, _ := h.fake.Task(remoteID); !task.Deleted {
			t.Fatalf("remote task not deleted: %+v", task)
		}
		if row, _ := h.store.Get(context.Background(), note.ID); row != nil {
			t.Fatalf("local note not purged: %+v", row)
		}
	})

	t.Run("remote", func(t *testing.T) {
		h := newHarness(t)
		folder := testsupport.NewFolder(t, h.store, "Groceries")
		note := testsupport.NewNote(t, h.store, folder.ID, "Milk", "2 litres")
		h.run(t)

		h.fake.DeleteRemote(testsupport.MustGet(t, h.store, note.ID).RemoteID)
		result := h.run(t)

		if result.Stats.LocalDeletes != 1 {
			t.Fatalf("expected one local delete, got %+v", result.Stats)
		}
		if row, _ := h.store.Get(context.Background(), note.ID); row != nil {
			t.Fatalf("local note not removed: %+v", row)
		}
	})

	t.Run("folder", func(t *testing.T) {
		h := newHarness(t)
		folder := testsupport.NewFolder(t, h.store, "Groceries")
		testsupport.NewNote(t, h.store, folder.ID, "Milk", "2 litres")
		h.run(t)

		if err := h.store.DeleteFolder(context.Background(), folder.ID); err != nil {
			t.Fatalf("DeleteFolder returned error: %v", err)
		}
		h.run(t)

		if _, ok := h.fake.ListByName("Groceries"); ok {
			t.Fatalf("remote list still live")
		}
		if row, _ := h.store.Get(context.Background(), folder.ID); row != nil {
			t.Fatalf("local folder not purged: %+v", row)
		}
		if _, ok := metaPayload(t, h.fake).ListFor(folder.ID); ok {
			t.Fatalf("mapping for deleted folder kept")
		}
	})
}

func TestRemovedListKeepsLocallyEditedNotes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	folder := testsupport.NewFolder(t, h.store, "Groceries")
	milk := testsupport.NewNote(t, h.store, folder.ID, "Milk", "2 litres")
	bread := testsupport.NewNote(t, h.store, folder.ID, "Bread", "rye")
	h.run(t)

	listID, ok := metaPayload(t, h.fake).ListFor(folder.ID)
	if !ok {
		t.Fatalf("folder %d not mapped", folder.ID)
	}
	h.fake.DeleteRemote(listID)
	result := h.runWith(t, func(step, _ string) {
		if step == syncer.StepFolders {
			if err := h.store.EditNote(ctx, milk.ID, "Oat milk", "1 litre"); err != nil {
				t.Errorf("EditNote returned error: %v", err)
			}
		}
	})

	if result.Stats.Deferred == 0 {
		t.Fatalf("expected the folder deferred, got %+v", result.Stats)
	}
	if got := testsupport.MustGet(t, h.store, milk.ID); got.Title != "Oat milk" || !got.LocalModified {
		t.Fatalf("edited note lost: %+v", got)
	}
	if got, _ := h.store.Get(ctx, bread.ID); got != nil {
		t.Fatalf("unedited note kept: %+v", got)
	}
	testsupport.MustGet(t, h.store, folder.ID)
	if _, mapped := metaPayload(t, h.fake).ListFor(folder.ID); mapped {
		t.Fatalf("mapping to removed list kept")
	}

	h.run(t)
	list, ok := h.fake.ListByName("Groceries")
	if !ok || list.ID == listID {
		t.Fatalf("folder not pushed as a new list: %+v", list)
	}
	tasks := h.fake.Tasks(list.ID)
	if len(tasks) != 1 || tasks[0].Name != "Oat milk" {
		t.Fatalf("unexpected tasks in new list: %+v", tasks)
	}
	recreated := testsupport.MustGet(t, h.store, milk.ID)
	if recreated.RemoteID != tasks[0].ID || recreated.LocalModified {
		t.Fatalf("note not linked to recreated task: %+v", recreated)
	}
}

func TestLocalMoveIsPushed(t *testing.T) {
	h := newHarness(t)
	from := testsupport.NewFolder(t, h.store, "Inbox")
	to := testsupport.NewFolder(t, h.store, "Archive")
	note := testsupport.NewNote(t, h.store, from.ID, "Receipt", "paid")
	h.run(t)

	if err := h.store.MoveNote(context.Background(), note.ID, to.ID); err != nil {
		t.Fatalf("MoveNote returned error: %v", err)
	}
	result := h.run(t)

	if result.Stats.RemoteMoves != 1 || result.Stats.RemoteUpdates != 0 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}
	archive, _ := h.fake.ListByName("Archive")
	task, _ := h.fake.Task(testsupport.MustGet(t, h.store, note.ID).RemoteID)
	if task.ListID != archive.ID {
		t.Fatalf("task in %q, want %q", task.ListID, archive.ID)
	}
}

func TestFolderBindsToListWithSameName(t *testing.T) {
	h := newHarness(t)
	listID := h.fake.AddList("groceries")
	folder := testsupport.NewFolder(t, h.store, "Groceries")

	result := h.run(t)

	if creates := contentCreates(h.fake.Actions()); len(creates) != 0 {
		t.Fatalf("expected reuse of the existing list, got %+v", creates)
	}
	if result.Stats.LocalCreates != 0 {
		t.Fatalf("expected no materialized folder, got %+v", result.Stats)
	}
	bound := testsupport.MustGet(t, h.store, folder.ID)
	if bound.RemoteID != listID {
		t.Fatalf("folder bound to %q, want %q", bound.RemoteID, listID)
	}
	if list, ok := h.fake.ListByName("Groceries"); !ok || list.ID != listID {
		t.Fatalf("remote list not renamed to the local name")
	}
}

func TestFolderRenameIsPushed(t *testing.T) {
	h := newHarness(t)
	folder := testsupport.NewFolder(t, h.store, "Groceries")
	h.run(t)

	if err := h.store.RenameFolder(context.Background(), folder.ID, "Shopping"); err != nil {
		t.Fatalf("RenameFolder returned error: %v", err)
	}
	result := h.run(t)

	if result.Stats.RemoteUpdates != 1 {
		t.Fatalf("expected one remote update, got %+v", result.Stats)
	}
	if _, ok := h.fake.ListByName("Shopping"); !ok {
		t.Fatalf("remote list not renamed")
	}
	if testsupport.MustGet(t, h.store, folder.ID).LocalModified {
		t.Fatalf("folder still marked modified")
	}
}

func TestCancellationStopsAtCheckpoint(t *testing.T) {
	h := newHarness(t)
	testsupport.NewFolder(t, h.store, "Groceries")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := h.syncer.Run(ctx, func(step, _ string) {
		if step == syncer.StepFolders {
			cancel()
		}
	})

	if result.State != syncer.StateCancelled {
		t.Fatalf("expected CANCELLED, got %s (%v)", result.State, result.Err)
	}
	if _, ok := h.fake.ListByName("Groceries"); ok {
		t.Fatalf("folder pushed after cancellation")
	}
}

func TestCancelledBeforeStart(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := h.syncer.Run(ctx, nil)
	if result.State != syncer.StateCancelled {
		t.Fatalf("expected CANCELLED, got %s", result.State)
	}
	if h.fake.LoginAttempts() != 0 {
		t.Fatalf("expected no login, got %d attempts", h.fake.LoginAttempts())
	}
}

func TestServiceErrorsMapToStates(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   syncer.State
		marker error
	}{
		{name: "unavailable", status: http.StatusServiceUnavailable, want: syncer.StateNetworkError, marker: services.ErrTransport},
		{name: "throttled", status: http.StatusTooManyRequests, want: syncer.StateNetworkError, marker: services.ErrTransport},
		{name: "bad request", status: http.StatusBadRequest, want: syncer.StateInternalError, marker: services.ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.fake.FailNextPost(tt.status)

			result := h.syncer.Run(context.Background(), nil)
			if result.State != tt.want {
				t.Fatalf("state = %s, want %s (%v)", result.State, tt.want, result.Err)
			}
			if !errors.Is(result.Err, tt.marker) {
				t.Fatalf("expected %v in %v", tt.marker, result.Err)
			}
		})
	}
}

func TestRunReusesSessionIDFromContext(t *testing.T) {
	h := newHarness(t)
	ctx := services.WithSessionID(context.Background(), "session-42")

	result := h.syncer.Run(ctx, nil)
	if result.SessionID != "session-42" {
		t.Fatalf("session id = %q", result.SessionID)
	}
	if result.FinishedAt.Before(result.StartedAt) {
		t.Fatalf("finished before start: %+v", result)
	}
}
