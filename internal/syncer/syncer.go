package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"notesync/internal/entity"
	"notesync/internal/logging"
	"notesync/internal/notes"
	"notesync/internal/remote"
	"notesync/internal/services"
	"notesync/internal/subrecord"
)

// Step names reported in logs and progress.
const (
	StepLogin       = "login"
	StepMetadata    = "metadata"
	StepFolders     = "folders"
	StepRemoteLists = "remote_lists"
	StepNotes       = "notes"
	StepCommit      = "commit"
)

// Store is the local side of a session.
type Store interface {
	subrecord.Store

	Get(ctx context.Context, id int64) (*notes.Note, error)
	Folders(ctx context.Context, includeDeleted bool) ([]notes.Note, error)
	NotesInFolder(ctx context.Context, folderID int64) ([]notes.Note, error)
	NoteByRemoteID(ctx context.Context, remoteID string) (*notes.Note, error)
	DataForNote(ctx context.Context, noteID int64) (*notes.Data, error)

	MaterializeFolder(ctx context.Context, name, remoteID string) (*notes.Note, error)
	MaterializeNote(ctx context.Context, folderID int64, remote notes.RemoteNote) (*notes.Note, error)
	ApplyRemoteNote(ctx context.Context, id, version, folderID int64, remote notes.RemoteNote) (bool, error)
	ApplyRemoteFolderName(ctx context.Context, id, version int64, name string) (bool, error)
	SetRemoteID(ctx context.Context, id int64, remoteID string) error
	SetSyncID(ctx context.Context, id, syncID int64) error
	ClearLocalModified(ctx context.Context, id, version int64) (bool, error)
	DeleteGuarded(ctx context.Context, id, version int64) (bool, error)
	PurgeNote(ctx context.Context, id int64) error
}

// Remote is the service side of a session.
type Remote interface {
	Login(ctx context.Context, creds remote.CredentialsProvider) bool
	LastLoginError() error
	DiscardPending() int
	FetchAllLists(ctx context.Context) ([]entity.Snapshot, error)
	FetchList(ctx context.Context, listID string) ([]entity.Snapshot, error)
	CreateTaskList(ctx context.Context, node *entity.Node) error
	CreateTask(ctx context.Context, node *entity.Node) error
	AddUpdate(ctx context.Context, node *entity.Node) error
	MoveTask(ctx context.Context, task *entity.Node, fromListID, toListID string) error
	DeleteEntity(ctx context.Context, node *entity.Node) error
	FlushPending(ctx context.Context) error
}

// ProgressFunc receives a human-readable message before each step.
type ProgressFunc func(step, message string)

// Syncer runs sync sessions. A Syncer is reusable but runs one session at a
// time; callers serialize Run.
type Syncer struct {
	store  Store
	remote Remote
	creds  remote.CredentialsProvider
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Syncer.
func New(store Store, client Remote, creds remote.CredentialsProvider, logger *slog.Logger) *Syncer {
	return &Syncer{
		store:  store,
		remote: client,
		creds:  creds,
		logger: logging.NewComponentLogger(logger, "syncer"),
		now:    time.Now,
	}
}

type step struct {
	name    string
	message string
	run     func(context.Context) error
}

// Run executes one session. A session id already on ctx is reused.
func (s *Syncer) Run(ctx context.Context, progress ProgressFunc) Result {
	sessionID, ok := services.SessionIDFromContext(ctx)
	if !ok {
		sessionID = uuid.NewString()
		ctx = services.WithSessionID(ctx, sessionID)
	}
	result := Result{SessionID: sessionID, StartedAt: s.now()}

	sess := newSession(ctx, s, progress)
	err := sess.run()

	result.FinishedAt = s.now()
	result.State = Classify(err)
	result.Err = err
	result.Stats = sess.stats
	s.logResult(ctx, result)
	return result
}

func (s *Syncer) logResult(ctx context.Context, result Result) {
	logger := logging.WithContext(ctx, s.logger)
	attrs := []logging.Attr{
		logging.String("state", result.State.String()),
		logging.Duration("duration", result.Duration()),
		logging.Int("remote_changes", result.Stats.RemoteChanges()),
		logging.Int("local_changes", result.Stats.LocalChanges()),
		logging.Int("deferred", result.Stats.Deferred),
		logging.Int("skipped_lists", result.Stats.SkippedLists),
	}
	switch result.State {
	case StateSuccess:
		logger.Info("sync finished", logging.Args(attrs...)...)
	case StateCancelled:
		logger.Info("sync cancelled", logging.Args(attrs...)...)
	case StateNetworkError:
		attrs = append(attrs,
			logging.Error(result.Err),
			logging.String(logging.FieldErrorHint, "check connectivity and credentials; the next sync retries"),
			logging.String(logging.FieldImpact, "local and remote notes may differ until the next sync"),
		)
		logging.WarnWithContext(logger, "sync failed", "sync_network_error", attrs...)
	default:
		attrs = append(attrs,
			logging.String("category", services.Category(result.Err)),
			logging.Error(result.Err),
			logging.String(logging.FieldErrorHint, "inspect the log for the failing step"),
		)
		logging.ErrorWithContext(logger, "sync failed", "sync_internal_error", attrs...)
	}
}

// session holds the state of one Run.
type session struct {
	*Syncer

	runCtx   context.Context
	progress ProgressFunc
	logger   *slog.Logger
	stepName string
	stats    Stats

	lists     map[string]entity.Snapshot
	listOrder []string
	metaList  *entity.Node
	metaTask  *entity.Node
	payload   entity.MetaPayload
	preMapped map[string]bool
	claimed   map[string]int64

	listTasks map[string][]entity.Snapshot
	tasks     map[string]entity.Snapshot
	tail      map[string]string
	handled   map[string]bool
	touched   map[string]bool
	pushed    map[string]int64
	gone      map[string]bool

	// seen holds list last_modified values as read by loadMetadata and
	// snapshotPoint the newest of them.
	seen          map[string]int64
	snapshotPoint int64
}

func newSession(ctx context.Context, s *Syncer, progress ProgressFunc) *session {
	return &session{
		Syncer:    s,
		runCtx:    ctx,
		progress:  progress,
		logger:    logging.WithContext(ctx, s.logger),
		lists:     make(map[string]entity.Snapshot),
		preMapped: make(map[string]bool),
		claimed:   make(map[string]int64),
		listTasks: make(map[string][]entity.Snapshot),
		tasks:     make(map[string]entity.Snapshot),
		tail:      make(map[string]string),
		handled:   make(map[string]bool),
		touched:   make(map[string]bool),
		pushed:    make(map[string]int64),
		gone:      make(map[string]bool),
		seen:      make(map[string]int64),
	}
}

func (s *session) run() error {
	steps := []step{
		{StepLogin, "Logging in to the task service", s.login},
		{StepMetadata, "Loading sync metadata", s.loadMetadata},
		{StepFolders, "Pushing local folder changes", s.syncLocalFolders},
		{StepRemoteLists, "Pulling remote lists", s.syncRemoteLists},
		{StepNotes, "Synchronizing notes", s.syncNotes},
		{StepCommit, "Saving sync metadata", s.commit},
	}
	// Steps run on a context that ignores cancellation so an in-flight call
	// always completes; checkpoints consult runCtx.
	work := context.WithoutCancel(s.runCtx)
	for _, st := range steps {
		s.stepName = st.name
		if err := s.checkpoint(); err != nil {
			return err
		}
		s.report(st.name, st.message)
		if err := st.run(services.WithStep(work, st.name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) report(stepName, message string) {
	s.logger.Info(message, logging.String(logging.FieldStep, stepName))
	if s.progress != nil {
		s.progress(stepName, message)
	}
}

func (s *session) checkpoint() error {
	if err := s.runCtx.Err(); err != nil {
		return services.Wrap(services.ErrCancelled, s.stepName, "", "sync cancelled", err)
	}
	return nil
}

func (s *session) localErr(operation string, err error) error {
	return services.Wrap(services.ErrLocalStore, s.stepName, operation, "", err)
}

func (s *session) deferItem(ctx context.Context, reason string, localID int64) {
	s.stats.Deferred++
	logging.WarnWithContext(logging.WithContext(ctx, s.logger), "item deferred to next sync",
		"sync_deferred",
		logging.Int64(logging.FieldNoteID, localID),
		logging.String("reason", reason),
		logging.String(logging.FieldImpact, "this item stays out of sync until the next session"),
	)
}

func (s *session) login(ctx context.Context) error {
	if dropped := s.remote.DiscardPending(); dropped > 0 {
		s.logger.Debug("dropped stale pending actions", logging.Int("actions", dropped))
	}
	if !s.remote.Login(ctx, s.creds) {
		cause := s.remote.LastLoginError()
		if cause == nil {
			cause = errors.New("service rejected the credentials")
		}
		return fmt.Errorf("%w: %w", ErrLoginFailed, cause)
	}
	return nil
}

func (s *session) loadMetadata(ctx context.Context) error {
	lists, err := s.remote.FetchAllLists(ctx)
	if err != nil {
		return err
	}
	for _, list := range lists {
		if list.Deleted {
			continue
		}
		if entity.IsMetaList(list) {
			if s.metaList == nil {
				node := entity.NewTaskList(0, entity.MetaListName)
				if err := node.ApplyRemoteSnapshot(list); err != nil {
					return services.Wrap(services.ErrProtocol, s.stepName, "load meta list", "", err)
				}
				s.metaList = node
			}
			continue
		}
		s.addList(list)
		s.seen[list.ID] = list.LastModified
		if list.LastModified > s.snapshotPoint {
			s.snapshotPoint = list.LastModified
		}
	}

	if s.metaList == nil {
		node := entity.NewTaskList(0, entity.MetaListName)
		if err := s.remote.CreateTaskList(ctx, node); err != nil {
			return err
		}
		s.metaList = node
		s.logger.Info("created metadata list", logging.String(logging.FieldRemoteID, node.RemoteID))
	} else {
		tasks, err := s.remote.FetchList(ctx, s.metaList.RemoteID)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			if task.Deleted || !entity.IsMetaTask(task) {
				continue
			}
			node := entity.NewMeta(s.metaList.RemoteID, "")
			if err := node.ApplyRemoteSnapshot(task); err != nil {
				return services.Wrap(services.ErrProtocol, s.stepName, "load meta task", "", err)
			}
			s.metaTask = node
			break
		}
	}

	s.payload = entity.NewMetaPayload()
	if s.metaTask != nil {
		payload, err := entity.DecodeMetaPayload(s.metaTask.Notes)
		if err != nil {
			logging.WarnWithContext(s.logger, "metadata payload unreadable; starting from an empty mapping",
				"meta_payload_invalid",
				logging.Error(err),
				logging.String(logging.FieldImpact, "folders are re-matched to lists by name"),
			)
		} else {
			s.payload = payload
		}
	} else {
		encoded, err := s.payload.Encode()
		if err != nil {
			return services.Wrap(services.ErrProtocol, s.stepName, "encode metadata", "", err)
		}
		node := entity.NewMeta(s.metaList.RemoteID, encoded)
		if err := s.remote.CreateTask(ctx, node); err != nil {
			return err
		}
		s.metaTask = node
	}

	return s.validateMapping(ctx)
}

func (s *session) addList(list entity.Snapshot) {
	if _, ok := s.lists[list.ID]; !ok {
		s.listOrder = append(s.listOrder, list.ID)
	}
	s.lists[list.ID] = list
}

// validateMapping drops bindings whose folder is gone or bound elsewhere.
func (s *session) validateMapping(ctx context.Context) error {
	for _, folderID := range s.payload.FolderIDs() {
		listID, _ := s.payload.ListFor(folderID)
		folder, err := s.store.Get(ctx, folderID)
		if err != nil {
			return s.localErr("load mapped folder", err)
		}
		if folder == nil || !folder.IsFolder() || (folder.RemoteID != "" && folder.RemoteID != listID) {
			s.payload.Unbind(folderID)
			s.logger.Debug("dropped stale folder mapping",
				logging.Int64(logging.FieldNoteID, folderID),
				logging.String(logging.FieldRemoteID, listID),
			)
			continue
		}
		s.preMapped[listID] = true
	}
	return nil
}
