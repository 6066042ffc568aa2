package testsupport

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"notesync/internal/entity"
)

const fakeSessionCookie = "GTL"

type fakeEntity struct {
	snapshot entity.Snapshot
	tasks    []*fakeEntity
}

// FakeRemote is an in-memory task-list service speaking the batch protocol
// over httptest. Lists and tasks live in memory; every mutation advances a
// logical clock that feeds last_modified.
type FakeRemote struct {
	server *httptest.Server

	mu              sync.Mutex
	token           string
	clientVersion   int64
	clock           int64
	nextID          int
	lists           []*fakeEntity
	actions         []entity.Action
	batches         [][]entity.Action
	loginAttempts   int
	loginPaths      []string
	rejectLogin     bool
	primaryDisabled bool
	failStatus      []int
	compression     string
	sessions        map[string]bool
}

// NewFakeRemote starts a fake service and registers its shutdown.
func NewFakeRemote(t testing.TB) *FakeRemote {
	t.Helper()

	fake := &FakeRemote{
		token:         "test-token",
		clientVersion: 1337,
		clock:         1_700_000_000_000,
		sessions:      make(map[string]bool),
	}
	fake.server = httptest.NewServer(http.HandlerFunc(fake.handle))
	t.Cleanup(fake.server.Close)
	return fake
}

// BaseURL returns the service root, ending in "/tasks/".
func (f *FakeRemote) BaseURL() string { return f.server.URL + "/tasks/" }

// Client returns an HTTP client wired to the test server.
func (f *FakeRemote) Client() *http.Client { return f.server.Client() }

// Token returns the token the service currently accepts.
func (f *FakeRemote) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

// SetToken rotates the accepted token and drops existing sessions.
func (f *FakeRemote) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
	f.sessions = make(map[string]bool)
}

// RejectLogins makes every login attempt fail.
func (f *FakeRemote) RejectLogins(reject bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectLogin = reject
}

// DisablePrimary makes the primary endpoint reject logins so only the
// custom-domain endpoint works.
func (f *FakeRemote) DisablePrimary(disabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.primaryDisabled = disabled
}

// FailNextPost queues HTTP status codes returned by upcoming batch posts.
func (f *FakeRemote) FailNextPost(statuses ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStatus = append(f.failStatus, statuses...)
}

// SetCompression makes responses use "gzip" or "deflate" content encoding.
func (f *FakeRemote) SetCompression(encoding string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compression = encoding
}

// LoginAttempts returns how many login GETs carried a token.
func (f *FakeRemote) LoginAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginAttempts
}

// LoginPaths returns the paths of every login GET.
func (f *FakeRemote) LoginPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.loginPaths...)
}

// Actions returns every action received, in order.
func (f *FakeRemote) Actions() []entity.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.Action(nil), f.actions...)
}

// Batches returns every posted batch.
func (f *FakeRemote) Batches() [][]entity.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]entity.Action, len(f.batches))
	for i, batch := range f.batches {
		out[i] = append([]entity.Action(nil), batch...)
	}
	return out
}

// ResetActions forgets recorded actions and batches.
func (f *FakeRemote) ResetActions() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = nil
	f.batches = nil
}

// MutatingActions returns recorded create, update and move actions.
func (f *FakeRemote) MutatingActions() []entity.Action {
	var out []entity.Action
	for _, action := range f.Actions() {
		if action.ActionType != entity.ActionGetAll {
			out = append(out, action)
		}
	}
	return out
}

// AddList creates a list directly on the service.
func (f *FakeRemote) AddList(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := &fakeEntity{snapshot: entity.Snapshot{
		ID:           f.newID("list"),
		Name:         name,
		LastModified: f.tick(),
		Type:         entity.EntityGroup,
	}}
	f.lists = append(f.lists, list)
	return list.snapshot.ID
}

// AddTask creates a task directly on the service.
func (f *FakeRemote) AddTask(listID, name, notes string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.findList(listID)
	if list == nil {
		panic(fmt.Sprintf("fake remote: unknown list %q", listID))
	}
	task := &fakeEntity{snapshot: entity.Snapshot{
		ID:           f.newID("task"),
		Name:         name,
		Notes:        notes,
		LastModified: f.tick(),
		ListID:       listID,
		ParentID:     listID,
		Type:         entity.EntityTask,
	}}
	list.tasks = append(list.tasks, task)
	list.snapshot.LastModified = task.snapshot.LastModified
	return task.snapshot.ID
}

// EditTask changes a task directly on the service.
func (f *FakeRemote) EditTask(id, name, notes string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, list := f.findTask(id)
	if task == nil {
		panic(fmt.Sprintf("fake remote: unknown task %q", id))
	}
	task.snapshot.Name = name
	task.snapshot.Notes = notes
	task.snapshot.LastModified = f.tick()
	list.snapshot.LastModified = task.snapshot.LastModified
}

// CompleteTask marks a task completed directly on the service.
func (f *FakeRemote) CompleteTask(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, list := f.findTask(id)
	if task == nil {
		panic(fmt.Sprintf("fake remote: unknown task %q", id))
	}
	task.snapshot.Completed = true
	task.snapshot.LastModified = f.tick()
	list.snapshot.LastModified = task.snapshot.LastModified
}

// DeleteRemote flags a list or task as deleted directly on the service.
func (f *FakeRemote) DeleteRemote(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markDeleted(id)
}

// Lists returns live list snapshots.
func (f *FakeRemote) Lists() []entity.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liveLists()
}

// ListByName returns the first live list with the given name.
func (f *FakeRemote) ListByName(name string) (entity.Snapshot, bool) {
	for _, list := range f.Lists() {
		if list.Name == name {
			return list, true
		}
	}
	return entity.Snapshot{}, false
}

// Tasks returns live task snapshots of a list.
func (f *FakeRemote) Tasks(listID string) []entity.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liveTasks(listID)
}

// Task returns a task snapshot by id, deleted ones included.
func (f *FakeRemote) Task(id string) (entity.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, _ := f.findTask(id)
	if task == nil {
		return entity.Snapshot{}, false
	}
	return task.snapshot, true
}

func (f *FakeRemote) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/tasks/")
	primary := true
	if strings.HasPrefix(path, "a/") {
		parts := strings.SplitN(path, "/", 3)
		if len(parts) < 3 {
			http.NotFound(w, r)
			return
		}
		path = parts[2]
		primary = false
	}

	switch {
	case path == "ig" && r.Method == http.MethodGet:
		f.handlePage(w, r, primary)
	case path == "r/ig" && r.Method == http.MethodPost:
		f.handleBatch(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeRemote) handlePage(w http.ResponseWriter, r *http.Request, primary bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if token := r.URL.Query().Get("auth"); token != "" {
		f.loginAttempts++
		f.loginPaths = append(f.loginPaths, r.URL.Path)
		if f.rejectLogin || token != f.token || (primary && f.primaryDisabled) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		session := f.newID("session")
		f.sessions[session] = true
		http.SetCookie(w, &http.Cookie{Name: fakeSessionCookie, Value: session, Path: "/"})
	} else if !f.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	blob := entity.SetupBlob{V: f.clientVersion}
	blob.T.Lists = f.liveLists()
	raw, _ := json.Marshal(blob)
	page := fmt.Sprintf(
		"<html><head><script>var a=1;</script></head><body><script type=\"text/javascript\">try{_setup(%s)}catch(e){}</script></body></html>",
		raw,
	)
	f.write(w, r, "text/html; charset=utf-8", []byte(page))
}

func (f *FakeRemote) handleBatch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if len(f.failStatus) > 0 {
		status := f.failStatus[0]
		f.failStatus = f.failStatus[1:]
		http.Error(w, http.StatusText(status), status)
		return
	}
	if r.Header.Get("AT") != "1" {
		http.Error(w, "missing AT header", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req entity.BatchRequest
	if err := json.Unmarshal([]byte(r.PostForm.Get("r")), &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ClientVersion != f.clientVersion {
		http.Error(w, "stale client version", http.StatusBadRequest)
		return
	}

	f.batches = append(f.batches, req.ActionList)
	resp := entity.BatchResponse{Results: []entity.Result{}}
	for _, action := range req.ActionList {
		f.actions = append(f.actions, action)
		result, tasks, err := f.apply(action)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp.Results = append(resp.Results, result)
		if action.ActionType == entity.ActionGetAll {
			resp.Tasks = tasks
		}
	}
	raw, _ := json.Marshal(resp)
	f.write(w, r, "application/json", raw)
}

func (f *FakeRemote) apply(action entity.Action) (entity.Result, []entity.Snapshot, error) {
	result := entity.Result{ActionID: action.ActionID}
	switch action.ActionType {
	case entity.ActionGetAll:
		if f.findList(action.ListID) == nil {
			return result, nil, fmt.Errorf("unknown list %q", action.ListID)
		}
		return result, f.liveTasks(action.ListID), nil
	case entity.ActionCreate:
		id, err := f.create(action)
		result.NewID = id
		return result, nil, err
	case entity.ActionUpdate:
		return result, nil, f.update(action)
	case entity.ActionMove:
		return result, nil, f.move(action)
	default:
		return result, nil, fmt.Errorf("unknown action type %q", action.ActionType)
	}
}

func (f *FakeRemote) create(action entity.Action) (string, error) {
	delta := action.EntityDelta
	if delta == nil || delta.Name == nil {
		return "", fmt.Errorf("create action %d without name", action.ActionID)
	}
	now := f.tick()
	switch delta.EntityType {
	case entity.EntityGroup:
		list := &fakeEntity{snapshot: entity.Snapshot{
			ID: f.newID("list"), Name: *delta.Name, LastModified: now, Type: entity.EntityGroup,
		}}
		f.lists = append(f.lists, list)
		return list.snapshot.ID, nil
	case entity.EntityTask:
		list := f.findList(action.ListID)
		if list == nil {
			return "", fmt.Errorf("create task in unknown list %q", action.ListID)
		}
		task := &fakeEntity{snapshot: entity.Snapshot{
			ID:           f.newID("task"),
			Name:         *delta.Name,
			LastModified: now,
			ListID:       list.snapshot.ID,
			ParentID:     list.snapshot.ID,
			Type:         entity.EntityTask,
		}}
		if delta.Notes != nil {
			task.snapshot.Notes = *delta.Notes
		}
		if delta.Completed != nil {
			task.snapshot.Completed = *delta.Completed
		}
		list.tasks = insertAfter(list.tasks, task, action.PriorSiblingID)
		list.snapshot.LastModified = now
		return task.snapshot.ID, nil
	default:
		return "", fmt.Errorf("unknown entity type %q", delta.EntityType)
	}
}

func (f *FakeRemote) update(action entity.Action) error {
	delta := action.EntityDelta
	if delta == nil {
		return fmt.Errorf("update action %d without delta", action.ActionID)
	}
	if list := f.findList(action.ID); list != nil {
		if delta.Name != nil {
			list.snapshot.Name = *delta.Name
		}
		if delta.Deleted != nil && *delta.Deleted {
			f.markDeleted(list.snapshot.ID)
			return nil
		}
		list.snapshot.LastModified = f.tick()
		return nil
	}
	task, list := f.findTask(action.ID)
	if task == nil {
		return fmt.Errorf("update of unknown entity %q", action.ID)
	}
	if delta.Deleted != nil && *delta.Deleted {
		f.markDeleted(task.snapshot.ID)
		return nil
	}
	if delta.Name != nil {
		task.snapshot.Name = *delta.Name
	}
	if delta.Notes != nil {
		task.snapshot.Notes = *delta.Notes
	}
	if delta.Completed != nil {
		task.snapshot.Completed = *delta.Completed
	}
	task.snapshot.LastModified = f.tick()
	list.snapshot.LastModified = task.snapshot.LastModified
	return nil
}

func (f *FakeRemote) move(action entity.Action) error {
	task, source := f.findTask(action.ID)
	if task == nil {
		return fmt.Errorf("move of unknown task %q", action.ID)
	}
	if action.SourceList != source.snapshot.ID {
		return fmt.Errorf("move source %q does not hold task %q", action.SourceList, action.ID)
	}
	dest := source
	if action.DestList != "" {
		dest = f.findList(action.DestList)
		if dest == nil {
			return fmt.Errorf("move to unknown list %q", action.DestList)
		}
	}
	source.tasks = removeTask(source.tasks, task)
	dest.tasks = insertAfter(dest.tasks, task, action.PriorSiblingID)
	now := f.tick()
	task.snapshot.ListID = dest.snapshot.ID
	task.snapshot.ParentID = dest.snapshot.ID
	task.snapshot.LastModified = now
	source.snapshot.LastModified = now
	dest.snapshot.LastModified = now
	return nil
}

func (f *FakeRemote) markDeleted(id string) {
	if list := f.findList(id); list != nil {
		list.snapshot.Deleted = true
		list.snapshot.LastModified = f.tick()
		return
	}
	if task, list := f.findTask(id); task != nil {
		task.snapshot.Deleted = true
		task.snapshot.LastModified = f.tick()
		list.snapshot.LastModified = task.snapshot.LastModified
	}
}

func (f *FakeRemote) authorized(r *http.Request) bool {
	cookie, err := r.Cookie(fakeSessionCookie)
	return err == nil && f.sessions[cookie.Value]
}

func (f *FakeRemote) write(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	accepted := r.Header.Get("Accept-Encoding")
	if f.compression == "" || !strings.Contains(accepted, f.compression) {
		_, _ = w.Write(body)
		return
	}
	var buf bytes.Buffer
	switch f.compression {
	case "gzip":
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write(body)
		_ = zw.Close()
	case "deflate":
		zw, _ := flate.NewWriter(&buf, flate.DefaultCompression)
		_, _ = zw.Write(body)
		_ = zw.Close()
	}
	w.Header().Set("Content-Encoding", f.compression)
	_, _ = w.Write(buf.Bytes())
}

func (f *FakeRemote) liveLists() []entity.Snapshot {
	out := make([]entity.Snapshot, 0, len(f.lists))
	for _, list := range f.lists {
		if !list.snapshot.Deleted {
			out = append(out, list.snapshot)
		}
	}
	return out
}

func (f *FakeRemote) liveTasks(listID string) []entity.Snapshot {
	list := f.findList(listID)
	if list == nil {
		return nil
	}
	out := make([]entity.Snapshot, 0, len(list.tasks))
	for _, task := range list.tasks {
		if !task.snapshot.Deleted {
			out = append(out, task.snapshot)
		}
	}
	return out
}

func (f *FakeRemote) findList(id string) *fakeEntity {
	for _, list := range f.lists {
		if list.snapshot.ID == id {
			return list
		}
	}
	return nil
}

func (f *FakeRemote) findTask(id string) (*fakeEntity, *fakeEntity) {
	for _, list := range f.lists {
		for _, task := range list.tasks {
			if task.snapshot.ID == id {
				return task, list
			}
		}
	}
	return nil, nil
}

func (f *FakeRemote) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *FakeRemote) tick() int64 {
	f.clock++
	return f.clock
}

func insertAfter(tasks []*fakeEntity, task *fakeEntity, priorID string) []*fakeEntity {
	if priorID == "" {
		return append([]*fakeEntity{task}, tasks...)
	}
	for i, existing := range tasks {
		if existing.snapshot.ID == priorID {
			out := make([]*fakeEntity, 0, len(tasks)+1)
			out = append(out, tasks[:i+1]...)
			out = append(out, task)
			return append(out, tasks[i+1:]...)
		}
	}
	return append(tasks, task)
}

func removeTask(tasks []*fakeEntity, task *fakeEntity) []*fakeEntity {
	for i, existing := range tasks {
		if existing == task {
			return append(tasks[:i], tasks[i+1:]...)
		}
	}
	return tasks
}
