package runner_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"notesync/internal/logging"
	"notesync/internal/remote"
	"notesync/internal/runner"
	"notesync/internal/services"
	"notesync/internal/syncer"
	"notesync/internal/testsupport"
)

// blockingSyncer reports the first step and then waits for release or
// cancellation, the way a session observes its checkpoints.
type blockingSyncer struct {
	started chan struct{}
	release chan struct{}
	runs    int
	mu      sync.Mutex
}

func newBlockingSyncer() *blockingSyncer {
	return &blockingSyncer{started: make(chan struct{}, 4), release: make(chan struct{})}
}

func (s *blockingSyncer) Run(ctx context.Context, progress syncer.ProgressFunc) syncer.Result {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	session, _ := services.SessionIDFromContext(ctx)
	if progress != nil {
		progress(syncer.StepLogin, "Logging in to the task service")
	}
	s.started <- struct{}{}
	select {
	case <-ctx.Done():
		return syncer.Result{State: syncer.StateCancelled, Err: services.ErrCancelled, SessionID: session}
	case <-s.release:
		return syncer.Result{State: syncer.StateSuccess, SessionID: session}
	}
}

func (s *blockingSyncer) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed int
	failed    []string
	cancelled int
	err       error
}

func (n *recordingNotifier) NotifySyncCompleted(context.Context, int, int, int, time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed++
	return n.err
}

func (n *recordingNotifier) NotifySyncFailed(_ context.Context, state string, _ error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, state)
	return n.err
}

func (n *recordingNotifier) NotifySyncCancelled(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled++
	return n.err
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

func waitStarted(t *testing.T, s *blockingSyncer) {
	t.Helper()
	select {
	case <-s.started:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not start")
	}
}

func TestStartIsExclusive(t *testing.T) {
	s := newBlockingSyncer()
	r := runner.New(s, logging.NewNop())

	started, err := r.Start(context.Background(), nil)
	if err != nil || !started {
		t.Fatalf("first Start = %v, %v", started, err)
	}
	waitStarted(t, s)

	started, err = r.Start(context.Background(), nil)
	if err != nil || started {
		t.Fatalf("second Start = %v, %v; want false, nil", started, err)
	}

	close(s.release)
	r.Wait()
	if s.Runs() != 1 {
		t.Fatalf("expected one run, got %d", s.Runs())
	}
	if r.Running() {
		t.Fatalf("runner still marked running")
	}
}

func TestWaitRacingStart(t *testing.T) {
	s := newBlockingSyncer()
	r := runner.New(s, logging.NewNop())
	r.Wait()

	close(s.release)
	waited := make(chan struct{})
	for i := 0; i < 3; i++ {
		go func() {
			if _, err := r.Start(context.Background(), nil); err != nil {
				t.Errorf("Start returned error: %v", err)
			}
			r.Wait()
			waited <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		select {
		case <-waited:
		case <-time.After(5 * time.Second):
			t.Fatal("Wait did not return")
		}
	}
	r.Wait()
	if r.Running() {
		t.Fatalf("runner still marked running")
	}
	if s.Runs() == 0 {
		t.Fatalf("expected at least one run")
	}
}

func TestCompletionCallbackRunsOnce(t *testing.T) {
	s := newBlockingSyncer()
	notifier := &recordingNotifier{}
	r := runner.New(s, logging.NewNop(), runner.WithNotifier(notifier))

	var (
		mu    sync.Mutex
		calls []syncer.Result
	)
	started, err := r.Start(context.Background(), func(result syncer.Result) {
		mu.Lock()
		calls = append(calls, result)
		mu.Unlock()
	})
	if err != nil || !started {
		t.Fatalf("Start = %v, %v", started, err)
	}
	waitStarted(t, s)
	close(s.release)
	r.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 || calls[0].State != syncer.StateSuccess {
		t.Fatalf("unexpected completion calls: %+v", calls)
	}
	if notifier.completed != 1 {
		t.Fatalf("expected one completion notification, got %d", notifier.completed)
	}

	status := r.Status()
	if status.Running || status.LastResult == nil || status.LastResult.State != syncer.StateSuccess {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.SessionID == "" || status.LastResult.SessionID != status.SessionID {
		t.Fatalf("session id not carried into the result: %+v", status)
	}
}

func TestCancelStopsActiveSession(t *testing.T) {
	s := newBlockingSyncer()
	notifier := &recordingNotifier{err: errors.New("ntfy down")}
	r := runner.New(s, logging.NewNop(), runner.WithNotifier(notifier))

	if r.Cancel() {
		t.Fatalf("Cancel on an idle runner should report false")
	}

	done := make(chan syncer.Result, 1)
	if _, err := r.Start(context.Background(), func(result syncer.Result) { done <- result }); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	waitStarted(t, s)
	if !r.Cancel() {
		t.Fatalf("Cancel on an active runner should report true")
	}

	select {
	case result := <-done:
		if result.State != syncer.StateCancelled {
			t.Fatalf("expected CANCELLED, got %s", result.State)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish after cancel")
	}
	r.Wait()
	if notifier.cancelled != 1 {
		t.Fatalf("expected a cancel notification despite the notifier error, got %d", notifier.cancelled)
	}
}

func TestProgressIsExposed(t *testing.T) {
	s := newBlockingSyncer()
	var (
		mu    sync.Mutex
		steps []string
	)
	r := runner.New(s, logging.NewNop(), runner.WithProgressListener(func(step, _ string) {
		mu.Lock()
		steps = append(steps, step)
		mu.Unlock()
	}))

	if _, err := r.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	waitStarted(t, s)

	status := r.Status()
	if !status.Running || status.Step != syncer.StepLogin || status.Progress == "" {
		t.Fatalf("unexpected in-flight status: %+v", status)
	}
	close(s.release)
	r.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(steps) != 1 || steps[0] != syncer.StepLogin {
		t.Fatalf("listener saw %v", steps)
	}
}

func TestLockHeldByAnotherProcess(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "sync.lock")
	other := flock.New(lockPath)
	ok, err := other.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	t.Cleanup(func() { _ = other.Unlock() })

	s := newBlockingSyncer()
	r := runner.New(s, logging.NewNop(), runner.WithLockPath(lockPath))
	started, err := r.Start(context.Background(), nil)
	if started || !errors.Is(err, runner.ErrLockHeld) {
		t.Fatalf("Start = %v, %v; want false, ErrLockHeld", started, err)
	}
	if s.Runs() != 0 {
		t.Fatalf("syncer ran despite the held lock")
	}

	if err := other.Unlock(); err != nil {
		t.Fatalf("Unlock returned error: %v", err)
	}
	started, err = r.Start(context.Background(), nil)
	if err != nil || !started {
		t.Fatalf("Start after release = %v, %v", started, err)
	}
	waitStarted(t, s)
	close(s.release)
	r.Wait()

	// The runner released its own lock after completion.
	if ok, err := other.TryLock(); err != nil || !ok {
		t.Fatalf("lock not released after completion: %v, %v", ok, err)
	}
}

func TestRunnerDrivesRealSession(t *testing.T) {
	fake := testsupport.NewFakeRemote(t)
	cfg := testsupport.NewConfig(t, testsupport.WithRemote(fake))
	store := testsupport.MustOpenStore(t, cfg)
	folder := testsupport.NewFolder(t, store, "Groceries")
	testsupport.NewNote(t, store, folder.ID, "Milk", "2 litres")

	client, err := remote.New(remote.Config{
		BaseURL:        fake.BaseURL(),
		PrimaryDomains: []string{"gmail.com"},
		HTTPClient:     fake.Client(),
	})
	if err != nil {
		t.Fatalf("remote.New returned error: %v", err)
	}
	creds := remote.NewStaticCredentials(cfg.Remote.Account, fake.Token())
	s := syncer.New(store, client, creds, logging.NewNop())

	notifier := &recordingNotifier{}
	r := runner.NewFromConfig(cfg, s, logging.NewNop(), runner.WithNotifier(notifier))

	done := make(chan syncer.Result, 1)
	if _, err := r.Start(context.Background(), func(result syncer.Result) { done <- result }); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	r.Wait()

	result := <-done
	if result.State != syncer.StateSuccess {
		t.Fatalf("sync finished with %s: %v", result.State, result.Err)
	}
	if _, ok := fake.ListByName("Groceries"); !ok {
		t.Fatalf("folder not pushed")
	}
	if notifier.completed != 1 {
		t.Fatalf("expected completion notification, got %d", notifier.completed)
	}
}
