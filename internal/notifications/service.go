package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"notesync/internal/config"
)

const userAgent = "notesync/0.1.0"

// Service is the notification surface used by the sync runner.
type Service interface {
	NotifySyncCompleted(ctx context.Context, remoteChanges, localChanges, deferred int, duration time.Duration) error
	NotifySyncFailed(ctx context.Context, state string, err error) error
	NotifySyncCancelled(ctx context.Context) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op one when no topic is
// configured.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		onSuccess: cfg.Notifications.SyncSuccess,
		onError:   cfg.Notifications.SyncErrors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	onSuccess bool
	onError   bool
}

func (n *ntfyService) NotifySyncCompleted(ctx context.Context, remoteChanges, localChanges, deferred int, duration time.Duration) error {
	if !n.onSuccess {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	message := fmt.Sprintf("Sync complete in %s: %d pushed, %d pulled", duration, remoteChanges, localChanges)
	if deferred > 0 {
		message = fmt.Sprintf("%s, %d deferred to the next sync", message, deferred)
	}
	return n.send(ctx, payload{
		title:    "notesync - Sync Complete",
		message:  message,
		tags:     []string{"notesync", "sync", "completed"},
		priority: "low",
	})
}

func (n *ntfyService) NotifySyncFailed(ctx context.Context, state string, err error) error {
	if !n.onError {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Sync failed")
	if state = strings.TrimSpace(state); state != "" {
		builder.WriteString(" (")
		builder.WriteString(state)
		builder.WriteString(")")
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "notesync - Sync Failed",
		message:  builder.String(),
		tags:     []string{"notesync", "sync", "error"},
		priority: "high",
	})
}

func (n *ntfyService) NotifySyncCancelled(ctx context.Context) error {
	if !n.onSuccess {
		return nil
	}
	return n.send(ctx, payload{
		title:   "notesync - Sync Cancelled",
		message: "Sync cancelled; remaining changes are picked up by the next sync",
		tags:    []string{"notesync", "sync", "cancelled"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "notesync - Test",
		message:  "Notification system test",
		tags:     []string{"notesync", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySyncCompleted(context.Context, int, int, int, time.Duration) error { return nil }
func (noopService) NotifySyncFailed(context.Context, string, error) error                 { return nil }
func (noopService) NotifySyncCancelled(context.Context) error                              { return nil }
func (noopService) TestNotification(context.Context) error                                 { return nil }
