// Package notifications pushes sync outcomes to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers always hold a usable Service. Success messages are opt-in through
// notifications.sync_success; failures are on by default.
package notifications
