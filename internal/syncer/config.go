package syncer

import (
	"log/slog"

	"notesync/internal/config"
	"notesync/internal/remote"
)

// NewFromConfig builds a Syncer against the task service configured in cfg.
func NewFromConfig(cfg *config.Config, store Store, logger *slog.Logger) (*Syncer, error) {
	creds, err := remote.CredentialsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := remote.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(store, client, creds, logger), nil
}
