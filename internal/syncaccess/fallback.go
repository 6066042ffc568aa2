package syncaccess

import (
	"fmt"

	"notesync/internal/ipc"
	"notesync/internal/notes"
)

// Session represents an access handle and its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries the daemon first, then falls back to an in-process
// runner over a directly opened store. A nil dial skips the daemon.
func OpenWithFallback(
	dial func() (*ipc.Client, error),
	openStore func() (*notes.Store, error),
	newLocal func(*notes.Store) (Access, error),
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return Session{Access: NewIPCAccess(client), close: client.Close}, nil
		}
	}

	if openStore == nil || newLocal == nil {
		return Session{}, fmt.Errorf("open note store: no local fallback configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open note store: %w", err)
	}
	access, err := newLocal(store)
	if err != nil {
		store.Close()
		return Session{}, err
	}
	return Session{Access: access, close: store.Close}, nil
}
