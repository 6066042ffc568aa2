package entity

import "errors"

var (
	// ErrAlreadyCreated is returned when a create action is requested for a node that already has a remote id.
	ErrAlreadyCreated = errors.New("node already has a remote id")
	// ErrNotCreated is returned when an update is requested for a node without a remote id.
	ErrNotCreated = errors.New("node has no remote id")
	// ErrRemoteIDConflict is returned when a different remote id is assigned to an already-synced node.
	ErrRemoteIDConflict = errors.New("remote id already assigned")
	// ErrUnknownKind is returned for nodes outside the closed variant set.
	ErrUnknownKind = errors.New("unknown node kind")
)
