package entity

import (
	"fmt"
	"strings"
)

const (
	// MetaListName is the reserved name of the list holding sync metadata.
	MetaListName = "METADATA"
	// MetaNoteName is the reserved name of the task holding the metadata payload.
	MetaNoteName = "[META INFO] DON'T UPDATE AND DELETE"
)

// Kind identifies a Node variant.
type Kind int

const (
	KindTaskList Kind = iota + 1
	KindTask
	KindMeta
)

func (k Kind) String() string {
	switch k {
	case KindTaskList:
		return "task_list"
	case KindTask:
		return "task"
	case KindMeta:
		return "meta"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type changeSet uint8

const (
	changeName changeSet = 1 << iota
	changeNotes
	changeCompleted
	changeDeleted
)

// Node is a locally tracked entity with a remote identity.
//
// ListID and PriorSiblingID only apply to tasks (including the meta task).
// Index is the advisory position sent with create actions.
type Node struct {
	Kind           Kind
	LocalID        int64
	RemoteID       string
	Name           string
	Notes          string
	Completed      bool
	Deleted        bool
	LastModified   int64
	ListID         string
	PriorSiblingID string
	Index          int

	changes changeSet
}

// NewTaskList returns a list node for a local folder.
func NewTaskList(localID int64, name string) *Node {
	return &Node{Kind: KindTaskList, LocalID: localID, Name: name}
}

// NewTask returns a task node for a local note that lives in listID.
func NewTask(localID int64, listID, name, notes string) *Node {
	return &Node{Kind: KindTask, LocalID: localID, ListID: listID, Name: name, Notes: notes}
}

// NewMeta returns the meta task node inside the metadata list.
func NewMeta(listID, payload string) *Node {
	return &Node{Kind: KindMeta, ListID: listID, Name: MetaNoteName, Notes: payload}
}

// IsMetaList reports whether a remote list snapshot is the reserved metadata list.
func IsMetaList(s Snapshot) bool {
	return strings.TrimSpace(s.Name) == MetaListName
}

// IsMetaTask reports whether a remote task snapshot is the reserved metadata task.
func IsMetaTask(s Snapshot) bool {
	return strings.TrimSpace(s.Name) == MetaNoteName
}

// SetName records a local name change.
func (n *Node) SetName(name string) {
	if n.Name == name {
		return
	}
	n.Name = name
	n.changes |= changeName
}

// SetNotes records a local content change.
func (n *Node) SetNotes(notes string) {
	if n.Notes == notes {
		return
	}
	n.Notes = notes
	n.changes |= changeNotes
}

// SetCompleted records a local completion change.
func (n *Node) SetCompleted(completed bool) {
	if n.Completed == completed {
		return
	}
	n.Completed = completed
	n.changes |= changeCompleted
}

// MarkDeleted flags the node for remote deletion.
func (n *Node) MarkDeleted() {
	n.Deleted = true
	n.changes |= changeDeleted
}

// Changed reports whether any field changed since the last sync.
func (n *Node) Changed() bool {
	return n.changes != 0 || n.Deleted
}

// ClearChanges forgets pending field changes.
func (n *Node) ClearChanges() {
	n.changes = 0
}

// AssignRemoteID records the server-assigned id. Assigning the same id twice
// is a no-op; assigning a different one fails.
func (n *Node) AssignRemoteID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("assign remote id to %s %d: empty id", n.Kind, n.LocalID)
	}
	switch n.RemoteID {
	case "":
		n.RemoteID = id
		return nil
	case id:
		return nil
	default:
		return fmt.Errorf("%w: %s %d has %q, got %q", ErrRemoteIDConflict, n.Kind, n.LocalID, n.RemoteID, id)
	}
}

// BuildCreateAction serializes every set field into a create action.
func (n *Node) BuildCreateAction(actionID int64) (Action, error) {
	if n.RemoteID != "" {
		return Action{}, fmt.Errorf("%w: %s %d is %q", ErrAlreadyCreated, n.Kind, n.LocalID, n.RemoteID)
	}
	ops, err := n.ops()
	if err != nil {
		return Action{}, err
	}
	action := Action{
		ActionType:  ActionCreate,
		ActionID:    actionID,
		Index:       intPtr(n.Index),
		EntityDelta: &Delta{EntityType: ops.entityType},
	}
	ops.create(n, &action)
	return action, nil
}

// BuildUpdateAction serializes changed fields, plus the deleted flag when set,
// into an update action.
func (n *Node) BuildUpdateAction(actionID int64) (Action, error) {
	if n.RemoteID == "" {
		return Action{}, fmt.Errorf("%w: %s %d", ErrNotCreated, n.Kind, n.LocalID)
	}
	ops, err := n.ops()
	if err != nil {
		return Action{}, err
	}
	delta := &Delta{}
	ops.update(n, delta)
	if n.Deleted {
		delta.Deleted = boolPtr(true)
	}
	return Action{
		ActionType:  ActionUpdate,
		ActionID:    actionID,
		ID:          n.RemoteID,
		EntityDelta: delta,
	}, nil
}

// ApplyRemoteSnapshot overwrites transient fields from a remote snapshot and
// clears pending changes. LocalID is never touched.
func (n *Node) ApplyRemoteSnapshot(s Snapshot) error {
	ops, err := n.ops()
	if err != nil {
		return err
	}
	if s.ID != "" {
		if err := n.AssignRemoteID(s.ID); err != nil {
			return err
		}
	}
	ops.apply(n, s)
	n.Deleted = s.Deleted
	n.LastModified = s.LastModified
	n.changes = 0
	return nil
}

func (n *Node) ops() (kindOps, error) {
	ops, ok := dispatch[n.Kind]
	if !ok {
		return kindOps{}, fmt.Errorf("%w: %d", ErrUnknownKind, int(n.Kind))
	}
	return ops, nil
}

type kindOps struct {
	entityType EntityType
	create     func(*Node, *Action)
	update     func(*Node, *Delta)
	apply      func(*Node, Snapshot)
}

var dispatch = map[Kind]kindOps{
	KindTaskList: {
		entityType: EntityGroup,
		create: func(n *Node, a *Action) {
			a.EntityDelta.Name = stringPtr(n.Name)
		},
		update: func(n *Node, d *Delta) {
			if n.changes&changeName != 0 {
				d.Name = stringPtr(n.Name)
			}
		},
		apply: func(n *Node, s Snapshot) {
			n.Name = s.Name
		},
	},
	KindTask: {
		entityType: EntityTask,
		create:     createTask,
		update: func(n *Node, d *Delta) {
			if n.changes&changeName != 0 {
				d.Name = stringPtr(n.Name)
			}
			if n.changes&changeNotes != 0 {
				d.Notes = stringPtr(n.Notes)
			}
			if n.changes&changeCompleted != 0 {
				d.Completed = boolPtr(n.Completed)
			}
		},
		apply: func(n *Node, s Snapshot) {
			n.Name = s.Name
			n.Notes = s.Notes
			n.Completed = s.Completed
			if s.ListID != "" {
				n.ListID = s.ListID
			}
		},
	},
	KindMeta: {
		entityType: EntityTask,
		create: func(n *Node, a *Action) {
			n.Name = MetaNoteName
			createTask(n, a)
		},
		update: func(n *Node, d *Delta) {
			if n.changes&changeNotes != 0 {
				d.Notes = stringPtr(n.Notes)
			}
		},
		apply: func(n *Node, s Snapshot) {
			n.Notes = s.Notes
			if s.ListID != "" {
				n.ListID = s.ListID
			}
		},
	},
}

func createTask(n *Node, a *Action) {
	a.EntityDelta.Name = stringPtr(n.Name)
	if n.Notes != "" {
		a.EntityDelta.Notes = stringPtr(n.Notes)
	}
	if n.Completed {
		a.EntityDelta.Completed = boolPtr(true)
	}
	a.ParentID = n.ListID
	a.DestParentType = EntityGroup
	a.ListID = n.ListID
	a.PriorSiblingID = n.PriorSiblingID
}
