package entity

// ActionType names a wire-protocol instruction.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionMove   ActionType = "move"
	ActionGetAll ActionType = "get_all"
)

// EntityType is the remote type tag carried in deltas and snapshots.
type EntityType string

const (
	EntityGroup EntityType = "GROUP"
	EntityTask  EntityType = "TASK"
)

// Action is one instruction inside a batch request.
type Action struct {
	ActionType     ActionType `json:"action_type"`
	ActionID       int64      `json:"action_id"`
	ID             string     `json:"id,omitempty"`
	Index          *int       `json:"index,omitempty"`
	EntityDelta    *Delta     `json:"entity_delta,omitempty"`
	ParentID       string     `json:"parent_id,omitempty"`
	DestParentType EntityType `json:"dest_parent_type,omitempty"`
	ListID         string     `json:"list_id,omitempty"`
	PriorSiblingID string     `json:"prior_sibling_id,omitempty"`
	SourceList     string     `json:"source_list,omitempty"`
	DestParent     string     `json:"dest_parent,omitempty"`
	DestList       string     `json:"dest_list,omitempty"`
	GetDeleted     *bool      `json:"get_deleted,omitempty"`
}

// Delta carries the entity fields of a create or update action. Nil pointers
// are omitted from the wire.
type Delta struct {
	Name       *string    `json:"name,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
	Completed  *bool      `json:"completed,omitempty"`
	Deleted    *bool      `json:"deleted,omitempty"`
	EntityType EntityType `json:"entity_type,omitempty"`
}

// Empty reports whether the delta carries no field changes.
func (d *Delta) Empty() bool {
	return d == nil || (d.Name == nil && d.Notes == nil && d.Completed == nil && d.Deleted == nil)
}

// Snapshot is the remote representation of a list or task.
type Snapshot struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Notes        string     `json:"notes,omitempty"`
	Completed    bool       `json:"completed,omitempty"`
	Deleted      bool       `json:"deleted,omitempty"`
	LastModified int64      `json:"last_modified"`
	ListID       string     `json:"list_id,omitempty"`
	ParentID     string     `json:"parent_id,omitempty"`
	Type         EntityType `json:"type,omitempty"`
}

// BatchRequest is the envelope posted for every action batch.
type BatchRequest struct {
	ActionList    []Action `json:"action_list"`
	ClientVersion int64    `json:"client_version"`
}

// Result is one per-action entry of a batch response.
type Result struct {
	NewID    string `json:"new_id,omitempty"`
	ActionID int64  `json:"action_id,omitempty"`
}

// BatchResponse is the envelope returned for every batch.
type BatchResponse struct {
	Results []Result   `json:"results"`
	Lists   []Snapshot `json:"lists,omitempty"`
	Tasks   []Snapshot `json:"tasks,omitempty"`
}

// SetupBlob is the JSON object embedded in the login page.
type SetupBlob struct {
	V int64 `json:"v"`
	T struct {
		Lists []Snapshot `json:"lists"`
	} `json:"t"`
}

// NormalizeLists applies wire defaults to list snapshots in place.
func NormalizeLists(lists []Snapshot) {
	for i := range lists {
		if lists[i].Type == "" {
			lists[i].Type = EntityGroup
		}
	}
}

// NormalizeTasks applies wire defaults to task snapshots fetched from listID.
func NormalizeTasks(tasks []Snapshot, listID string) {
	for i := range tasks {
		if tasks[i].Type == "" {
			tasks[i].Type = EntityTask
		}
		if tasks[i].ListID == "" {
			tasks[i].ListID = listID
		}
		if tasks[i].ParentID == "" {
			tasks[i].ParentID = tasks[i].ListID
		}
	}
}

func boolPtr(v bool) *bool { return &v }

func stringPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }
