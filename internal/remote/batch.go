package remote

import (
	"context"
	"fmt"

	"notesync/internal/entity"
	"notesync/internal/logging"
	"notesync/internal/services"
)

// PendingCount returns the number of queued actions.
func (c *Client) PendingCount() int { return len(c.pending) }

// DiscardPending drops queued actions left over from an aborted session and
// returns how many were dropped.
func (c *Client) DiscardPending() int {
	n := len(c.pending)
	c.pending = nil
	return n
}

// NextActionID reserves the next action id for a caller-built action.
func (c *Client) NextActionID() int64 { return c.nextActionID() }

// AddPendingAction queues an action, flushing first when the queue is full.
func (c *Client) AddPendingAction(ctx context.Context, action entity.Action) error {
	if len(c.pending) >= MaxPendingActions {
		if err := c.FlushPending(ctx); err != nil {
			return err
		}
	}
	c.pending = append(c.pending, action)
	return nil
}

// AddUpdate queues the node's changed fields and forgets them on the node.
// A node without changes queues nothing.
func (c *Client) AddUpdate(ctx context.Context, node *entity.Node) error {
	if !node.Changed() {
		return nil
	}
	action, err := node.BuildUpdateAction(c.nextActionID())
	if err != nil {
		return services.Wrap(services.ErrProtocol, "update", "build action", "", err)
	}
	if err := c.AddPendingAction(ctx, action); err != nil {
		return err
	}
	node.ClearChanges()
	return nil
}

// FlushPending posts the queued actions as one batch. The queue is cleared
// once the service has answered, whatever the answer.
func (c *Client) FlushPending(ctx context.Context) error {
	if len(c.pending) == 0 {
		return nil
	}
	if err := c.requireLogin("flush"); err != nil {
		return err
	}
	batch := c.pending
	_, responded, err := c.post(ctx, "flush", batch)
	if responded {
		c.pending = nil
	}
	if err != nil {
		return err
	}
	c.logger.Debug("flushed pending actions", logging.Int("actions", len(batch)))
	return nil
}

// CreateTask creates a task (or the meta task) and assigns its remote id.
func (c *Client) CreateTask(ctx context.Context, node *entity.Node) error {
	if node.Kind != entity.KindTask && node.Kind != entity.KindMeta {
		return services.Wrap(services.ErrValidation, "create task", "", fmt.Sprintf("node kind %s", node.Kind), nil)
	}
	return c.create(ctx, "create task", node)
}

// CreateTaskList creates a list and assigns its remote id.
func (c *Client) CreateTaskList(ctx context.Context, node *entity.Node) error {
	if node.Kind != entity.KindTaskList {
		return services.Wrap(services.ErrValidation, "create list", "", fmt.Sprintf("node kind %s", node.Kind), nil)
	}
	return c.create(ctx, "create list", node)
}

func (c *Client) create(ctx context.Context, operation string, node *entity.Node) error {
	if err := c.FlushPending(ctx); err != nil {
		return err
	}
	if err := c.requireLogin(operation); err != nil {
		return err
	}
	action, err := node.BuildCreateAction(c.nextActionID())
	if err != nil {
		return services.Wrap(services.ErrValidation, operation, "build action", "", err)
	}
	resp, _, err := c.post(ctx, operation, []entity.Action{action})
	if err != nil {
		return err
	}
	if len(resp.Results) == 0 || resp.Results[0].NewID == "" {
		return services.Wrap(services.ErrProtocol, operation, "read result", "response carries no new_id", nil)
	}
	if err := node.AssignRemoteID(resp.Results[0].NewID); err != nil {
		return services.Wrap(services.ErrProtocol, operation, "assign id", "", err)
	}
	node.ClearChanges()
	c.logger.Debug("remote entity created",
		logging.String("kind", node.Kind.String()),
		logging.Int64(logging.FieldNoteID, node.LocalID),
		logging.String(logging.FieldRemoteID, node.RemoteID),
	)
	return nil
}

// MoveTask moves a task between lists, or within one list behind its
// PriorSiblingID.
func (c *Client) MoveTask(ctx context.Context, task *entity.Node, fromListID, toListID string) error {
	if err := c.FlushPending(ctx); err != nil {
		return err
	}
	if err := c.requireLogin("move task"); err != nil {
		return err
	}
	if task.RemoteID == "" {
		return services.Wrap(services.ErrValidation, "move task", "", "task has no remote id", entity.ErrNotCreated)
	}
	action := entity.Action{
		ActionType: entity.ActionMove,
		ActionID:   c.nextActionID(),
		ID:         task.RemoteID,
		SourceList: fromListID,
		DestParent: toListID,
	}
	if fromListID != toListID {
		action.DestList = toListID
	} else if task.PriorSiblingID != "" {
		action.PriorSiblingID = task.PriorSiblingID
	}
	if _, _, err := c.post(ctx, "move task", []entity.Action{action}); err != nil {
		return err
	}
	task.ListID = toListID
	return nil
}

// DeleteEntity marks the node deleted and sends that update on its own.
func (c *Client) DeleteEntity(ctx context.Context, node *entity.Node) error {
	if err := c.FlushPending(ctx); err != nil {
		return err
	}
	if err := c.requireLogin("delete"); err != nil {
		return err
	}
	node.MarkDeleted()
	action, err := node.BuildUpdateAction(c.nextActionID())
	if err != nil {
		return services.Wrap(services.ErrValidation, "delete", "build action", "", err)
	}
	_, _, err = c.post(ctx, "delete", []entity.Action{action})
	c.pending = nil
	if err != nil {
		return err
	}
	node.ClearChanges()
	return nil
}

// FetchAllLists returns the current list snapshots.
func (c *Client) FetchAllLists(ctx context.Context) ([]entity.Snapshot, error) {
	if err := c.requireLogin("fetch lists"); err != nil {
		return nil, err
	}
	page, err := c.get(ctx, "fetch lists", c.getURL)
	if err != nil {
		return nil, err
	}
	blob, err := extractSetup(page)
	if err != nil {
		return nil, err
	}
	return blob.T.Lists, nil
}

// FetchList returns the live tasks of one list.
func (c *Client) FetchList(ctx context.Context, listID string) ([]entity.Snapshot, error) {
	if err := c.FlushPending(ctx); err != nil {
		return nil, err
	}
	if err := c.requireLogin("fetch list"); err != nil {
		return nil, err
	}
	getDeleted := false
	action := entity.Action{
		ActionType: entity.ActionGetAll,
		ActionID:   c.nextActionID(),
		ListID:     listID,
		GetDeleted: &getDeleted,
	}
	resp, _, err := c.post(ctx, "fetch list", []entity.Action{action})
	if err != nil {
		return nil, err
	}
	entity.NormalizeTasks(resp.Tasks, listID)
	return resp.Tasks, nil
}
