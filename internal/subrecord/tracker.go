package subrecord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"notesync/internal/entity"
	"notesync/internal/logging"
)

// ErrCreation is returned when the store does not yield a usable id for a new
// sub-record. It is fatal to the owning note, not to the sync session.
var ErrCreation = errors.New("sub-record creation failed")

// Outcome describes what a commit did.
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeInserted
	OutcomeUpdated
	OutcomeGuardRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeGuardRejected:
		return "guard_rejected"
	default:
		return "unchanged"
	}
}

// Store persists sub-records. Update methods return the number of rows affected.
type Store interface {
	InsertData(ctx context.Context, noteID int64, values Values) (int64, error)
	UpdateData(ctx context.Context, dataID int64, values Values, fields Fields) (int64, error)
	UpdateDataGuarded(ctx context.Context, dataID int64, values Values, fields Fields, noteVersion int64) (int64, error)
}

// Tracker holds one sub-record's captured values and pending diff-set.
type Tracker struct {
	id     int64
	isNew  bool
	values Values
	diff   Fields
	logger *slog.Logger
}

// New returns a tracker for a sub-record that does not exist yet.
func New(logger *slog.Logger) *Tracker {
	return &Tracker{isNew: true, values: DefaultValues(), logger: trackerLogger(logger)}
}

// Load returns a tracker for a persisted sub-record.
func Load(id int64, values Values, logger *slog.Logger) *Tracker {
	if values.MimeType == "" {
		values.MimeType = entity.MimeTextNote
	}
	return &Tracker{id: id, values: values, logger: trackerLogger(logger)}
}

func trackerLogger(logger *slog.Logger) *slog.Logger {
	return logging.NewComponentLogger(logger, "subrecord")
}

// ID returns the row id, or zero while the record is new.
func (t *Tracker) ID() int64 { return t.id }

// IsNew reports whether the record has not been inserted yet.
func (t *Tracker) IsNew() bool { return t.isNew }

// Values returns the current values including pending changes.
func (t *Tracker) Values() Values { return t.values }

// Diff returns the pending diff-set.
func (t *Tracker) Diff() Fields { return t.diff }

// Pending reports whether a commit would write anything.
func (t *Tracker) Pending() bool { return t.isNew || !t.diff.Empty() }

// SetFromRemote merges a remote record. A field joins the diff-set when it
// differs from the captured value, or always while the record is new.
func (t *Tracker) SetFromRemote(rec entity.DataRecord) {
	mime := rec.MimeType
	if mime == "" {
		mime = entity.MimeTextNote
	}
	t.SetMimeType(mime)
	t.SetContent(rec.Content)
	t.SetData1(rec.Data1)
	t.SetData3(rec.Data3)
}

// SetMimeType records a mime type change.
func (t *Tracker) SetMimeType(v string) {
	if t.isNew || t.values.MimeType != v {
		t.diff = t.diff.with(FieldMimeType)
	}
	t.values.MimeType = v
}

// SetContent records a content change.
func (t *Tracker) SetContent(v string) {
	if t.isNew || t.values.Content != v {
		t.diff = t.diff.with(FieldContent)
	}
	t.values.Content = v
}

// SetData1 records a data1 change.
func (t *Tracker) SetData1(v int64) {
	if t.isNew || t.values.Data1 != v {
		t.diff = t.diff.with(FieldData1)
	}
	t.values.Data1 = v
}

// SetData3 records a data3 change.
func (t *Tracker) SetData3(v string) {
	if t.isNew || t.values.Data3 != v {
		t.diff = t.diff.with(FieldData3)
	}
	t.values.Data3 = v
}

// Commit writes pending changes for the sub-record owned by ownerID. When
// guard is non-nil the update only applies while the owner's version still
// equals *guard.
func (t *Tracker) Commit(ctx context.Context, store Store, ownerID int64, guard *int64) (Outcome, error) {
	if t.isNew {
		id, err := store.InsertData(ctx, ownerID, t.values)
		if err != nil {
			return OutcomeUnchanged, fmt.Errorf("insert sub-record for note %d: %w", ownerID, err)
		}
		if id <= 0 {
			return OutcomeUnchanged, fmt.Errorf("%w: note %d got id %d", ErrCreation, ownerID, id)
		}
		t.id = id
		t.isNew = false
		t.diff = 0
		return OutcomeInserted, nil
	}

	if t.diff.Empty() {
		return OutcomeUnchanged, nil
	}

	if guard == nil {
		if _, err := store.UpdateData(ctx, t.id, t.values, t.diff); err != nil {
			return OutcomeUnchanged, fmt.Errorf("update sub-record %d: %w", t.id, err)
		}
		t.diff = 0
		return OutcomeUpdated, nil
	}

	rows, err := store.UpdateDataGuarded(ctx, t.id, t.values, t.diff, *guard)
	if err != nil {
		return OutcomeUnchanged, fmt.Errorf("guarded update sub-record %d: %w", t.id, err)
	}
	if rows == 0 {
		logging.WarnWithContext(logging.WithContext(ctx, t.logger), "sub-record changed locally during sync; deferring",
			"guard_rejected",
			logging.Int64("data_id", t.id),
			logging.Int64("owner_id", ownerID),
			logging.Int64("guard_version", *guard),
			logging.String("fields", t.diff.String()),
			logging.String(logging.FieldErrorHint, "the change is retried on the next sync"),
			logging.String(logging.FieldImpact, "remote edit not applied to this note yet"),
		)
		return OutcomeGuardRejected, nil
	}
	t.diff = 0
	return OutcomeUpdated, nil
}
