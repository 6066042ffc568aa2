package subrecord

import (
	"strings"

	"notesync/internal/entity"
)

// Field identifies one sub-record column.
type Field uint8

const (
	FieldMimeType Field = 1 << iota
	FieldContent
	FieldData1
	FieldData3
)

// Fields is a set of changed columns.
type Fields uint8

// Has reports whether f is in the set.
func (s Fields) Has(f Field) bool { return uint8(s)&uint8(f) != 0 }

func (s Fields) with(f Field) Fields { return Fields(uint8(s) | uint8(f)) }

// Empty reports whether the set has no members.
func (s Fields) Empty() bool { return s == 0 }

// Columns returns the store column names in the set, in a fixed order.
func (s Fields) Columns() []string {
	cols := make([]string, 0, 4)
	if s.Has(FieldMimeType) {
		cols = append(cols, "mime_type")
	}
	if s.Has(FieldContent) {
		cols = append(cols, "content")
	}
	if s.Has(FieldData1) {
		cols = append(cols, "data1")
	}
	if s.Has(FieldData3) {
		cols = append(cols, "data3")
	}
	return cols
}

func (s Fields) String() string {
	if s.Empty() {
		return "none"
	}
	return strings.Join(s.Columns(), ",")
}

// Values are the captured column values of one sub-record.
type Values struct {
	MimeType string
	Content  string
	Data1    int64
	Data3    string
}

// DefaultValues returns the values of a freshly created sub-record.
func DefaultValues() Values {
	return Values{MimeType: entity.MimeTextNote}
}

// Args returns the values of the given columns in Columns order.
func (v Values) Args(fields Fields) []any {
	args := make([]any, 0, 4)
	if fields.Has(FieldMimeType) {
		args = append(args, v.MimeType)
	}
	if fields.Has(FieldContent) {
		args = append(args, v.Content)
	}
	if fields.Has(FieldData1) {
		args = append(args, v.Data1)
	}
	if fields.Has(FieldData3) {
		args = append(args, v.Data3)
	}
	return args
}

// Record converts the values to their wire shape.
func (v Values) Record() entity.DataRecord {
	return entity.DataRecord{MimeType: v.MimeType, Content: v.Content, Data1: v.Data1, Data3: v.Data3}
}
