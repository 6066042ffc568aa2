package entity

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	MimeTextNote = "text_note"
	MimeCallNote = "call_note"
)

// DataRecord is the wire shape of a note's structured sub-record.
type DataRecord struct {
	MimeType string `json:"mime_type"`
	Content  string `json:"content"`
	Data1    int64  `json:"data1,omitempty"`
	Data3    string `json:"data3,omitempty"`
}

// ContentBlob is the JSON document stored in a task's notes field.
type ContentBlob struct {
	Body string       `json:"body"`
	Data []DataRecord `json:"data,omitempty"`
}

// EncodeContent serializes a note body and optional sub-record.
func EncodeContent(blob ContentBlob) (string, error) {
	for i := range blob.Data {
		if blob.Data[i].MimeType == "" {
			blob.Data[i].MimeType = MimeTextNote
		}
	}
	raw, err := json.Marshal(blob)
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	return string(raw), nil
}

// DecodeContent parses a task's notes field. Text that is not a content
// document is treated as a plain body so tasks edited by other clients still
// round-trip.
func DecodeContent(raw string) ContentBlob {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return ContentBlob{Body: raw}
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return ContentBlob{Body: raw}
	}
	if _, ok := probe["body"]; !ok {
		return ContentBlob{Body: raw}
	}
	var blob ContentBlob
	if err := json.Unmarshal([]byte(trimmed), &blob); err != nil {
		return ContentBlob{Body: raw}
	}
	for i := range blob.Data {
		if blob.Data[i].MimeType == "" {
			blob.Data[i].MimeType = MimeTextNote
		}
	}
	return blob
}

// MetaPayload is the content of the meta task: the local folder to remote
// list mapping and the sync watermark.
type MetaPayload struct {
	Folders   map[string]string `json:"folders"`
	SyncPoint int64             `json:"sync_point"`
}

// NewMetaPayload returns an empty payload.
func NewMetaPayload() MetaPayload {
	return MetaPayload{Folders: make(map[string]string)}
}

// DecodeMetaPayload parses the meta task notes. An empty string yields an
// empty payload.
func DecodeMetaPayload(raw string) (MetaPayload, error) {
	payload := NewMetaPayload()
	if strings.TrimSpace(raw) == "" {
		return payload, nil
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return NewMetaPayload(), fmt.Errorf("decode meta payload: %w", err)
	}
	if payload.Folders == nil {
		payload.Folders = make(map[string]string)
	}
	return payload, nil
}

// Encode serializes the payload. Map keys are emitted in sorted order, so
// equal payloads encode to equal strings.
func (p MetaPayload) Encode() (string, error) {
	if p.Folders == nil {
		p.Folders = make(map[string]string)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode meta payload: %w", err)
	}
	return string(raw), nil
}

// ListFor returns the remote list mapped to a local folder.
func (p MetaPayload) ListFor(folderID int64) (string, bool) {
	listID, ok := p.Folders[strconv.FormatInt(folderID, 10)]
	return listID, ok && listID != ""
}

// FolderFor returns the local folder mapped to a remote list.
func (p MetaPayload) FolderFor(listID string) (int64, bool) {
	for key, value := range p.Folders {
		if value != listID {
			continue
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		return id, true
	}
	return 0, false
}

// Bind records a folder to list mapping, replacing any previous binding of
// either side.
func (p MetaPayload) Bind(folderID int64, listID string) {
	for key, value := range p.Folders {
		if value == listID {
			delete(p.Folders, key)
		}
	}
	p.Folders[strconv.FormatInt(folderID, 10)] = listID
}

// Unbind removes the mapping of a local folder.
func (p MetaPayload) Unbind(folderID int64) {
	delete(p.Folders, strconv.FormatInt(folderID, 10))
}

// FolderIDs returns the mapped local folder ids in ascending order.
func (p MetaPayload) FolderIDs() []int64 {
	ids := make([]int64, 0, len(p.Folders))
	for key := range p.Folders {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
