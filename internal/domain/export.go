package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SessionExport is the downloadable JSON document for one session.
type SessionExport struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	CreatedAt string            `json:"created_at"`
	ModelID   string            `json:"model_id"`
	Messages  []ExportedMessage `json:"messages"`
}

// ExportedMessage is a message as it appears in a SessionExport.
type ExportedMessage struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	ModelID   string `json:"model_id"`
}

// NewSessionExport builds the export document for a record. Messages keep
// their sequence order.
func NewSessionExport(r SessionRecord) *SessionExport {
	doc := &SessionExport{
		ID:        r.ID,
		Title:     r.Title,
		CreatedAt: r.CreatedAt,
		ModelID:   r.ModelID,
		Messages:  make([]ExportedMessage, 0, len(r.Messages)),
	}
	for _, m := range r.Messages {
		doc.Messages = append(doc.Messages, ExportedMessage{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
			ModelID:   m.ModelID,
		})
	}
	return doc
}

// Marshal encodes the document with two-space indentation. Non-ASCII and
// HTML characters are written literally.
func (e *SessionExport) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// FileName is the attachment name offered for downloads.
func (e *SessionExport) FileName() string {
	return fmt.Sprintf("chat_session_%d.json", e.ID)
}

// ParseSessionExport decodes a document produced by Marshal.
func ParseSessionExport(data []byte) (*SessionExport, error) {
	var doc SessionExport
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid export document: %v", ErrValidation, err)
	}
	return &doc, nil
}
