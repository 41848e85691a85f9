package model

import (
	"os"
	"path/filepath"
	"time"
)

// Document represents a research paper known to the retrieval layer.
// Only the structured fields (Title, Authors, Abstract) are used for
// keyword scoring; Content is the extracted full text used for chunking
// and is never stored by this library itself.
type Document struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Authors   string    `json:"authors,omitempty"`
	Abstract  string    `json:"abstract,omitempty"`
	Content   string    `json:"content,omitempty" db:"-"` // Temporary field for indexing, not stored
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// NewDocumentFromFile reads a file and creates a Document with the file content.
// The title defaults to the filename without extension.
func NewDocumentFromFile(id int64, filePath string) (*Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(filePath)
	title := filename[:len(filename)-len(filepath.Ext(filename))]
	if title == "" {
		title = filename
	}

	return &Document{
		ID:      id,
		Title:   title,
		Content: string(content),
	}, nil
}
