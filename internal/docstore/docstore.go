// Package docstore describes the remote folder the knowledge base is built
// from.
package docstore

import (
	"context"
	"time"
)

// Document is a file listed in the source folder.
type Document struct {
	ID           string
	Name         string
	MimeType     string
	ModifiedTime time.Time
}

// Store lists and downloads source documents.
type Store interface {
	List(ctx context.Context, folderID string) ([]Document, error)
	// Download returns the file bytes and the mime type they are encoded in.
	Download(ctx context.Context, id string) ([]byte, string, error)
}
