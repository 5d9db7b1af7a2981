// Package provider defines the contract for the external file-storage
// service that holds the folder hierarchy and PDF content.
//
// Implementations live in sub-packages (gdrive, s3). They are responsible
// for talking to the upstream SDK, classifying its failures and, where it
// makes sense, retrying transient ones. Callers never see SDK error types.
package provider

import (
	"context"
	"errors"
	"io"
)

// MimePDF is the only content type this service lists and serves.
const MimePDF = "application/pdf"

// Failure classes every Client maps its upstream errors onto.
var (
	ErrNotFound         = errors.New("provider: not found")
	ErrPermissionDenied = errors.New("provider: permission denied")
	ErrTransient        = errors.New("provider: transient failure")
)

// FolderRef is a child folder of the configured root.
type FolderRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FileRecord is a file's metadata as reported by the provider.
type FileRecord struct {
	ID       string
	Name     string
	Size     int64
	MimeType string
}

// Client is the interface for storage providers.
type Client interface {
	// Root returns the id of the folder whose children are listed by /api/folders.
	Root() string

	// ListChildFolders returns the folders directly under parentID, ordered by name.
	ListChildFolders(ctx context.Context, parentID string) ([]FolderRef, error)

	// ListChildFiles returns the files of mimeType directly under parentID, ordered by name.
	ListChildFiles(ctx context.Context, parentID, mimeType string) ([]FileRecord, error)

	// GetMetadata returns name and size for a single file.
	GetMetadata(ctx context.Context, fileID string) (*FileRecord, error)

	// GetContentStream opens the file content. The caller must close it.
	GetContentStream(ctx context.Context, fileID string) (io.ReadCloser, error)

	// SearchByNameSubstring returns at most limit files of mimeType whose
	// name contains term. term is already sanitized.
	SearchByNameSubstring(ctx context.Context, term, mimeType string, limit int) ([]FileRecord, error)

	// ViewerURL returns the provider-hosted preview page for a file.
	ViewerURL(ctx context.Context, fileID string) (string, error)

	// DownloadURL returns the provider-hosted direct download link for a file.
	DownloadURL(ctx context.Context, fileID string) (string, error)

	// Type returns the provider type identifier ("gdrive", "s3").
	Type() string

	// Close releases any resources held by the client.
	Close() error
}
