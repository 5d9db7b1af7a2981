// Package gdrive implements provider.Client on top of the Google Drive v3 API
// using a read-only service account.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/MabelMoncy/EduCrateNoteHub/internal/logging"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/metrics"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/provider"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/retry"
)

const (
	typeName   = "gdrive"
	mimeFolder = "application/vnd.google-apps.folder"
	pageSize   = 200

	folderFields = "nextPageToken, files(id, name)"
	fileFields   = "nextPageToken, files(id, name, size, mimeType)"
	metaFields   = "id, name, size, mimeType"
)

// Config holds Drive connection settings.
type Config struct {
	// CredentialsJSON is the service account key file content.
	CredentialsJSON []byte
	// RootFolderID is the folder whose sub-folders are exposed.
	RootFolderID string
	// MaxAttempts bounds retries of transient failures (1 = no retry).
	MaxAttempts int
}

// Client implements provider.Client using Google Drive.
type Client struct {
	files *drive.FilesService
	root  string
	retry retry.Config
}

// New creates a Drive client. Extra options are appended after the
// credentials, so tests can point the client at a fake endpoint.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	var clientOpts []option.ClientOption
	if len(cfg.CredentialsJSON) > 0 {
		creds, err := google.CredentialsFromJSON(ctx, cfg.CredentialsJSON, drive.DriveReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("parse service account credentials: %w", err)
		}
		clientOpts = append(clientOpts, option.WithCredentials(creds))
	}
	clientOpts = append(clientOpts, opts...)

	srv, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	rc := retry.DefaultConfig()
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}

	return &Client{
		files: srv.Files,
		root:  cfg.RootFolderID,
		retry: rc,
	}, nil
}

// Root returns the configured root folder id.
func (c *Client) Root() string { return c.root }

// Type returns "gdrive".
func (c *Client) Type() string { return typeName }

// Close is a no-op for Drive clients.
func (c *Client) Close() error { return nil }

// ListChildFolders lists non-trashed folders under parentID ordered by name.
func (c *Client) ListChildFolders(ctx context.Context, parentID string) ([]provider.FolderRef, error) {
	q := childQuery(parentID, mimeFolder)

	var folders []provider.FolderRef
	err := c.eachPage(ctx, "list_folders", q, folderFields, func(files []*drive.File) {
		for _, f := range files {
			folders = append(folders, provider.FolderRef{ID: f.Id, Name: f.Name})
		}
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

// ListChildFiles lists non-trashed files of mimeType under parentID ordered by name.
func (c *Client) ListChildFiles(ctx context.Context, parentID, mimeType string) ([]provider.FileRecord, error) {
	q := childQuery(parentID, mimeType)

	var records []provider.FileRecord
	err := c.eachPage(ctx, "list_files", q, fileFields, func(files []*drive.File) {
		for _, f := range files {
			records = append(records, toRecord(f))
		}
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetMetadata fetches name and size of a single file.
func (c *Client) GetMetadata(ctx context.Context, fileID string) (*provider.FileRecord, error) {
	f, err := call(ctx, c, "get_metadata", func() (*drive.File, error) {
		return c.files.Get(fileID).
			Fields(metaFields).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}
	rec := toRecord(f)
	return &rec, nil
}

// GetContentStream opens the file's bytes. Only the request is retried;
// once the body is handed out, a broken stream is the caller's problem.
func (c *Client) GetContentStream(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := call(ctx, c, "get_content", func() (*http.Response, error) {
		return c.files.Get(fileID).
			SupportsAllDrives(true).
			Context(ctx).
			Download()
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// SearchByNameSubstring runs a "name contains" query limited to one page.
func (c *Client) SearchByNameSubstring(ctx context.Context, term, mimeType string, limit int) ([]provider.FileRecord, error) {
	q := searchQuery(term, mimeType)

	list, err := call(ctx, c, "search", func() (*drive.FileList, error) {
		return c.files.List().
			Q(q).
			Fields(fileFields).
			PageSize(int64(limit)).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}

	records := make([]provider.FileRecord, 0, len(list.Files))
	for _, f := range list.Files {
		if len(records) == limit {
			break
		}
		records = append(records, toRecord(f))
	}
	return records, nil
}

// ViewerURL returns Drive's own preview page for the file.
func (c *Client) ViewerURL(_ context.Context, fileID string) (string, error) {
	return "https://drive.google.com/file/d/" + url.PathEscape(fileID) + "/preview", nil
}

// DownloadURL returns Drive's direct download link for the file.
func (c *Client) DownloadURL(_ context.Context, fileID string) (string, error) {
	v := url.Values{}
	v.Set("export", "download")
	v.Set("id", fileID)
	return "https://drive.google.com/uc?" + v.Encode(), nil
}

func (c *Client) eachPage(ctx context.Context, op, q string, fields googleapi.Field, fn func([]*drive.File)) error {
	pageToken := ""
	for {
		list, err := call(ctx, c, op, func() (*drive.FileList, error) {
			req := c.files.List().
				Q(q).
				Fields(fields).
				OrderBy("name").
				PageSize(pageSize).
				SupportsAllDrives(true).
				IncludeItemsFromAllDrives(true).
				Context(ctx)
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}
			return req.Do()
		})
		if err != nil {
			return err
		}
		fn(list.Files)
		if list.NextPageToken == "" {
			return nil
		}
		pageToken = list.NextPageToken
	}
}

// call runs fn with retries on transient failures, records metrics and
// returns errors classified onto the provider sentinels.
func call[T any](ctx context.Context, c *Client, op string, fn func() (T, error)) (T, error) {
	cfg := c.retry
	cfg.OnRetry = func(attempt int, err error) {
		metrics.RecordUpstreamRetry(typeName, op)
		logging.WithContext(ctx).Warn("drive call failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	start := time.Now()
	res, err := retry.DoWithResult(ctx, cfg, func() (T, error) {
		r, err := fn()
		if err != nil {
			err = classify(err)
			if errors.Is(err, provider.ErrTransient) && ctx.Err() == nil {
				return r, retry.Retryable(err)
			}
		}
		return r, err
	})
	metrics.RecordUpstreamOperation(typeName, op, time.Since(start), err == nil)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("drive %s: %w", op, err)
	}
	return res, nil
}

// classify maps Drive API errors onto the provider failure classes.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", provider.ErrTransient, err)
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		// Network-level failure before Drive answered.
		return fmt.Errorf("%w: %w", provider.ErrTransient, err)
	}

	switch {
	case gerr.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %w", provider.ErrNotFound, err)
	case gerr.Code == http.StatusForbidden && !isRateLimited(gerr):
		return fmt.Errorf("%w: %w", provider.ErrPermissionDenied, err)
	case gerr.Code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", provider.ErrPermissionDenied, err)
	case gerr.Code == http.StatusForbidden,
		gerr.Code == http.StatusTooManyRequests,
		gerr.Code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", provider.ErrTransient, err)
	default:
		return err
	}
}

func isRateLimited(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "backendError":
			return true
		}
	}
	return false
}

func childQuery(parentID, mimeType string) string {
	return fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false",
		escape(parentID), escape(mimeType))
}

func searchQuery(term, mimeType string) string {
	return fmt.Sprintf("name contains '%s' and mimeType = '%s' and trashed = false",
		escape(term), escape(mimeType))
}

// escape quotes a value for a Drive query string literal.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func toRecord(f *drive.File) provider.FileRecord {
	mt := f.MimeType
	if mt == "" {
		mt = provider.MimePDF
	}
	return provider.FileRecord{
		ID:       f.Id,
		Name:     f.Name,
		Size:     f.Size,
		MimeType: mt,
	}
}
