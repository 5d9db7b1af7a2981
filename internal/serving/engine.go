// Package serving decides how view and download requests are satisfied
// (proxy the bytes or hand the client to the provider) and shapes file
// listings for the outward JSON API.
package serving

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"regexp"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/MabelMoncy/EduCrateNoteHub/internal/logging"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/metrics"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/provider"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/query"
)

const (
	// DefaultThreshold is the largest file proxied through this service (9 MiB).
	DefaultThreshold int64 = 9 * 1024 * 1024
	// DefaultSearchLimit caps search results.
	DefaultSearchLimit = 10
)

var (
	// ErrInvalidIdentifier is returned for ids outside [A-Za-z0-9_-]+.
	// No upstream call is made.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrUpstream wraps every provider failure. The wrapped cause is for
	// server-side logs only.
	ErrUpstream = errors.New("upstream failure")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidID reports whether id may be passed to the provider.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Action is the kind of file request being resolved.
type Action string

const (
	ActionView     Action = "view"
	ActionDownload Action = "download"
)

// Resolution is the outcome of resolving a view or download.
// Exactly one of Redirect or Body is set.
type Resolution struct {
	// Redirect is the provider-hosted URL to send the client to.
	Redirect string

	ContentType        string
	ContentDisposition string
	ContentLength      int64
	// Body is the upstream content stream; the caller must close it.
	Body io.ReadCloser
}

// IsRedirect reports whether the client should be redirected.
func (r *Resolution) IsRedirect() bool { return r.Redirect != "" }

// File is the outward-facing file record.
type File struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        string `json:"size"`
	ViewURL     string `json:"viewUrl"`
	DownloadURL string `json:"downloadUrl"`
}

// Config tunes the engine.
type Config struct {
	// Threshold is the size above which files are redirected instead of proxied.
	Threshold int64
	// SearchLimit caps the number of search results.
	SearchLimit int
}

// Engine resolves file requests against a provider.Client.
type Engine struct {
	client      provider.Client
	threshold   int64
	searchLimit int
}

// New creates an Engine. Zero config values fall back to the defaults.
func New(client provider.Client, cfg Config) *Engine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}
	return &Engine{
		client:      client,
		threshold:   cfg.Threshold,
		searchLimit: cfg.SearchLimit,
	}
}

// Threshold returns the configured proxy size limit.
func (e *Engine) Threshold() int64 { return e.threshold }

// ResolveView streams files up to the threshold inline and redirects larger
// ones to the provider's viewer.
func (e *Engine) ResolveView(ctx context.Context, fileID string) (*Resolution, error) {
	return e.resolve(ctx, ActionView, fileID)
}

// ResolveDownload streams files up to the threshold as attachments and
// redirects larger ones to the provider's download link.
func (e *Engine) ResolveDownload(ctx context.Context, fileID string) (*Resolution, error) {
	return e.resolve(ctx, ActionDownload, fileID)
}

func (e *Engine) resolve(ctx context.Context, action Action, fileID string) (*Resolution, error) {
	if !ValidID(fileID) {
		return nil, ErrInvalidIdentifier
	}

	meta, err := e.client.GetMetadata(ctx, fileID)
	if err != nil {
		return nil, upstream(err)
	}
	if meta.MimeType != provider.MimePDF {
		return nil, upstream(fmt.Errorf("%w: %s has type %q", provider.ErrNotFound, fileID, meta.MimeType))
	}

	if meta.Size > e.threshold {
		var target string
		if action == ActionView {
			target, err = e.client.ViewerURL(ctx, fileID)
		} else {
			target, err = e.client.DownloadURL(ctx, fileID)
		}
		if err != nil {
			return nil, upstream(err)
		}
		metrics.RecordServeDecision(string(action), true)
		logging.WithContext(ctx).Debug("redirecting large file",
			zap.String("action", string(action)),
			zap.String("file_id", fileID),
			zap.Int64("size", meta.Size))
		return &Resolution{Redirect: target}, nil
	}

	body, err := e.client.GetContentStream(ctx, fileID)
	if err != nil {
		return nil, upstream(err)
	}
	metrics.RecordServeDecision(string(action), false)

	return &Resolution{
		ContentType:        provider.MimePDF,
		ContentDisposition: disposition(action, meta.Name),
		ContentLength:      max(meta.Size, 0),
		Body:               body,
	}, nil
}

func disposition(action Action, name string) string {
	if action == ActionView {
		return `inline; filename="` + url.PathEscape(name) + `"`
	}
	if d := mime.FormatMediaType("attachment", map[string]string{"filename": name}); d != "" {
		return d
	}
	return "attachment"
}

// ListFolders returns the folders under the provider root.
func (e *Engine) ListFolders(ctx context.Context) ([]provider.FolderRef, error) {
	folders, err := e.client.ListChildFolders(ctx, e.client.Root())
	if err != nil {
		return nil, upstream(err)
	}
	if folders == nil {
		folders = []provider.FolderRef{}
	}
	return folders, nil
}

// ListFiles returns the shaped PDFs directly inside folderID.
func (e *Engine) ListFiles(ctx context.Context, folderID string) ([]File, error) {
	if !ValidID(folderID) {
		return nil, ErrInvalidIdentifier
	}
	records, err := e.client.ListChildFiles(ctx, folderID, provider.MimePDF)
	if err != nil {
		return nil, upstream(err)
	}
	return ShapeFileList(records), nil
}

// Search sanitizes raw and returns up to the search limit of shaped PDFs.
// Inputs that sanitize to nothing return an empty list without calling the
// provider.
func (e *Engine) Search(ctx context.Context, raw string) ([]File, error) {
	q, err := query.Sanitize(raw)
	if err != nil {
		metrics.RecordSearch("rejected")
		return nil, err
	}
	if q.Empty() {
		metrics.RecordSearch("empty")
		return []File{}, nil
	}

	metrics.RecordSearch("upstream")
	records, err := e.client.SearchByNameSubstring(ctx, q.Term, provider.MimePDF, e.searchLimit)
	if err != nil {
		return nil, upstream(err)
	}
	if len(records) > e.searchLimit {
		records = records[:e.searchLimit]
	}
	return ShapeFileList(records), nil
}

// ShapeFileList converts provider records to outward records, preserving order.
func ShapeFileList(records []provider.FileRecord) []File {
	return lo.Map(records, func(r provider.FileRecord, _ int) File {
		return File{
			ID:          r.ID,
			Name:        r.Name,
			Size:        FormatSize(r.Size),
			ViewURL:     "/api/view/" + r.ID,
			DownloadURL: "/api/download/" + r.ID,
		}
	})
}

func upstream(err error) error {
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}
