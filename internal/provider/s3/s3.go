// Package s3 implements provider.Client for S3-compatible object stores
// (AWS S3, MinIO). Folders are key prefixes; opaque ids are the base64url
// encoding of the object key or prefix.
package s3

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/MabelMoncy/EduCrateNoteHub/internal/logging"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/metrics"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/provider"
)

const typeName = "s3"

// Config holds S3 connection settings.
type Config struct {
	Endpoint   string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Region     string
	RootPrefix string
	PresignTTL time.Duration
}

// Client implements provider.Client using S3/MinIO.
type Client struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	rootPrefix string
	presignTTL time.Duration
}

// New creates a new S3 client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	c := newClient(client, cfg)

	// Verify bucket is reachable; listing will surface the error per request.
	start := time.Now()
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)})
	c.observe("head_bucket", start, err)
	if err != nil {
		logging.Error("bucket check failed", zap.String("bucket", cfg.Bucket), zap.Error(err))
	}

	return c, nil
}

func newClient(client *s3.Client, cfg Config) *Client {
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Client{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		rootPrefix: normalizePrefix(cfg.RootPrefix),
		presignTTL: ttl,
	}
}

// Root returns the id of the root prefix.
func (c *Client) Root() string { return EncodeID(c.rootPrefix) }

// Type returns "s3".
func (c *Client) Type() string { return typeName }

// Close is a no-op for S3 clients.
func (c *Client) Close() error { return nil }

// ListChildFolders returns the common prefixes directly under parentID.
func (c *Client) ListChildFolders(ctx context.Context, parentID string) ([]provider.FolderRef, error) {
	prefix, err := c.prefixFor(parentID)
	if err != nil {
		return nil, err
	}

	var folders []provider.FolderRef
	err = c.list(ctx, "list_folders", prefix, "/", func(page *s3.ListObjectsV2Output) bool {
		for _, cp := range page.CommonPrefixes {
			p := aws.ToString(cp.Prefix)
			folders = append(folders, provider.FolderRef{
				ID:   EncodeID(p),
				Name: path.Base(strings.TrimSuffix(p, "/")),
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

// ListChildFiles returns objects directly under parentID whose extension
// maps to mimeType.
func (c *Client) ListChildFiles(ctx context.Context, parentID, mimeType string) ([]provider.FileRecord, error) {
	prefix, err := c.prefixFor(parentID)
	if err != nil {
		return nil, err
	}

	var records []provider.FileRecord
	err = c.list(ctx, "list_files", prefix, "/", func(page *s3.ListObjectsV2Output) bool {
		records = append(records, objectsOfType(page.Contents, mimeType)...)
		return true
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetMetadata heads the object named by fileID.
func (c *Client) GetMetadata(ctx context.Context, fileID string) (*provider.FileRecord, error) {
	key, err := c.keyFor(fileID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	c.observe("head_object", start, err)
	if err != nil {
		return nil, fmt.Errorf("head object %s: %w", key, classify(err))
	}

	return &provider.FileRecord{
		ID:       fileID,
		Name:     path.Base(key),
		Size:     aws.ToInt64(out.ContentLength),
		MimeType: mimeOf(key),
	}, nil
}

// GetContentStream opens the object body.
func (c *Client) GetContentStream(ctx context.Context, fileID string) (io.ReadCloser, error) {
	key, err := c.keyFor(fileID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	c.observe("get_object", start, err)
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, classify(err))
	}
	return out.Body, nil
}

// SearchByNameSubstring walks every object under the root prefix and
// returns the first limit files whose base name contains term, ignoring case.
func (c *Client) SearchByNameSubstring(ctx context.Context, term, mimeType string, limit int) ([]provider.FileRecord, error) {
	needle := strings.ToLower(term)

	var records []provider.FileRecord
	err := c.list(ctx, "search", c.rootPrefix, "", func(page *s3.ListObjectsV2Output) bool {
		matches := lo.Filter(objectsOfType(page.Contents, mimeType), func(r provider.FileRecord, _ int) bool {
			return strings.Contains(strings.ToLower(r.Name), needle)
		})
		records = append(records, matches...)
		return len(records) < limit
	})
	if err != nil {
		return nil, err
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// ViewerURL returns a presigned GET URL that renders inline.
func (c *Client) ViewerURL(ctx context.Context, fileID string) (string, error) {
	return c.presign(ctx, fileID, "inline")
}

// DownloadURL returns a presigned GET URL that downloads as an attachment.
func (c *Client) DownloadURL(ctx context.Context, fileID string) (string, error) {
	return c.presign(ctx, fileID, "attachment")
}

func (c *Client) presign(ctx context.Context, fileID, disposition string) (string, error) {
	key, err := c.keyFor(fileID)
	if err != nil {
		return "", err
	}

	start := time.Now()
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(c.bucket),
		Key:                        aws.String(key),
		ResponseContentType:        aws.String(mimeOf(key)),
		ResponseContentDisposition: aws.String(mime.FormatMediaType(disposition, map[string]string{"filename": path.Base(key)})),
	}, s3.WithPresignExpires(c.presignTTL))
	c.observe("presign_get", start, err)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, classify(err))
	}
	return req.URL, nil
}

// list pages through ListObjectsV2 until fn returns false or pages run out.
func (c *Client) list(ctx context.Context, op, prefix, delimiter string, fn func(*s3.ListObjectsV2Output) bool) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}

	start := time.Now()
	p := s3.NewListObjectsV2Paginator(c.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			c.observe(op, start, err)
			return fmt.Errorf("list %s: %w", prefix, classify(err))
		}
		if !fn(page) {
			break
		}
	}
	c.observe(op, start, nil)
	return nil
}

func (c *Client) observe(op string, start time.Time, err error) {
	metrics.RecordUpstreamOperation(typeName, op, time.Since(start), err == nil)
}

// prefixFor decodes a folder id and confines it to the root prefix.
func (c *Client) prefixFor(folderID string) (string, error) {
	prefix, err := DecodeID(folderID)
	if err != nil {
		return "", err
	}
	prefix = normalizePrefix(prefix)
	if !strings.HasPrefix(prefix, c.rootPrefix) {
		return "", fmt.Errorf("folder outside root: %w", provider.ErrNotFound)
	}
	return prefix, nil
}

// keyFor decodes a file id and confines it to the root prefix.
func (c *Client) keyFor(fileID string) (string, error) {
	key, err := DecodeID(fileID)
	if err != nil {
		return "", err
	}
	if key == "" || strings.HasSuffix(key, "/") || !strings.HasPrefix(key, c.rootPrefix) {
		return "", fmt.Errorf("key outside root: %w", provider.ErrNotFound)
	}
	return key, nil
}

// EncodeID turns an object key or prefix into an opaque id made only of
// [A-Za-z0-9_-].
func EncodeID(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// DecodeID reverses EncodeID. Ids that do not decode name nothing.
func DecodeID(id string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", fmt.Errorf("decode id: %w", provider.ErrNotFound)
	}
	return string(b), nil
}

func normalizePrefix(p string) string {
	p = strings.TrimPrefix(p, "/")
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func mimeOf(key string) string {
	return mime.TypeByExtension(path.Ext(key))
}

func objectsOfType(objects []types.Object, mimeType string) []provider.FileRecord {
	var records []provider.FileRecord
	for _, obj := range objects {
		key := aws.ToString(obj.Key)
		if strings.HasSuffix(key, "/") {
			continue
		}
		if mimeType != "" && !strings.HasPrefix(mimeOf(key), mimeType) {
			continue
		}
		records = append(records, provider.FileRecord{
			ID:       EncodeID(key),
			Name:     path.Base(key),
			Size:     aws.ToInt64(obj.Size),
			MimeType: mimeType,
		})
	}
	return records
}

// classify maps S3 API errors onto the provider failure classes.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", provider.ErrTransient, err)
	}

	var nsk *types.NoSuchKey
	var nf *types.NotFound
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsk) || errors.As(err, &nf) || errors.As(err, &nsb) {
		return fmt.Errorf("%w: %w", provider.ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: %w", provider.ErrNotFound, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %w", provider.ErrPermissionDenied, err)
		}
	}
	return fmt.Errorf("%w: %w", provider.ErrTransient, err)
}
