package s3

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/MabelMoncy/EduCrateNoteHub/internal/provider"
)

var tokenRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func offlineClient(rootPrefix string) *Client {
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("access", "secret", ""),
		BaseEndpoint: aws.String("http://localhost:9000"),
		UsePathStyle: true,
	})
	return newClient(client, Config{Bucket: "notes", RootPrefix: rootPrefix})
}

func TestEncodeIDIsTokenSafe(t *testing.T) {
	keys := []string{
		"notes/Semester 1/Data Structures?.pdf",
		"notes/ünïcode/файл.pdf",
		"a",
		"x/y/z/",
	}
	for _, k := range keys {
		id := EncodeID(k)
		if !tokenRe.MatchString(id) {
			t.Errorf("EncodeID(%q) = %q is not token safe", k, id)
		}
		back, err := DecodeID(id)
		if err != nil || back != k {
			t.Errorf("DecodeID(EncodeID(%q)) = %q, %v", k, back, err)
		}
	}
}

func TestDecodeIDRejectsGarbage(t *testing.T) {
	if _, err := DecodeID("a"); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestKeysConfinedToRoot(t *testing.T) {
	c := offlineClient("notes")

	if _, err := c.keyFor(EncodeID("secrets/passwords.pdf")); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("key outside root: err = %v, want ErrNotFound", err)
	}
	if _, err := c.keyFor(EncodeID("notes/math/")); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("folder used as file: err = %v, want ErrNotFound", err)
	}
	key, err := c.keyFor(EncodeID("notes/math/algebra.pdf"))
	if err != nil || key != "notes/math/algebra.pdf" {
		t.Errorf("keyFor = %q, %v", key, err)
	}
	if _, err := c.prefixFor(EncodeID("other/")); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("prefix outside root: err = %v", err)
	}
	if c.Root() != EncodeID("notes/") {
		t.Errorf("Root() = %q", c.Root())
	}
}

func TestObjectsOfTypeFiltersPDFs(t *testing.T) {
	objects := []types.Object{
		{Key: aws.String("notes/math/"), Size: aws.Int64(0)},
		{Key: aws.String("notes/math/algebra.pdf"), Size: aws.Int64(1024)},
		{Key: aws.String("notes/math/README.txt"), Size: aws.Int64(12)},
		{Key: aws.String("notes/math/Calculus.PDF"), Size: aws.Int64(2048)},
	}
	got := objectsOfType(objects, provider.MimePDF)
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(got), got)
	}
	if got[0].Name != "algebra.pdf" || got[0].Size != 1024 {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Name != "Calculus.PDF" {
		t.Errorf("second = %+v", got[1])
	}
}

func TestPresignedURLs(t *testing.T) {
	c := offlineClient("notes")
	id := EncodeID("notes/math/algebra notes.pdf")

	view, err := c.ViewerURL(context.Background(), id)
	if err != nil {
		t.Fatalf("ViewerURL: %v", err)
	}
	u, err := url.Parse(view)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.HasPrefix(u.Path, "/notes/notes/math/") {
		t.Errorf("path = %q", u.Path)
	}
	if d := u.Query().Get("response-content-disposition"); !strings.HasPrefix(d, "inline") {
		t.Errorf("disposition = %q", d)
	}

	dl, err := c.DownloadURL(context.Background(), id)
	if err != nil {
		t.Fatalf("DownloadURL: %v", err)
	}
	du, _ := url.Parse(dl)
	if d := du.Query().Get("response-content-disposition"); !strings.HasPrefix(d, "attachment") {
		t.Errorf("disposition = %q", d)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{&types.NoSuchKey{}, provider.ErrNotFound},
		{&types.NotFound{}, provider.ErrNotFound},
		{&smithy.GenericAPIError{Code: "AccessDenied"}, provider.ErrPermissionDenied},
		{&smithy.GenericAPIError{Code: "SlowDown"}, provider.ErrTransient},
		{errors.New("dial tcp: refused"), provider.ErrTransient},
		{context.Canceled, provider.ErrTransient},
	}
	for _, tt := range tests {
		if got := classify(tt.err); !errors.Is(got, tt.want) {
			t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
