package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/MabelMoncy/EduCrateNoteHub/internal/config"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/provider"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/provider/providertest"
)

func TestList(t *testing.T) {
	stub := &providertest.Stub{
		RootID: "root",
		Folders: []provider.FolderRef{
			{ID: "a", Name: "Algebra"},
			{ID: "b", Name: "Biology"},
			{ID: "c", Name: "Chemistry"},
		},
		Files: map[string][]provider.FileRecord{
			"a": {
				{ID: "1", Name: "one.pdf", Size: 1024},
				{ID: "2", Name: "two.pdf", Size: 2048},
				{ID: "3", Name: "three.pdf", Size: 4096},
			},
		},
	}

	var out bytes.Buffer
	if err := list(context.Background(), &out, stub, 2); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"one.pdf", "1.0 KB", "two.pdf", "... 1 more", "(no PDFs)", "... 1 more folders"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "three.pdf") || strings.Contains(got, "Chemistry") {
		t.Errorf("output exceeds limit:\n%s", got)
	}
}

func TestListEmptyRoot(t *testing.T) {
	var out bytes.Buffer
	if err := list(context.Background(), &out, &providertest.Stub{RootID: "root"}, 5); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "no sub-folders") {
		t.Errorf("output = %q", out.String())
	}
}

func TestListError(t *testing.T) {
	stub := &providertest.Stub{RootID: "root", Err: provider.ErrNotFound}
	err := list(context.Background(), &bytes.Buffer{}, stub, 5)
	if h := hint(err); !strings.Contains(h, "Share it") {
		t.Errorf("hint(%v) = %q", err, h)
	}
}

func TestHint(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: ROOT_FOLDER_ID is required", config.ErrConfiguration), ".env"},
		{provider.ErrPermissionDenied, "Drive API"},
		{provider.ErrTransient, "try again"},
		{fmt.Errorf("boom"), ""},
	}
	for _, tt := range tests {
		got := hint(tt.err)
		if tt.want == "" && got != "" || !strings.Contains(got, tt.want) {
			t.Errorf("hint(%v) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}

func TestServiceAccountEmail(t *testing.T) {
	if got := serviceAccountEmail([]byte(`{"client_email":"notes@proj.iam.gserviceaccount.com"}`)); got != "notes@proj.iam.gserviceaccount.com" {
		t.Errorf("got %q", got)
	}
	if got := serviceAccountEmail([]byte("{")); got != "" {
		t.Errorf("malformed: got %q", got)
	}
}
