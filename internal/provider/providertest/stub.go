// Package providertest provides an in-memory provider.Client for tests.
package providertest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/MabelMoncy/EduCrateNoteHub/internal/provider"
)

// Stub is a provider.Client backed by maps. Err, when set, is returned by
// every call. Calls counts every method invocation except Root/Type/Close.
type Stub struct {
	RootID  string
	Folders []provider.FolderRef
	// Files maps folder id to its files.
	Files map[string][]provider.FileRecord
	// Content maps file id to its bytes.
	Content map[string]string
	Err     error

	mu       sync.Mutex
	calls    int
	searches []string
}

// Calls returns how many upstream calls were made.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Searches returns the terms passed to SearchByNameSubstring.
func (s *Stub) Searches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.searches...)
}

func (s *Stub) hit() error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.Err
}

func (s *Stub) Root() string { return s.RootID }
func (s *Stub) Type() string { return "stub" }
func (s *Stub) Close() error { return nil }

func (s *Stub) ListChildFolders(_ context.Context, parentID string) ([]provider.FolderRef, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	if parentID != s.RootID {
		return nil, nil
	}
	return s.Folders, nil
}

func (s *Stub) ListChildFiles(_ context.Context, parentID, _ string) ([]provider.FileRecord, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return s.Files[parentID], nil
}

func (s *Stub) GetMetadata(_ context.Context, fileID string) (*provider.FileRecord, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	if r, ok := s.find(fileID); ok {
		return &r, nil
	}
	return nil, provider.ErrNotFound
}

func (s *Stub) GetContentStream(_ context.Context, fileID string) (io.ReadCloser, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	content, ok := s.Content[fileID]
	if !ok {
		return nil, provider.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func (s *Stub) SearchByNameSubstring(_ context.Context, term, _ string, limit int) ([]provider.FileRecord, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.searches = append(s.searches, term)
	s.mu.Unlock()

	var out []provider.FileRecord
	for _, folder := range s.Folders {
		for _, r := range s.Files[folder.ID] {
			if len(out) == limit {
				return out, nil
			}
			if strings.Contains(strings.ToLower(r.Name), strings.ToLower(term)) {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *Stub) ViewerURL(_ context.Context, fileID string) (string, error) {
	if err := s.hit(); err != nil {
		return "", err
	}
	return "https://provider.example/view/" + fileID, nil
}

func (s *Stub) DownloadURL(_ context.Context, fileID string) (string, error) {
	if err := s.hit(); err != nil {
		return "", err
	}
	return "https://provider.example/download/" + fileID, nil
}

func (s *Stub) find(fileID string) (provider.FileRecord, bool) {
	for _, files := range s.Files {
		for _, r := range files {
			if r.ID == fileID {
				return r, true
			}
		}
	}
	return provider.FileRecord{}, false
}
