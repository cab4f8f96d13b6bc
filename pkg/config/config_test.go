package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/tranthanhman/AstroCM/pkg/repository"
)

// fakeRepo implements SettingsReader and SettingsWriter over an in-memory
// file map with generation-counted SHAs.
type fakeRepo struct {
	files map[string]fakeFile

	uploadedSHA  string
	uploadedData []byte
	uploadErr    error
}

type fakeFile struct {
	content string
	sha     string
}

func (f *fakeRepo) ReadFile(ctx context.Context, path string) (string, error) {
	file, ok := f.files[path]
	if !ok {
		return "", fmt.Errorf("file not found: %w", repository.ErrNotFound)
	}
	return file.content, nil
}

func (f *fakeRepo) ListDirectory(ctx context.Context, path string) ([]repository.ContentEntry, error) {
	var entries []repository.ContentEntry
	for p, file := range f.files {
		entries = append(entries, repository.ContentEntry{
			Path: p, Name: p, Type: repository.TypeFile, SHA: file.sha,
		})
	}
	return entries, nil
}

func (f *fakeRepo) UploadBinary(ctx context.Context, path string, data []byte, message, sha string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploadedSHA = sha
	f.uploadedData = data
	return nil
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	repo := &fakeRepo{}

	s, err := Load(context.Background(), repo)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if s.ContentDir != "src/content/posts" || s.ImagesDir != "public/images" {
		t.Errorf("Unexpected defaults: %+v", s)
	}
	if s.Version != CurrentVersion {
		t.Errorf("Defaults must carry the current version, got %d", s.Version)
	}
}

func TestLoad_ParsesAndRecordsSHA(t *testing.T) {
	repo := &fakeRepo{files: map[string]fakeFile{
		SettingsPath: {
			content: `{"version":1,"contentDir":"content/blog","imagesDir":"static/img"}`,
			sha:     "abc123",
		},
	}}

	s, err := Load(context.Background(), repo)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if s.ContentDir != "content/blog" {
		t.Errorf("Unexpected content dir: %s", s.ContentDir)
	}
	if s.sha != "abc123" {
		t.Errorf("Load must record the file SHA for later saves, got %q", s.sha)
	}
}

func TestLoad_MalformedFileIsAnError(t *testing.T) {
	repo := &fakeRepo{files: map[string]fakeFile{
		SettingsPath: {content: `{not json`},
	}}

	if _, err := Load(context.Background(), repo); err == nil {
		t.Fatal("Expected an error for a malformed settings file")
	}
}

func TestLoad_UnsupportedVersionIsAnError(t *testing.T) {
	repo := &fakeRepo{files: map[string]fakeFile{
		SettingsPath: {content: `{"version":99,"contentDir":"c","imagesDir":"i"}`},
	}}

	if _, err := Load(context.Background(), repo); err == nil {
		t.Fatal("Expected an error for a future schema version")
	}
}

func TestValidate_RejectsAbsolutePaths(t *testing.T) {
	s := Default()
	s.ContentDir = "/etc/content"
	if err := s.Validate(); err == nil {
		t.Fatal("Expected an error for an absolute content dir")
	}
}

func TestSave_UsesLoadedSHA(t *testing.T) {
	repo := &fakeRepo{files: map[string]fakeFile{
		SettingsPath: {content: `{"version":1,"contentDir":"c","imagesDir":"i"}`, sha: "abc123"},
	}}

	s, err := Load(context.Background(), repo)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if err := s.Save(context.Background(), repo, "update settings"); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if repo.uploadedSHA != "abc123" {
		t.Errorf("Save must reuse the SHA observed at load time, sent %q", repo.uploadedSHA)
	}

	var round Settings
	if err := json.Unmarshal(repo.uploadedData, &round); err != nil {
		t.Fatalf("Save wrote invalid JSON: %v", err)
	}
	if round.Version != CurrentVersion {
		t.Errorf("Save must stamp the current version, wrote %d", round.Version)
	}
}

func TestSave_ConcurrentEditSurfacesConflict(t *testing.T) {
	repo := &fakeRepo{uploadErr: fmt.Errorf("precondition failed: %w", repository.ErrConflict)}

	s := Default()
	err := s.Save(context.Background(), repo, "")
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("Expected ErrConflict to pass through, got %v", err)
	}
}

func TestCommitMessage(t *testing.T) {
	s := Default()
	got := s.CommitMessage("posts/a.md")
	if got != "content: update posts/a.md" {
		t.Errorf("Unexpected commit message: %q", got)
	}

	s.CommitTemplate = ""
	if got := s.CommitMessage("posts/a.md"); got != "Update posts/a.md" {
		t.Errorf("Unexpected fallback message: %q", got)
	}
}
