// Package config reads and writes the repository-local settings file.
// The file lives at the repository root as .astrocm.json and records the
// chosen content/image directories, the commit-message template, and the
// deployed site URL. The schema carries a version field; the content
// abstraction layer treats the file as opaque configuration, not as part
// of the content model.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tranthanhman/AstroCM/pkg/repository"
)

// SettingsPath is where the settings file lives inside the repository.
const SettingsPath = ".astrocm.json"

// CurrentVersion is the schema version written by this release.
const CurrentVersion = 1

// Settings is the persisted configuration schema.
type Settings struct {
	Version        int    `json:"version"`
	ContentDir     string `json:"contentDir"`
	ImagesDir      string `json:"imagesDir"`
	CommitTemplate string `json:"commitTemplate,omitempty"`
	SiteURL        string `json:"siteUrl,omitempty"`

	// sha is the content SHA of the loaded file, carried so Save goes
	// through the same compare-and-swap write path as any other content.
	sha string
}

// Default returns the settings used when no file exists yet.
func Default() *Settings {
	return &Settings{
		Version:        CurrentVersion,
		ContentDir:     "src/content/posts",
		ImagesDir:      "public/images",
		CommitTemplate: "content: update {path}",
	}
}

// SettingsReader is the slice of the repository contract Load needs.
type SettingsReader interface {
	ReadFile(ctx context.Context, path string) (string, error)
	ListDirectory(ctx context.Context, path string) ([]repository.ContentEntry, error)
}

// SettingsWriter is the slice of the repository contract Save needs.
type SettingsWriter interface {
	UploadBinary(ctx context.Context, path string, data []byte, message, sha string) error
}

// Load reads the settings file from the repository. A missing file yields
// defaults, not an error; a file that fails to parse or carries an
// unsupported version is an error the caller must surface.
func Load(ctx context.Context, r SettingsReader) (*Settings, error) {
	raw, err := r.ReadFile(ctx, SettingsPath)
	if errors.Is(err, repository.ErrNotFound) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	// Record the file's current SHA so a later Save is CAS-guarded.
	if entries, lerr := r.ListDirectory(ctx, ""); lerr == nil {
		for _, e := range entries {
			if e.Path == SettingsPath {
				s.sha = e.SHA
				break
			}
		}
	}

	return &s, nil
}

// Validate checks schema invariants.
func (s *Settings) Validate() error {
	if s.Version <= 0 || s.Version > CurrentVersion {
		return fmt.Errorf("unsupported settings version %d (newest supported: %d)", s.Version, CurrentVersion)
	}
	if strings.HasPrefix(s.ContentDir, "/") || strings.HasPrefix(s.ImagesDir, "/") {
		return errors.New("settings directories must be repository-relative paths")
	}
	return nil
}

// Save writes the settings back to the repository. The write is guarded by
// the SHA observed at Load time; a concurrent edit of the file surfaces as
// repository.ErrConflict.
func (s *Settings) Save(ctx context.Context, w SettingsWriter, message string) error {
	s.Version = CurrentVersion
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	data = append(data, '\n')

	if message == "" {
		message = "chore: update astrocm settings"
	}
	if err := w.UploadBinary(ctx, SettingsPath, data, message, s.sha); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// CommitMessage expands the commit template for a path. The template's
// {path} placeholder is replaced; an empty template falls back to a plain
// update message.
func (s *Settings) CommitMessage(path string) string {
	if s.CommitTemplate == "" {
		return fmt.Sprintf("Update %s", path)
	}
	return strings.ReplaceAll(s.CommitTemplate, "{path}", path)
}

// ApplyDiscovery fills empty directory settings from the client's
// discovery heuristics. Best effort: when discovery yields nothing the
// defaults stand.
func (s *Settings) ApplyDiscovery(ctx context.Context, client repository.Client) {
	if s.ContentDir == "" || s.ContentDir == Default().ContentDir {
		if dirs := client.DiscoverContentDirectories(ctx); len(dirs) > 0 {
			s.ContentDir = dirs[0]
		}
	}
	if s.ImagesDir == "" || s.ImagesDir == Default().ImagesDir {
		if dirs := client.DiscoverImageDirectories(ctx); len(dirs) > 0 {
			s.ImagesDir = dirs[0]
		}
	}
	if s.SiteURL == "" {
		s.SiteURL = client.DiscoverSiteURL(ctx)
	}
}
