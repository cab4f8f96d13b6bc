package repository

import (
	"context"
	"log/slog"
	"mime"
	"path"
	"sort"
	"strings"
)

// scopeTree filters tree entries to those under the given path prefix. An
// empty prefix keeps everything. The prefix itself is a directory, so
// "posts" matches "posts/a.md" but not "posts-archive/b.md".
func scopeTree(entries []TreeEntry, prefix string) []TreeEntry {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return entries
	}
	scoped := make([]TreeEntry, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Path, prefix+"/") {
			scoped = append(scoped, e)
		}
	}
	return scoped
}

// fallbackListing degrades ListAllFiles to a shallow, non-recursive listing
// of the requested path when the recursive fast path fails. The result is a
// strict subset of what the fast path would return for nested directories,
// which is why Degraded is set on it.
func fallbackListing(ctx context.Context, list func(context.Context, string) ([]ContentEntry, error), dir string, cause error) (*TreeListing, error) {
	slog.Debug("recursive tree listing failed, falling back to shallow listing",
		"path", dir,
		"error", cause)

	entries, err := list(ctx, dir)
	if err != nil {
		return nil, err
	}

	listing := &TreeListing{Degraded: true}
	for _, e := range entries {
		if e.Type != TypeFile {
			continue
		}
		listing.Entries = append(listing.Entries, TreeEntry{
			Path: e.Path,
			Name: e.Name,
			Type: TypeFile,
			SHA:  e.SHA,
			Size: e.Size,
		})
	}
	return listing, nil
}

// SortEntries orders directory entries for presentation: directories before
// files, then case-insensitive name order. Backends guarantee no ordering
// of their own.
func SortEntries(entries []ContentEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type == TypeDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}

// SortTreeEntries orders tree entries by path, case-insensitive.
func SortTreeEntries(entries []TreeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Path) < strings.ToLower(entries[j].Path)
	})
}

// mimeTypeForPath infers a MIME type from the file extension, falling back
// to application/octet-stream. Server-provided types are frequently absent
// on the raw byte-fetch paths, so the extension is the only signal used.
func mimeTypeForPath(p string) string {
	if t := mime.TypeByExtension(path.Ext(p)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// nameFromPath returns the last segment of a repository-relative path.
func nameFromPath(p string) string {
	return path.Base(strings.Trim(p, "/"))
}
