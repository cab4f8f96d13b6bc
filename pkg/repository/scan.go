package repository

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// DirectoryLister is the single primitive each adapter supplies to the
// shared discovery scanner: list one directory, shallow.
type DirectoryLister func(ctx context.Context, path string) ([]ContentEntry, error)

// maxScanDepth bounds the discovery traversal so the call count stays
// within backend rate budgets. Depth 4 covers the supported site-generator
// conventions (e.g. src/content/blog/posts).
const maxScanDepth = 4

// ignoredDirs are never descended into: version-control metadata, build
// output, and dependency caches.
var ignoredDirs = map[string]struct{}{
	".git":         {},
	".github":      {},
	".astro":       {},
	".next":        {},
	".cache":       {},
	".vercel":      {},
	"node_modules": {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"coverage":     {},
}

// contentDirNames and imageDirNames are the conventional directory names
// ranked ahead of other hits during discovery.
var (
	contentDirNames = []string{"posts", "content", "blog", "articles", "docs"}
	imageDirNames   = []string{"images", "assets", "img", "media", "static", "uploads"}
)

var (
	markdownExts = []string{".md", ".mdx"}
	imageExts    = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".avif", ".ico"}
)

func hasAnySuffix(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// scanHit records a qualifying directory and the depth it was found at.
type scanHit struct {
	path  string
	depth int
}

// scanDirectories walks the repository breadth-first from the root, up to
// maxScanDepth levels deep, and returns every directory that DIRECTLY
// contains at least one file matching the predicate. Files in
// subdirectories do not count toward the parent. Sibling directories at
// each level are listed concurrently; a failure to list any one directory
// is swallowed and that branch yields nothing. The scan itself never fails.
func scanDirectories(ctx context.Context, list DirectoryLister, match func(name string) bool) []scanHit {
	var hits []scanHit
	level := []string{""}

	for depth := 1; depth <= maxScanDepth && len(level) > 0; depth++ {
		results := make([][]ContentEntry, len(level))

		var wg sync.WaitGroup
		for i, dir := range level {
			wg.Add(1)
			go func(index int, d string) {
				defer wg.Done()
				entries, err := list(ctx, d)
				if err != nil {
					slog.Debug("discovery scan skipping directory", "path", d, "error", err)
					return
				}
				results[index] = entries
			}(i, dir)
		}
		wg.Wait()

		var next []string
		for i, entries := range results {
			dir := level[i]
			hit := false
			for _, e := range entries {
				switch e.Type {
				case TypeFile:
					if !hit && match(e.Name) {
						hit = true
					}
				case TypeDir:
					if _, ignored := ignoredDirs[e.Name]; ignored {
						continue
					}
					next = append(next, e.Path)
				}
			}
			// The repository root is not itself a candidate; a stray
			// README.md should not suggest the root as a content home.
			if hit && dir != "" {
				hits = append(hits, scanHit{path: dir, depth: depth})
			}
		}
		level = next
	}

	return hits
}

// rankHits orders discovery results: directories whose last path segment is
// a conventional name first, then shallower depth, then alphabetical.
func rankHits(hits []scanHit, preferredNames []string) []string {
	preferred := func(h scanHit) bool {
		name := strings.ToLower(nameFromPath(h.path))
		for _, p := range preferredNames {
			if name == p {
				return true
			}
		}
		return false
	}

	sort.SliceStable(hits, func(i, j int) bool {
		pi, pj := preferred(hits[i]), preferred(hits[j])
		if pi != pj {
			return pi
		}
		if hits[i].depth != hits[j].depth {
			return hits[i].depth < hits[j].depth
		}
		return hits[i].path < hits[j].path
	})

	paths := make([]string, len(hits))
	for i, h := range hits {
		paths[i] = h.path
	}
	return paths
}

// discoverContentDirs returns a ranked list of directories likely to hold
// Markdown content. Best effort; never fails.
func discoverContentDirs(ctx context.Context, list DirectoryLister) []string {
	hits := scanDirectories(ctx, list, func(name string) bool {
		return hasAnySuffix(name, markdownExts)
	})
	return rankHits(hits, contentDirNames)
}

// discoverImageDirs returns a ranked list of directories likely to hold
// images. public/images is promoted to the front when present, as the
// dominant convention in the supported site-generator ecosystem.
func discoverImageDirs(ctx context.Context, list DirectoryLister) []string {
	hits := scanDirectories(ctx, list, func(name string) bool {
		return hasAnySuffix(name, imageExts)
	})
	ranked := rankHits(hits, imageDirNames)

	for i, p := range ranked {
		if p == "public/images" && i > 0 {
			copy(ranked[1:i+1], ranked[:i])
			ranked[0] = p
			break
		}
	}
	return ranked
}
