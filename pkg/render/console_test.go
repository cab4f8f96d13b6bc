package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tranthanhman/AstroCM/pkg/repository"
)

func newTestRenderer() *ConsoleRenderer {
	return &ConsoleRenderer{EnableColors: false}
}

func TestEntriesRendersDirsFirst(t *testing.T) {
	var buf bytes.Buffer
	entries := []repository.ContentEntry{
		{Name: "a.md", Type: repository.TypeFile, Size: 12, SHA: "abcdef1234567890"},
		{Name: "sub", Type: repository.TypeDir},
	}

	newTestRenderer().Entries(entries, &buf)
	out := buf.String()

	dirIdx := strings.Index(out, "sub/")
	fileIdx := strings.Index(out, "a.md")
	if dirIdx < 0 || fileIdx < 0 {
		t.Fatalf("Expected both entries in the output:\n%s", out)
	}
	if dirIdx > fileIdx {
		t.Errorf("Directories must render before files:\n%s", out)
	}
	if !strings.Contains(out, "abcdef12") {
		t.Errorf("Expected the shortened SHA in the output:\n%s", out)
	}
}

func TestListingFootnotes(t *testing.T) {
	var buf bytes.Buffer
	listing := &repository.TreeListing{
		Entries:   []repository.TreeEntry{{Path: "posts/a.md", Size: 1}},
		Truncated: true,
	}

	newTestRenderer().Listing(listing, &buf)
	out := buf.String()

	if !strings.Contains(out, "1 files") {
		t.Errorf("Expected a file count:\n%s", out)
	}
	if !strings.Contains(out, "truncated") {
		t.Errorf("Expected a truncation footnote:\n%s", out)
	}

	buf.Reset()
	listing.Truncated = false
	listing.Degraded = true
	newTestRenderer().Listing(listing, &buf)
	if !strings.Contains(buf.String(), "top level only") {
		t.Errorf("Expected a degraded footnote:\n%s", buf.String())
	}
}

func TestDirectories(t *testing.T) {
	var buf bytes.Buffer
	newTestRenderer().Directories("Content directories", []string{"posts", "docs"}, &buf)
	out := buf.String()

	if !strings.Contains(out, "1. posts") || !strings.Contains(out, "2. docs") {
		t.Errorf("Expected a ranked list:\n%s", out)
	}

	buf.Reset()
	newTestRenderer().Directories("Image directories", nil, &buf)
	if !strings.Contains(buf.String(), "(none found)") {
		t.Errorf("Expected a placeholder for an empty result:\n%s", buf.String())
	}
}

func TestInfo(t *testing.T) {
	var buf bytes.Buffer
	newTestRenderer().Info(&repository.Info{
		FullName:      "owner/site",
		DefaultBranch: "main",
		Private:       true,
		CanPush:       true,
	}, &buf)
	out := buf.String()

	for _, want := range []string{"owner/site", "main", "private", "yes"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in the output:\n%s", want, out)
		}
	}
}

func TestShortSHA(t *testing.T) {
	if got := shortSHA("abc"); got != "abc" {
		t.Errorf("A short SHA passes through, got %q", got)
	}
	if got := shortSHA("0123456789abcdef"); got != "01234567" {
		t.Errorf("Expected the 8-char prefix, got %q", got)
	}
}

func TestTruncTransformer(t *testing.T) {
	trunc := truncTransformer(5)
	if got := trunc("short"); got != "short" {
		t.Errorf("A value within the width passes through, got %q", got)
	}
	if got := trunc("much-too-long"); got != "much…" {
		t.Errorf("Expected an ellipsized value, got %q", got)
	}
}
