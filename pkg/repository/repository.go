// Package repository treats a remote Git-hosted repository as a flat,
// path-addressed document store for Markdown posts and image assets. It
// defines a provider-agnostic Client contract implemented by adapters for
// GitHub, GitLab, and the Gitea/Gogs family, plus shared algorithms for
// recursive listing, content-directory discovery, and site-URL detection.
//
// Writes use optimistic concurrency: every update or delete carries the
// content SHA the caller last observed for that path, and the backend
// rejects the operation when the remote SHA no longer matches. The client
// holds no locks; the server-side compare-and-swap is the single arbiter.
package repository

import "context"

// Entry types. Backends name these differently ("blob"/"tree" in tree
// listings); adapters normalize to exactly these two values.
const (
	TypeFile = "file"
	TypeDir  = "dir"
)

// ContentEntry is one file or directory as returned by a directory listing
// or a direct file fetch. Entries are snapshots of remote state at call
// time; a competing write invalidates them.
type ContentEntry struct {
	Path     string // Repository-relative path, no leading slash
	Name     string // Last path segment
	Type     string // TypeFile or TypeDir
	SHA      string // Content SHA, the compare-and-swap token (files only)
	Size     int64  // Size in bytes
	Content  string // Inline content when fetched directly, else empty
	Encoding string // Transport encoding of Content, typically "base64"
}

// TreeEntry is the lighter-weight record returned by the recursive tree
// fast path. It never carries inline content and is used for enumeration
// only; a write always needs a fresh per-file SHA.
type TreeEntry struct {
	Path string
	Name string
	Type string
	SHA  string
	Size int64
}

// TreeListing is the result of ListAllFiles. Truncated and Degraded are
// soft conditions propagated as data, never as errors: a truncated tree
// exceeded the backend's server-side limit, and a degraded listing means
// the recursive fast path failed and Entries holds only a shallow,
// non-recursive subset of the requested prefix.
type TreeListing struct {
	Entries   []TreeEntry
	Truncated bool
	Degraded  bool
}

// Info contains metadata about the remote repository. It is an immutable
// snapshot, superseded (not mutated) on refresh.
type Info struct {
	ID            string
	Owner         string
	Name          string
	FullName      string // owner/name
	Description   string
	DefaultBranch string
	URL           string // Web URL to the repository
	Private       bool
	CanPush       bool
	CanAdmin      bool
}

// Client is the contract every backend adapter implements. Content
// operations propagate errors for explicit handling (see errors.go for the
// taxonomy); discovery operations are best-effort heuristics that swallow
// failures and degrade to empty results.
type Client interface {
	// ListDirectory returns the shallow contents of one directory.
	// Returns ErrNotFound if the path does not exist.
	ListDirectory(ctx context.Context, path string) ([]ContentEntry, error)

	// ListAllFiles returns every file under the given path prefix, using a
	// single recursive tree call when the backend supports one. When the
	// fast path fails the result degrades to a shallow listing of the
	// requested path with Degraded set; when the backend reports the tree
	// as incomplete, Truncated is set and the partial result is returned.
	// Entries are not guaranteed sorted; see SortTreeEntries.
	ListAllFiles(ctx context.Context, path string) (*TreeListing, error)

	// ReadFile fetches a text file and decodes its transport encoding to a
	// UTF-8 string. Returns ErrNotFound if the path does not exist.
	ReadFile(ctx context.Context, path string) (string, error)

	// ReadFileBytes fetches a file's raw bytes together with a MIME type
	// inferred from the file extension (backends frequently omit one).
	ReadFileBytes(ctx context.Context, path string) ([]byte, string, error)

	// CreateFile creates a new text file. Strictly create-new, never
	// upsert: returns ErrConflict if a file already exists at path.
	CreateFile(ctx context.Context, path, content, message string) error

	// UpdateFile replaces a text file's content. sha is the content SHA
	// the caller last observed; ErrConflict is returned when the remote
	// SHA differs. An empty sha makes the adapter look up the current one
	// immediately before the write (the server CAS still arbitrates).
	UpdateFile(ctx context.Context, path, content, message, sha string) error

	// UploadBinary writes raw bytes to path, creating the file when it
	// does not exist yet. sha is optional precisely because the caller may
	// not know whether the target exists; when empty the adapter resolves
	// the current state first.
	UploadBinary(ctx context.Context, path string, data []byte, message, sha string) error

	// DeleteFile removes a file. Returns ErrConflict on SHA mismatch and
	// ErrNotFound if the path is already absent.
	DeleteFile(ctx context.Context, path, sha, message string) error

	// GetRepositoryInfo fetches repository metadata.
	GetRepositoryInfo(ctx context.Context) (*Info, error)

	// VerifyToken checks that the configured token resolves to a user and
	// returns that user's login name. A rejected token surfaces as
	// ErrAuthInvalid. Used at login time, before a token is stored.
	VerifyToken(ctx context.Context) (string, error)

	// DiscoverContentDirectories returns a ranked list of directories
	// likely to hold Markdown content. Never fails; degrades to empty.
	DiscoverContentDirectories(ctx context.Context) []string

	// DiscoverImageDirectories returns a ranked list of directories likely
	// to hold images. Never fails; degrades to empty.
	DiscoverImageDirectories(ctx context.Context) []string

	// DiscoverSiteURL returns the deployed site's base URL when one can be
	// sniffed from conventional config files, else "".
	DiscoverSiteURL(ctx context.Context) string
}

// Config holds common configuration for repository clients.
type Config struct {
	// Token is the personal access token used for authentication. Leave
	// empty for anonymous access to public repositories.
	Token string

	// BaseURL is the API base URL. Required for Gitea, Gogs, and
	// self-hosted GitHub/GitLab instances; leave empty for the hosted
	// github.com / gitlab.com endpoints.
	BaseURL string

	// Owner and Repo identify the repository this client is bound to.
	Owner string
	Repo  string

	// OnAuthInvalid, when set, is invoked once if any call is rejected
	// with an authentication failure. This is the host application's cue
	// to force re-authentication; the failing call still returns
	// ErrAuthInvalid on its own.
	OnAuthInvalid func()
}
