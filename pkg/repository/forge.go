package repository

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
)

// ForgeDialect captures how one member of the Gitea/Gogs API family
// differs from the others. The two dialects are near-identical, so the
// differences live here as configuration data rather than as separate
// adapter implementations.
type ForgeDialect struct {
	// Name identifies the dialect ("gitea" or "gogs").
	Name string

	// APIPrefix is prepended to every endpoint path.
	APIPrefix string

	// AuthScheme is the Authorization header scheme for personal access
	// tokens.
	AuthScheme string

	// SupportsRecursiveTree reports whether the git/trees endpoint honors
	// recursive expansion. When false, ListAllFiles goes straight to the
	// shallow fallback.
	SupportsRecursiveTree bool
}

// DialectGitea targets the Gitea v1 API.
var DialectGitea = ForgeDialect{
	Name:                  "gitea",
	APIPrefix:             "/api/v1",
	AuthScheme:            "token",
	SupportsRecursiveTree: true,
}

// DialectGogs targets the Gogs v1 API, a subset of Gitea's without the
// recursive tree endpoint.
var DialectGogs = ForgeDialect{
	Name:                  "gogs",
	APIPrefix:             "/api/v1",
	AuthScheme:            "token",
	SupportsRecursiveTree: false,
}

// ForgeClient implements the Client interface for Gitea and Gogs servers.
// One concrete type serves both; the ForgeDialect supplies the differences.
// Reads and writes go through separate transports: only reads may retry.
type ForgeClient struct {
	httpRead  *retryablehttp.Client
	httpWrite *retryablehttp.Client
	dialect   ForgeDialect
	config    Config
	baseURL   string
	authOnce  sync.Once
}

// NewForgeClient creates a client for a Gitea or Gogs server. BaseURL is
// required: these are always self-hosted instances.
func NewForgeClient(dialect ForgeDialect, config Config) (*ForgeClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("%s requires a base URL", dialect.Name)
	}

	readClient := retryablehttp.NewClient()
	readClient.RetryMax = 2
	readClient.Logger = nil

	// Never retry a mutation, not even on a transport error: a write whose
	// connection dropped may have landed server-side, and a blind replay
	// would hit the compare-and-swap check and misreport the outcome as a
	// conflict.
	writeClient := retryablehttp.NewClient()
	writeClient.RetryMax = 0
	writeClient.Logger = nil

	return &ForgeClient{
		httpRead:  readClient,
		httpWrite: writeClient,
		dialect:   dialect,
		config:    config,
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
	}, nil
}

func (f *ForgeClient) signalAuthInvalid() {
	f.authOnce.Do(func() {
		if f.config.OnAuthInvalid != nil {
			f.config.OnAuthInvalid()
		}
	})
}

// repoPath builds an endpoint path under the bound repository.
func (f *ForgeClient) repoPath(parts ...string) string {
	segs := []string{"repos", f.config.Owner, f.config.Repo}
	segs = append(segs, parts...)
	return "/" + strings.Join(segs, "/")
}

// contentPath escapes a repository-relative file path for use in a URL,
// preserving the slashes between segments.
func contentPath(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// do performs one API call and decodes a JSON response into out (which may
// be nil when the body carries no meaning beyond success). Non-2xx statuses
// map onto the package error taxonomy.
func (f *ForgeClient) do(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, f.baseURL+f.dialect.APIPrefix+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if f.config.Token != "" {
		req.Header.Set("Authorization", f.dialect.AuthScheme+" "+f.config.Token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	client := f.httpRead
	if method != http.MethodGet {
		client = f.httpWrite
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := statusError(resp.StatusCode, respBody); err != nil {
		if errors.Is(err, ErrAuthInvalid) {
			f.signalAuthInvalid()
		}
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Wire shapes shared by the Gitea and Gogs contents endpoints.

type forgeContent struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"` // "file", "dir", "symlink", "submodule"
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type forgeTreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "blob" or "tree"
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

type forgeTree struct {
	SHA       string           `json:"sha"`
	Truncated bool             `json:"truncated"`
	Entries   []forgeTreeEntry `json:"tree"`
}

type forgeRepo struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
	Owner         struct {
		Login    string `json:"login"`
		UserName string `json:"username"`
	} `json:"owner"`
	Permissions struct {
		Admin bool `json:"admin"`
		Push  bool `json:"push"`
	} `json:"permissions"`
}

type forgeUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

type forgeWriteRequest struct {
	Message string `json:"message"`
	Content string `json:"content,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

func forgeContentEntry(c forgeContent) ContentEntry {
	entryType := c.Type
	if entryType != TypeDir {
		entryType = TypeFile
	}
	return ContentEntry{
		Path:     c.Path,
		Name:     c.Name,
		Type:     entryType,
		SHA:      c.SHA,
		Size:     c.Size,
		Content:  c.Content,
		Encoding: c.Encoding,
	}
}

// ListDirectory returns the shallow contents of one directory.
func (f *ForgeClient) ListDirectory(ctx context.Context, path string) ([]ContentEntry, error) {
	endpoint := f.repoPath("contents")
	if path != "" {
		endpoint = f.repoPath("contents", contentPath(path))
	}

	// The contents endpoint returns an array for a directory and a single
	// object for a file path.
	var raw json.RawMessage
	if err := f.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] != '[' {
		var single forgeContent
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("failed to decode directory listing: %w", err)
		}
		return []ContentEntry{forgeContentEntry(single)}, nil
	}

	var contents []forgeContent
	if err := json.Unmarshal(raw, &contents); err != nil {
		return nil, fmt.Errorf("failed to decode directory listing: %w", err)
	}

	entries := make([]ContentEntry, 0, len(contents))
	for _, c := range contents {
		entries = append(entries, forgeContentEntry(c))
	}
	return entries, nil
}

// ListAllFiles lists every file under path via the recursive tree endpoint
// when the dialect supports one, else degrades to a shallow listing.
func (f *ForgeClient) ListAllFiles(ctx context.Context, path string) (*TreeListing, error) {
	if !f.dialect.SupportsRecursiveTree {
		return fallbackListing(ctx, f.ListDirectory, path,
			fmt.Errorf("%s does not expose a recursive tree endpoint", f.dialect.Name))
	}

	listing, err := f.listTree(ctx, path)
	if err != nil {
		return fallbackListing(ctx, f.ListDirectory, path, err)
	}
	return listing, nil
}

func (f *ForgeClient) listTree(ctx context.Context, path string) (*TreeListing, error) {
	info, err := f.GetRepositoryInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve default branch: %w", err)
	}

	var tree forgeTree
	endpoint := f.repoPath("git", "trees", url.PathEscape(info.DefaultBranch)) + "?recursive=true"
	if err := f.do(ctx, http.MethodGet, endpoint, nil, &tree); err != nil {
		return nil, fmt.Errorf("failed to get repository tree: %w", err)
	}

	listing := &TreeListing{Truncated: tree.Truncated}
	for _, entry := range tree.Entries {
		if entry.Type != "blob" {
			continue
		}
		listing.Entries = append(listing.Entries, TreeEntry{
			Path: entry.Path,
			Name: nameFromPath(entry.Path),
			Type: TypeFile,
			SHA:  entry.SHA,
			Size: entry.Size,
		})
	}
	listing.Entries = scopeTree(listing.Entries, path)
	return listing, nil
}

// getContent fetches one file's metadata and inline content.
func (f *ForgeClient) getContent(ctx context.Context, path string) (*forgeContent, error) {
	var content forgeContent
	endpoint := f.repoPath("contents", contentPath(path))
	if err := f.do(ctx, http.MethodGet, endpoint, nil, &content); err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", path, err)
	}
	if content.Type == TypeDir {
		return nil, fmt.Errorf("path is not a file: %s", path)
	}
	return &content, nil
}

// ReadFile fetches a text file and decodes its base64 transport encoding.
func (f *ForgeClient) ReadFile(ctx context.Context, path string) (string, error) {
	data, _, err := f.ReadFileBytes(ctx, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadFileBytes fetches a file's raw bytes plus an extension-inferred MIME type.
func (f *ForgeClient) ReadFileBytes(ctx context.Context, path string) ([]byte, string, error) {
	content, err := f.getContent(ctx, path)
	if err != nil {
		return nil, "", err
	}

	switch content.Encoding {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(content.Content)
		if err != nil {
			return nil, "", fmt.Errorf("failed to decode base64 content: %w", err)
		}
		return decoded, mimeTypeForPath(path), nil
	default:
		return []byte(content.Content), mimeTypeForPath(path), nil
	}
}

// statSHA fetches the current content SHA for path.
func (f *ForgeClient) statSHA(ctx context.Context, path string) (string, error) {
	content, err := f.getContent(ctx, path)
	if err != nil {
		return "", err
	}
	return content.SHA, nil
}

// CreateFile creates a new text file. The request carries no SHA, so the
// backend rejects it when a file already exists at path.
func (f *ForgeClient) CreateFile(ctx context.Context, path, content, message string) error {
	payload := forgeWriteRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString([]byte(content)),
	}
	endpoint := f.repoPath("contents", contentPath(path))
	if err := f.do(ctx, http.MethodPost, endpoint, payload, nil); err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// UpdateFile replaces a file's content, guarded by the caller's SHA.
func (f *ForgeClient) UpdateFile(ctx context.Context, path, content, message, sha string) error {
	return f.writeFile(ctx, path, []byte(content), message, sha)
}

// UploadBinary writes raw bytes, creating the file when it does not exist.
func (f *ForgeClient) UploadBinary(ctx context.Context, path string, data []byte, message, sha string) error {
	if sha == "" {
		current, err := f.statSHA(ctx, path)
		switch {
		case errors.Is(err, ErrNotFound):
			return f.CreateFile(ctx, path, string(data), message)
		case err != nil:
			return err
		}
		sha = current
	}
	return f.writeFile(ctx, path, data, message, sha)
}

func (f *ForgeClient) writeFile(ctx context.Context, path string, data []byte, message, sha string) error {
	if sha == "" {
		current, err := f.statSHA(ctx, path)
		if err != nil {
			return err
		}
		sha = current
	}

	payload := forgeWriteRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		SHA:     sha,
	}
	endpoint := f.repoPath("contents", contentPath(path))
	if err := f.do(ctx, http.MethodPut, endpoint, payload, nil); err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	return nil
}

// DeleteFile removes a file, guarded by the caller's SHA.
func (f *ForgeClient) DeleteFile(ctx context.Context, path, sha, message string) error {
	if sha == "" {
		current, err := f.statSHA(ctx, path)
		if err != nil {
			return err
		}
		sha = current
	}

	payload := forgeWriteRequest{Message: message, SHA: sha}
	endpoint := f.repoPath("contents", contentPath(path))
	if err := f.do(ctx, http.MethodDelete, endpoint, payload, nil); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GetRepositoryInfo retrieves metadata about the bound repository.
func (f *ForgeClient) GetRepositoryInfo(ctx context.Context) (*Info, error) {
	var repo forgeRepo
	if err := f.do(ctx, http.MethodGet, f.repoPath(), nil, &repo); err != nil {
		return nil, fmt.Errorf("failed to get repository info: %w", err)
	}

	owner := repo.Owner.Login
	if owner == "" {
		owner = repo.Owner.UserName
	}
	if owner == "" {
		owner = f.config.Owner
	}
	return &Info{
		ID:            strconv.FormatInt(repo.ID, 10),
		Owner:         owner,
		Name:          repo.Name,
		FullName:      repo.FullName,
		Description:   repo.Description,
		DefaultBranch: repo.DefaultBranch,
		URL:           repo.HTMLURL,
		Private:       repo.Private,
		CanPush:       repo.Permissions.Push,
		CanAdmin:      repo.Permissions.Admin,
	}, nil
}

// VerifyToken checks that the configured token resolves to a user. Used at
// login time; a rejected token surfaces as ErrAuthInvalid.
func (f *ForgeClient) VerifyToken(ctx context.Context) (string, error) {
	var user forgeUser
	if err := f.do(ctx, http.MethodGet, "/user", nil, &user); err != nil {
		return "", fmt.Errorf("failed to verify token: %w", err)
	}
	return user.Login, nil
}

// DiscoverContentDirectories scans for directories holding Markdown files.
func (f *ForgeClient) DiscoverContentDirectories(ctx context.Context) []string {
	return discoverContentDirs(ctx, f.ListDirectory)
}

// DiscoverImageDirectories scans for directories holding images.
func (f *ForgeClient) DiscoverImageDirectories(ctx context.Context) []string {
	return discoverImageDirs(ctx, f.ListDirectory)
}

// DiscoverSiteURL sniffs the deployed site's base URL from config files.
func (f *ForgeClient) DiscoverSiteURL(ctx context.Context) string {
	return discoverSiteURL(ctx, f.ReadFile)
}
