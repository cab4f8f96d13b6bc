package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHubClient implements the Client interface against the GitHub v3 API.
type GitHubClient struct {
	api      GitHubAPI
	config   Config
	authOnce sync.Once
}

// NewGitHubClient creates a new GitHub client with the provided
// configuration. Without a token the client only reaches public
// repositories. A BaseURL selects a GitHub Enterprise instance.
func NewGitHubClient(config Config) (*GitHubClient, error) {
	var client *github.Client

	if config.Token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: config.Token},
		)
		tc := oauth2.NewClient(context.Background(), ts)
		client = github.NewClient(tc)
	} else {
		client = github.NewClient(nil)
	}

	if config.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(config.BaseURL, config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to set GitHub Enterprise URL: %w", err)
		}
	}

	return &GitHubClient{
		api:    wrapGitHubClient(client),
		config: config,
	}, nil
}

// mapError translates a go-github error into the package taxonomy and
// fires the auth-invalid signal when the credentials were rejected.
func (g *GitHubClient) mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		mapped := statusError(er.Response.StatusCode, nil)
		if apiErr, ok := mapped.(*APIError); ok && apiErr.Message == "" {
			apiErr.Message = er.Message
		}
		if errors.Is(mapped, ErrAuthInvalid) {
			g.signalAuthInvalid()
		}
		return fmt.Errorf("%s: %w", op, mapped)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (g *GitHubClient) signalAuthInvalid() {
	g.authOnce.Do(func() {
		if g.config.OnAuthInvalid != nil {
			g.config.OnAuthInvalid()
		}
	})
}

// ListDirectory returns the shallow contents of one directory.
func (g *GitHubClient) ListDirectory(ctx context.Context, path string) ([]ContentEntry, error) {
	fileContent, dirContent, resp, err := g.api.Repositories.GetContents(ctx, g.config.Owner, g.config.Repo, path, nil)
	if err != nil {
		return nil, g.mapError("failed to list directory", err)
	}
	closeResponse(resp)

	// Listing a file path returns the single file rather than an error.
	if dirContent == nil && fileContent != nil {
		return []ContentEntry{githubContentEntry(fileContent)}, nil
	}

	entries := make([]ContentEntry, 0, len(dirContent))
	for _, content := range dirContent {
		entries = append(entries, githubContentEntry(content))
	}
	return entries, nil
}

func githubContentEntry(c *github.RepositoryContent) ContentEntry {
	entryType := c.GetType()
	if entryType != TypeDir {
		entryType = TypeFile
	}
	entry := ContentEntry{
		Path:     c.GetPath(),
		Name:     c.GetName(),
		Type:     entryType,
		SHA:      c.GetSHA(),
		Size:     int64(c.GetSize()),
		Encoding: c.GetEncoding(),
	}
	if c.Content != nil {
		entry.Content = *c.Content
	}
	return entry
}

// ListAllFiles lists every file under path via the recursive tree endpoint,
// falling back to a shallow listing when the fast path fails.
func (g *GitHubClient) ListAllFiles(ctx context.Context, path string) (*TreeListing, error) {
	listing, err := g.listTree(ctx, path)
	if err != nil {
		return fallbackListing(ctx, g.ListDirectory, path, err)
	}
	return listing, nil
}

func (g *GitHubClient) listTree(ctx context.Context, path string) (*TreeListing, error) {
	info, err := g.GetRepositoryInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve default branch: %w", err)
	}

	tree, resp, err := g.api.Git.GetTree(ctx, g.config.Owner, g.config.Repo, info.DefaultBranch, true)
	if err != nil {
		return nil, g.mapError("failed to get repository tree", err)
	}
	closeResponse(resp)

	listing := &TreeListing{Truncated: tree.GetTruncated()}
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		listing.Entries = append(listing.Entries, TreeEntry{
			Path: entry.GetPath(),
			Name: nameFromPath(entry.GetPath()),
			Type: TypeFile,
			SHA:  entry.GetSHA(),
			Size: int64(entry.GetSize()),
		})
	}
	listing.Entries = scopeTree(listing.Entries, path)
	return listing, nil
}

// ReadFile fetches a text file and decodes its base64 transport encoding.
func (g *GitHubClient) ReadFile(ctx context.Context, path string) (string, error) {
	fileContent, _, resp, err := g.api.Repositories.GetContents(ctx, g.config.Owner, g.config.Repo, path, nil)
	if err != nil {
		return "", g.mapError("failed to read file", err)
	}
	closeResponse(resp)

	if fileContent == nil {
		return "", fmt.Errorf("path is not a file: %s", path)
	}
	content, err := fileContent.GetContent()
	if err != nil {
		return "", fmt.Errorf("failed to decode file content: %w", err)
	}
	return content, nil
}

// ReadFileBytes fetches a file's raw bytes plus an extension-inferred MIME type.
func (g *GitHubClient) ReadFileBytes(ctx context.Context, path string) ([]byte, string, error) {
	content, err := g.ReadFile(ctx, path)
	if err != nil {
		return nil, "", err
	}
	return []byte(content), mimeTypeForPath(path), nil
}

// statSHA fetches the current content SHA for path. Returns ErrNotFound
// (wrapped) when the path does not exist.
func (g *GitHubClient) statSHA(ctx context.Context, path string) (string, error) {
	fileContent, _, resp, err := g.api.Repositories.GetContents(ctx, g.config.Owner, g.config.Repo, path, nil)
	if err != nil {
		return "", g.mapError("failed to look up content hash", err)
	}
	closeResponse(resp)

	if fileContent == nil {
		return "", fmt.Errorf("path is not a file: %s", path)
	}
	return fileContent.GetSHA(), nil
}

// CreateFile creates a new text file. The request carries no SHA, so the
// backend rejects it when a file already exists at path.
func (g *GitHubClient) CreateFile(ctx context.Context, path, content, message string) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
	}
	_, resp, err := g.api.Repositories.CreateFile(ctx, g.config.Owner, g.config.Repo, path, opts)
	if err != nil {
		return g.mapError("failed to create file", err)
	}
	closeResponse(resp)
	return nil
}

// UpdateFile replaces a file's content, guarded by the caller's SHA.
func (g *GitHubClient) UpdateFile(ctx context.Context, path, content, message, sha string) error {
	return g.writeFile(ctx, path, []byte(content), message, sha)
}

// UploadBinary writes raw bytes, creating the file when it does not exist.
func (g *GitHubClient) UploadBinary(ctx context.Context, path string, data []byte, message, sha string) error {
	if sha == "" {
		current, err := g.statSHA(ctx, path)
		switch {
		case errors.Is(err, ErrNotFound):
			return g.CreateFile(ctx, path, string(data), message)
		case err != nil:
			return err
		}
		sha = current
	}
	return g.writeFile(ctx, path, data, message, sha)
}

func (g *GitHubClient) writeFile(ctx context.Context, path string, data []byte, message, sha string) error {
	if sha == "" {
		current, err := g.statSHA(ctx, path)
		if err != nil {
			return err
		}
		sha = current
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: data,
		SHA:     github.String(sha),
	}
	_, resp, err := g.api.Repositories.UpdateFile(ctx, g.config.Owner, g.config.Repo, path, opts)
	if err != nil {
		return g.mapError("failed to update file", err)
	}
	closeResponse(resp)
	return nil
}

// DeleteFile removes a file, guarded by the caller's SHA.
func (g *GitHubClient) DeleteFile(ctx context.Context, path, sha, message string) error {
	if sha == "" {
		current, err := g.statSHA(ctx, path)
		if err != nil {
			return err
		}
		sha = current
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		SHA:     github.String(sha),
	}
	_, resp, err := g.api.Repositories.DeleteFile(ctx, g.config.Owner, g.config.Repo, path, opts)
	if err != nil {
		return g.mapError("failed to delete file", err)
	}
	closeResponse(resp)
	return nil
}

// GetRepositoryInfo retrieves metadata about the bound repository.
func (g *GitHubClient) GetRepositoryInfo(ctx context.Context) (*Info, error) {
	ghRepo, resp, err := g.api.Repositories.Get(ctx, g.config.Owner, g.config.Repo)
	if err != nil {
		return nil, g.mapError("failed to get repository info", err)
	}
	closeResponse(resp)

	perms := ghRepo.GetPermissions()
	owner := ghRepo.GetOwner().GetLogin()
	if owner == "" {
		owner = g.config.Owner
	}
	return &Info{
		ID:            strconv.FormatInt(ghRepo.GetID(), 10),
		Owner:         owner,
		Name:          ghRepo.GetName(),
		FullName:      ghRepo.GetFullName(),
		Description:   ghRepo.GetDescription(),
		DefaultBranch: ghRepo.GetDefaultBranch(),
		URL:           ghRepo.GetHTMLURL(),
		Private:       ghRepo.GetPrivate(),
		CanPush:       perms["push"],
		CanAdmin:      perms["admin"],
	}, nil
}

// VerifyToken checks that the configured token resolves to a user. Used at
// login time; a rejected token surfaces as ErrAuthInvalid.
func (g *GitHubClient) VerifyToken(ctx context.Context) (string, error) {
	user, resp, err := g.api.Users.Get(ctx, "")
	if err != nil {
		return "", g.mapError("failed to verify token", err)
	}
	closeResponse(resp)
	return user.GetLogin(), nil
}

// DiscoverContentDirectories scans for directories holding Markdown files.
func (g *GitHubClient) DiscoverContentDirectories(ctx context.Context) []string {
	return discoverContentDirs(ctx, g.ListDirectory)
}

// DiscoverImageDirectories scans for directories holding images.
func (g *GitHubClient) DiscoverImageDirectories(ctx context.Context) []string {
	return discoverImageDirs(ctx, g.ListDirectory)
}

// DiscoverSiteURL sniffs the deployed site's base URL from config files.
func (g *GitHubClient) DiscoverSiteURL(ctx context.Context) string {
	return discoverSiteURL(ctx, g.ReadFile)
}

// closeResponse closes a go-github response body. Responses from mocks may
// carry a nil body.
func closeResponse(resp *github.Response) {
	if resp == nil || resp.Response == nil || resp.Body == nil {
		return
	}
	_ = resp.Body.Close()
}
