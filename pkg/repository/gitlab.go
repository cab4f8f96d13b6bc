package repository

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitLabClient implements the Client interface against the GitLab API.
// GitLab has no per-file SHA precondition on its commit endpoints; the
// caller's observed hash is passed as last_commit_id, GitLab's native
// optimistic-lock token, and a rejected precondition maps to ErrConflict.
type GitLabClient struct {
	api    GitLabAPI
	config Config

	authOnce sync.Once

	mu            sync.Mutex
	defaultBranch string
}

// NewGitLabClient creates a new GitLab client with the provided
// configuration. A BaseURL selects a self-hosted instance.
func NewGitLabClient(config Config) (*GitLabClient, error) {
	opts := []gitlab.ClientOptionFunc{}
	if config.BaseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(config.BaseURL))
	}

	client, err := gitlab.NewClient(config.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}

	return &GitLabClient{
		api:    wrapGitLabClient(client),
		config: config,
	}, nil
}

func (g *GitLabClient) projectID() string {
	return fmt.Sprintf("%s/%s", g.config.Owner, g.config.Repo)
}

func (g *GitLabClient) signalAuthInvalid() {
	g.authOnce.Do(func() {
		if g.config.OnAuthInvalid != nil {
			g.config.OnAuthInvalid()
		}
	})
}

// mapError translates a client-go error into the package taxonomy. GitLab
// reports precondition failures on its commit endpoints as 400s, so those
// are sniffed by message: a missing file reads "does not exist" while a
// stale last_commit_id or an already-existing file is a conflict.
func (g *GitLabClient) mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var er *gitlab.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		status := er.Response.StatusCode
		var mapped error
		if status == http.StatusBadRequest {
			msg := strings.ToLower(er.Message)
			sentinel := ErrConflict
			if strings.Contains(msg, "does not exist") || strings.Contains(msg, "doesn't exist") {
				sentinel = ErrNotFound
			}
			mapped = &APIError{StatusCode: status, Message: er.Message, sentinel: sentinel}
		} else {
			mapped = statusError(status, nil)
			if apiErr, ok := mapped.(*APIError); ok && apiErr.Message == "" {
				apiErr.Message = er.Message
			}
		}
		if errors.Is(mapped, ErrAuthInvalid) {
			g.signalAuthInvalid()
		}
		return fmt.Errorf("%s: %w", op, mapped)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// branch resolves and memoizes the repository's default branch.
func (g *GitLabClient) branch(ctx context.Context) (string, error) {
	g.mu.Lock()
	cached := g.defaultBranch
	g.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	info, err := g.GetRepositoryInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve default branch: %w", err)
	}

	g.mu.Lock()
	g.defaultBranch = info.DefaultBranch
	g.mu.Unlock()
	return info.DefaultBranch, nil
}

// ListDirectory returns the shallow contents of one directory.
func (g *GitLabClient) ListDirectory(ctx context.Context, path string) ([]ContentEntry, error) {
	opts := &gitlab.ListTreeOptions{
		ListOptions: gitlab.ListOptions{PerPage: 100},
	}
	if path != "" {
		opts.Path = gitlab.Ptr(path)
	}

	nodes, resp, err := g.api.Repositories.ListTree(g.projectID(), opts, gitlab.WithContext(ctx))
	if err != nil {
		return nil, g.mapError("failed to list directory", err)
	}
	closeGitLabResponse(resp)

	// GitLab returns an empty tree (not a 404) for a missing path.
	if len(nodes) == 0 && path != "" {
		return nil, fmt.Errorf("failed to list directory %s: %w", path, ErrNotFound)
	}

	entries := make([]ContentEntry, 0, len(nodes))
	for _, node := range nodes {
		entryType := TypeFile
		if node.Type == "tree" {
			entryType = TypeDir
		}
		entries = append(entries, ContentEntry{
			Path: node.Path,
			Name: node.Name,
			Type: entryType,
			SHA:  node.ID,
		})
	}
	return entries, nil
}

// ListAllFiles lists every file under path. GitLab's tree endpoint is
// recursive and paginated rather than truncating, so Truncated stays false
// and all pages are walked.
func (g *GitLabClient) ListAllFiles(ctx context.Context, path string) (*TreeListing, error) {
	listing, err := g.listTree(ctx, path)
	if err != nil {
		return fallbackListing(ctx, g.ListDirectory, path, err)
	}
	return listing, nil
}

func (g *GitLabClient) listTree(ctx context.Context, path string) (*TreeListing, error) {
	opts := &gitlab.ListTreeOptions{
		Recursive:   gitlab.Ptr(true),
		ListOptions: gitlab.ListOptions{PerPage: 100},
	}

	listing := &TreeListing{}
	page := 1
	for {
		opts.Page = page

		nodes, resp, err := g.api.Repositories.ListTree(g.projectID(), opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, g.mapError("failed to get repository tree", err)
		}
		closeGitLabResponse(resp)

		for _, node := range nodes {
			if node.Type != "blob" {
				continue
			}
			listing.Entries = append(listing.Entries, TreeEntry{
				Path: node.Path,
				Name: nameFromPath(node.Path),
				Type: TypeFile,
				SHA:  node.ID,
			})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
	}

	listing.Entries = scopeTree(listing.Entries, path)
	return listing, nil
}

// getFile fetches one file's metadata and base64 content.
func (g *GitLabClient) getFile(ctx context.Context, path string) (*gitlab.File, error) {
	ref, err := g.branch(ctx)
	if err != nil {
		return nil, err
	}

	file, resp, err := g.api.RepositoryFiles.GetFile(g.projectID(), path, &gitlab.GetFileOptions{
		Ref: gitlab.Ptr(ref),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, g.mapError("failed to get file", err)
	}
	closeGitLabResponse(resp)

	if file == nil {
		return nil, fmt.Errorf("failed to get file %s: %w", path, ErrNotFound)
	}
	return file, nil
}

// ReadFile fetches a text file and decodes its base64 transport encoding.
func (g *GitLabClient) ReadFile(ctx context.Context, path string) (string, error) {
	data, _, err := g.ReadFileBytes(ctx, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadFileBytes fetches a file's raw bytes plus an extension-inferred MIME type.
func (g *GitLabClient) ReadFileBytes(ctx context.Context, path string) ([]byte, string, error) {
	file, err := g.getFile(ctx, path)
	if err != nil {
		return nil, "", err
	}

	decoded, err := base64.StdEncoding.DecodeString(file.Content)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64 content: %w", err)
	}
	return decoded, mimeTypeForPath(path), nil
}

// statSHA returns the file's last commit ID, GitLab's optimistic-lock token.
func (g *GitLabClient) statSHA(ctx context.Context, path string) (string, error) {
	file, err := g.getFile(ctx, path)
	if err != nil {
		return "", err
	}
	return file.LastCommitID, nil
}

// CreateFile creates a new text file; an existing file is a conflict.
func (g *GitLabClient) CreateFile(ctx context.Context, path, content, message string) error {
	ref, err := g.branch(ctx)
	if err != nil {
		return err
	}

	opts := &gitlab.CreateFileOptions{
		Branch:        gitlab.Ptr(ref),
		CommitMessage: gitlab.Ptr(message),
		Content:       gitlab.Ptr(content),
	}
	_, resp, err := g.api.RepositoryFiles.CreateFile(g.projectID(), path, opts, gitlab.WithContext(ctx))
	if err != nil {
		return g.mapError("failed to create file", err)
	}
	closeGitLabResponse(resp)
	return nil
}

// UpdateFile replaces a file's content, guarded by the caller's hash.
func (g *GitLabClient) UpdateFile(ctx context.Context, path, content, message, sha string) error {
	return g.writeFile(ctx, path, gitlab.Ptr(content), nil, message, sha)
}

// UploadBinary writes raw bytes, creating the file when it does not exist.
func (g *GitLabClient) UploadBinary(ctx context.Context, path string, data []byte, message, sha string) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	if sha == "" {
		current, err := g.statSHA(ctx, path)
		switch {
		case errors.Is(err, ErrNotFound):
			ref, berr := g.branch(ctx)
			if berr != nil {
				return berr
			}
			opts := &gitlab.CreateFileOptions{
				Branch:        gitlab.Ptr(ref),
				CommitMessage: gitlab.Ptr(message),
				Content:       gitlab.Ptr(encoded),
				Encoding:      gitlab.Ptr("base64"),
			}
			_, resp, cerr := g.api.RepositoryFiles.CreateFile(g.projectID(), path, opts, gitlab.WithContext(ctx))
			if cerr != nil {
				return g.mapError("failed to create file", cerr)
			}
			closeGitLabResponse(resp)
			return nil
		case err != nil:
			return err
		}
		sha = current
	}
	return g.writeFile(ctx, path, gitlab.Ptr(encoded), gitlab.Ptr("base64"), message, sha)
}

func (g *GitLabClient) writeFile(ctx context.Context, path string, content, encoding *string, message, sha string) error {
	if sha == "" {
		current, err := g.statSHA(ctx, path)
		if err != nil {
			return err
		}
		sha = current
	}

	ref, err := g.branch(ctx)
	if err != nil {
		return err
	}

	opts := &gitlab.UpdateFileOptions{
		Branch:        gitlab.Ptr(ref),
		CommitMessage: gitlab.Ptr(message),
		Content:       content,
		LastCommitID:  gitlab.Ptr(sha),
		Encoding:      encoding,
	}
	_, resp, err := g.api.RepositoryFiles.UpdateFile(g.projectID(), path, opts, gitlab.WithContext(ctx))
	if err != nil {
		return g.mapError("failed to update file", err)
	}
	closeGitLabResponse(resp)
	return nil
}

// DeleteFile removes a file, guarded by the caller's hash.
func (g *GitLabClient) DeleteFile(ctx context.Context, path, sha, message string) error {
	if sha == "" {
		current, err := g.statSHA(ctx, path)
		if err != nil {
			return err
		}
		sha = current
	}

	ref, err := g.branch(ctx)
	if err != nil {
		return err
	}

	opts := &gitlab.DeleteFileOptions{
		Branch:        gitlab.Ptr(ref),
		CommitMessage: gitlab.Ptr(message),
		LastCommitID:  gitlab.Ptr(sha),
	}
	resp, err := g.api.RepositoryFiles.DeleteFile(g.projectID(), path, opts, gitlab.WithContext(ctx))
	if err != nil {
		return g.mapError("failed to delete file", err)
	}
	closeGitLabResponse(resp)
	return nil
}

// GetRepositoryInfo retrieves metadata about the bound project.
func (g *GitLabClient) GetRepositoryInfo(ctx context.Context) (*Info, error) {
	project, resp, err := g.api.Projects.GetProject(g.projectID(), nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, g.mapError("failed to get repository info", err)
	}
	closeGitLabResponse(resp)

	info := &Info{
		ID:            strconv.Itoa(project.ID),
		Owner:         g.config.Owner,
		Name:          project.Name,
		FullName:      project.PathWithNamespace,
		Description:   project.Description,
		DefaultBranch: project.DefaultBranch,
		URL:           project.WebURL,
		Private:       project.Visibility != gitlab.PublicVisibility,
	}
	if project.Permissions != nil && project.Permissions.ProjectAccess != nil {
		access := project.Permissions.ProjectAccess.AccessLevel
		info.CanPush = access >= gitlab.DeveloperPermissions
		info.CanAdmin = access >= gitlab.MaintainerPermissions
	}
	return info, nil
}

// VerifyToken checks that the configured token resolves to a user. Used at
// login time; a rejected token surfaces as ErrAuthInvalid.
func (g *GitLabClient) VerifyToken(ctx context.Context) (string, error) {
	user, resp, err := g.api.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		return "", g.mapError("failed to verify token", err)
	}
	closeGitLabResponse(resp)
	return user.Username, nil
}

// DiscoverContentDirectories scans for directories holding Markdown files.
func (g *GitLabClient) DiscoverContentDirectories(ctx context.Context) []string {
	return discoverContentDirs(ctx, g.ListDirectory)
}

// DiscoverImageDirectories scans for directories holding images.
func (g *GitLabClient) DiscoverImageDirectories(ctx context.Context) []string {
	return discoverImageDirs(ctx, g.ListDirectory)
}

// DiscoverSiteURL sniffs the deployed site's base URL from config files.
func (g *GitLabClient) DiscoverSiteURL(ctx context.Context) string {
	return discoverSiteURL(ctx, g.ReadFile)
}

func closeGitLabResponse(resp *gitlab.Response) {
	if resp == nil || resp.Response == nil || resp.Body == nil {
		return
	}
	_ = resp.Body.Close()
}
