package repository

// This file defines narrow interfaces and lightweight wrappers around the
// external GitHub and GitLab API clients. The adapters depend on these
// instead of the full SDK surface so unit tests can inject deterministic
// mock implementations without real HTTP calls.

import (
	"context"

	"github.com/google/go-github/v57/github"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

/////////////////////////
// GitHub API Interfaces
/////////////////////////

// GitHubRepositoriesService abstracts the subset of repository operations
// used: metadata, contents reads, and contents writes with SHA preconditions.
type GitHubRepositoriesService interface {
	Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error)
	// GetContents retrieves either a file OR a directory listing depending on path.
	GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error)
	CreateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error)
	UpdateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error)
	DeleteFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error)
}

// GitHubGitService abstracts git tree traversal used for the recursive
// listing fast path.
type GitHubGitService interface {
	GetTree(ctx context.Context, owner, repo, sha string, recursive bool) (*github.Tree, *github.Response, error)
}

// GitHubUsersService abstracts the authenticated-user lookup used for token
// verification.
type GitHubUsersService interface {
	Get(ctx context.Context, user string) (*github.User, *github.Response, error)
}

type githubRepositoriesWrapper struct {
	client *github.Client
}

func (w *githubRepositoriesWrapper) Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error) {
	return w.client.Repositories.Get(ctx, owner, repo)
}

func (w *githubRepositoriesWrapper) GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error) {
	return w.client.Repositories.GetContents(ctx, owner, repo, path, opts)
}

func (w *githubRepositoriesWrapper) CreateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error) {
	return w.client.Repositories.CreateFile(ctx, owner, repo, path, opts)
}

func (w *githubRepositoriesWrapper) UpdateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error) {
	return w.client.Repositories.UpdateFile(ctx, owner, repo, path, opts)
}

func (w *githubRepositoriesWrapper) DeleteFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error) {
	return w.client.Repositories.DeleteFile(ctx, owner, repo, path, opts)
}

type githubGitWrapper struct {
	client *github.Client
}

func (w *githubGitWrapper) GetTree(ctx context.Context, owner, repo, sha string, recursive bool) (*github.Tree, *github.Response, error) {
	return w.client.Git.GetTree(ctx, owner, repo, sha, recursive)
}

type githubUsersWrapper struct {
	client *github.Client
}

func (w *githubUsersWrapper) Get(ctx context.Context, user string) (*github.User, *github.Response, error) {
	return w.client.Users.Get(ctx, user)
}

// GitHubAPI groups the narrowed GitHub service interfaces.
type GitHubAPI struct {
	Repositories GitHubRepositoriesService
	Git          GitHubGitService
	Users        GitHubUsersService
}

// wrapGitHubClient constructs GitHubAPI from a *github.Client.
func wrapGitHubClient(c *github.Client) GitHubAPI {
	return GitHubAPI{
		Repositories: &githubRepositoriesWrapper{client: c},
		Git:          &githubGitWrapper{client: c},
		Users:        &githubUsersWrapper{client: c},
	}
}

/////////////////////////
// GitLab API Interfaces
/////////////////////////

// GitLabProjectsService abstracts project metadata retrieval.
type GitLabProjectsService interface {
	GetProject(projectID string, opts *gitlab.GetProjectOptions, options ...gitlab.RequestOptionFunc) (*gitlab.Project, *gitlab.Response, error)
}

// GitLabRepositoriesService abstracts tree listing operations.
type GitLabRepositoriesService interface {
	ListTree(projectID string, opts *gitlab.ListTreeOptions, options ...gitlab.RequestOptionFunc) ([]*gitlab.TreeNode, *gitlab.Response, error)
}

// GitLabUsersService abstracts the authenticated-user lookup used for token
// verification.
type GitLabUsersService interface {
	CurrentUser(options ...gitlab.RequestOptionFunc) (*gitlab.User, *gitlab.Response, error)
}

// GitLabRepositoryFilesService abstracts single-file reads and the commit
// endpoints used for writes.
type GitLabRepositoryFilesService interface {
	GetFile(projectID string, fileName string, opts *gitlab.GetFileOptions, options ...gitlab.RequestOptionFunc) (*gitlab.File, *gitlab.Response, error)
	CreateFile(projectID string, fileName string, opts *gitlab.CreateFileOptions, options ...gitlab.RequestOptionFunc) (*gitlab.FileInfo, *gitlab.Response, error)
	UpdateFile(projectID string, fileName string, opts *gitlab.UpdateFileOptions, options ...gitlab.RequestOptionFunc) (*gitlab.FileInfo, *gitlab.Response, error)
	DeleteFile(projectID string, fileName string, opts *gitlab.DeleteFileOptions, options ...gitlab.RequestOptionFunc) (*gitlab.Response, error)
}

type gitlabProjectsWrapper struct {
	client *gitlab.Client
}

func (w *gitlabProjectsWrapper) GetProject(projectID string, opts *gitlab.GetProjectOptions, options ...gitlab.RequestOptionFunc) (*gitlab.Project, *gitlab.Response, error) {
	return w.client.Projects.GetProject(projectID, opts, options...)
}

type gitlabRepositoriesWrapper struct {
	client *gitlab.Client
}

func (w *gitlabRepositoriesWrapper) ListTree(projectID string, opts *gitlab.ListTreeOptions, options ...gitlab.RequestOptionFunc) ([]*gitlab.TreeNode, *gitlab.Response, error) {
	return w.client.Repositories.ListTree(projectID, opts, options...)
}

type gitlabRepositoryFilesWrapper struct {
	client *gitlab.Client
}

func (w *gitlabRepositoryFilesWrapper) GetFile(projectID string, fileName string, opts *gitlab.GetFileOptions, options ...gitlab.RequestOptionFunc) (*gitlab.File, *gitlab.Response, error) {
	return w.client.RepositoryFiles.GetFile(projectID, fileName, opts, options...)
}

func (w *gitlabRepositoryFilesWrapper) CreateFile(projectID string, fileName string, opts *gitlab.CreateFileOptions, options ...gitlab.RequestOptionFunc) (*gitlab.FileInfo, *gitlab.Response, error) {
	return w.client.RepositoryFiles.CreateFile(projectID, fileName, opts, options...)
}

func (w *gitlabRepositoryFilesWrapper) UpdateFile(projectID string, fileName string, opts *gitlab.UpdateFileOptions, options ...gitlab.RequestOptionFunc) (*gitlab.FileInfo, *gitlab.Response, error) {
	return w.client.RepositoryFiles.UpdateFile(projectID, fileName, opts, options...)
}

func (w *gitlabRepositoryFilesWrapper) DeleteFile(projectID string, fileName string, opts *gitlab.DeleteFileOptions, options ...gitlab.RequestOptionFunc) (*gitlab.Response, error) {
	return w.client.RepositoryFiles.DeleteFile(projectID, fileName, opts, options...)
}

type gitlabUsersWrapper struct {
	client *gitlab.Client
}

func (w *gitlabUsersWrapper) CurrentUser(options ...gitlab.RequestOptionFunc) (*gitlab.User, *gitlab.Response, error) {
	return w.client.Users.CurrentUser(options...)
}

// GitLabAPI groups the narrowed GitLab service interfaces.
type GitLabAPI struct {
	Projects        GitLabProjectsService
	Repositories    GitLabRepositoriesService
	RepositoryFiles GitLabRepositoryFilesService
	Users           GitLabUsersService
}

// wrapGitLabClient constructs GitLabAPI from a *gitlab.Client.
func wrapGitLabClient(c *gitlab.Client) GitLabAPI {
	return GitLabAPI{
		Projects:        &gitlabProjectsWrapper{client: c},
		Repositories:    &gitlabRepositoriesWrapper{client: c},
		RepositoryFiles: &gitlabRepositoryFilesWrapper{client: c},
		Users:           &gitlabUsersWrapper{client: c},
	}
}
