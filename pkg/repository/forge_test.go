package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
)

// fakeForgeServer is an in-memory Gitea/Gogs stand-in. It stores files
// with generation-counted SHAs and enforces the same compare-and-swap
// rules as the real contents API.
type fakeForgeServer struct {
	t     *testing.T
	files map[string]fakeForgeFile

	token         string
	treeTruncated bool
	treeDisabled  bool

	authSchemeSeen string
}

type fakeForgeFile struct {
	content []byte
	sha     string
	gen     int
}

func newFakeForgeServer(t *testing.T) *fakeForgeServer {
	return &fakeForgeServer{
		t:     t,
		files: map[string]fakeForgeFile{},
		token: "secret-token",
	}
}

func (s *fakeForgeServer) put(path, content string) {
	f := s.files[path]
	f.gen++
	f.content = []byte(content)
	f.sha = fmt.Sprintf("sha-%s-%d", path, f.gen)
	s.files[path] = f
}

func (s *fakeForgeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		s.authSchemeSeen = auth
		if auth != "token "+s.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token is required"})
			return
		}

		route := strings.TrimPrefix(r.URL.Path, "/api/v1")
		switch {
		case route == "/user":
			writeJSON(w, http.StatusOK, map[string]any{"id": 1, "login": "editor"})
		case route == "/repos/owner/site":
			writeJSON(w, http.StatusOK, map[string]any{
				"id": 7, "name": "site", "full_name": "owner/site",
				"private": true, "default_branch": "main",
				"owner":       map[string]string{"login": "owner"},
				"permissions": map[string]bool{"push": true, "admin": false},
			})
		case strings.HasPrefix(route, "/repos/owner/site/git/trees/"):
			s.handleTree(w, r)
		case strings.HasPrefix(route, "/repos/owner/site/contents"):
			s.handleContents(w, r, strings.Trim(strings.TrimPrefix(route, "/repos/owner/site/contents"), "/"))
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "endpoint not found"})
		}
	})
	return mux
}

func (s *fakeForgeServer) handleTree(w http.ResponseWriter, r *http.Request) {
	if s.treeDisabled {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "tree endpoint unavailable"})
		return
	}
	var entries []map[string]any
	for path, f := range s.files {
		entries = append(entries, map[string]any{
			"path": path, "type": "blob", "sha": f.sha, "size": len(f.content),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sha": "tree-sha", "truncated": s.treeTruncated, "tree": entries,
	})
}

func (s *fakeForgeServer) handleContents(w http.ResponseWriter, r *http.Request, path string) {
	switch r.Method {
	case http.MethodGet:
		if f, ok := s.files[path]; ok {
			writeJSON(w, http.StatusOK, s.fileJSON(path, f))
			return
		}
		// Directory listing: direct children of path.
		var children []map[string]any
		seen := map[string]bool{}
		prefix := ""
		if path != "" {
			prefix = path + "/"
		}
		for p, f := range s.files {
			if !strings.HasPrefix(p, prefix) {
				continue
			}
			rest := strings.TrimPrefix(p, prefix)
			if idx := strings.Index(rest, "/"); idx >= 0 {
				dir := rest[:idx]
				if !seen[dir] {
					seen[dir] = true
					children = append(children, map[string]any{
						"name": dir, "path": prefix + dir, "type": "dir",
					})
				}
				continue
			}
			entry := s.fileJSON(p, f)
			delete(entry, "content")
			delete(entry, "encoding")
			children = append(children, entry)
		}
		if len(children) == 0 && path != "" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "path does not exist"})
			return
		}
		writeJSON(w, http.StatusOK, children)

	case http.MethodPost: // create
		var req struct {
			Message string `json:"message"`
			Content string `json:"content"`
		}
		decodeJSON(s.t, r, &req)
		if _, exists := s.files[path]; exists {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "file already exists"})
			return
		}
		raw, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid base64"})
			return
		}
		s.put(path, string(raw))
		writeJSON(w, http.StatusCreated, map[string]any{"commit": map[string]string{"message": req.Message}})

	case http.MethodPut: // update
		var req struct {
			Message string `json:"message"`
			Content string `json:"content"`
			SHA     string `json:"sha"`
		}
		decodeJSON(s.t, r, &req)
		current, exists := s.files[path]
		if !exists {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "file does not exist"})
			return
		}
		if req.SHA != current.sha {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "sha does not match"})
			return
		}
		raw, _ := base64.StdEncoding.DecodeString(req.Content)
		s.put(path, string(raw))
		writeJSON(w, http.StatusOK, map[string]any{"commit": map[string]string{"message": req.Message}})

	case http.MethodDelete:
		var req struct {
			Message string `json:"message"`
			SHA     string `json:"sha"`
		}
		decodeJSON(s.t, r, &req)
		current, exists := s.files[path]
		if !exists {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "file does not exist"})
			return
		}
		if req.SHA != current.sha {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "sha does not match"})
			return
		}
		delete(s.files, path)
		writeJSON(w, http.StatusOK, map[string]any{"commit": map[string]string{"message": req.Message}})
	}
}

func (s *fakeForgeServer) fileJSON(path string, f fakeForgeFile) map[string]any {
	name := path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		name = path[idx+1:]
	}
	return map[string]any{
		"name": name, "path": path, "type": "file",
		"sha": f.sha, "size": len(f.content),
		"content":  base64.StdEncoding.EncodeToString(f.content),
		"encoding": "base64",
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(t *testing.T, r *http.Request, v any) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode request body: %v", err)
	}
}

func newForgeTestClient(t *testing.T, server *fakeForgeServer, dialect ForgeDialect, cfg Config) (*ForgeClient, func()) {
	t.Helper()
	ts := httptest.NewServer(server.handler())

	cfg.BaseURL = ts.URL
	cfg.Owner, cfg.Repo = "owner", "site"
	if cfg.Token == "" {
		cfg.Token = server.token
	}
	client, err := NewForgeClient(dialect, cfg)
	if err != nil {
		t.Fatalf("NewForgeClient error: %v", err)
	}
	return client, ts.Close
}

func TestForgeRequiresBaseURL(t *testing.T) {
	_, err := NewForgeClient(DialectGitea, Config{Owner: "o", Repo: "r"})
	if err == nil {
		t.Fatal("Expected an error when no base URL is configured")
	}
}

func TestForgeAuthHeaderScheme(t *testing.T) {
	server := newFakeForgeServer(t)
	client, done := newForgeTestClient(t, server, DialectGitea, Config{})
	defer done()

	if _, err := client.GetRepositoryInfo(context.Background()); err != nil {
		t.Fatalf("GetRepositoryInfo error: %v", err)
	}
	if server.authSchemeSeen != "token secret-token" {
		t.Errorf("Unexpected Authorization header: %q", server.authSchemeSeen)
	}
}

func TestForgeReadWriteRoundTrip(t *testing.T) {
	server := newFakeForgeServer(t)
	server.put("posts/a.md", "# v1")
	client, done := newForgeTestClient(t, server, DialectGitea, Config{})
	defer done()
	ctx := context.Background()

	content, err := client.ReadFile(ctx, "posts/a.md")
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if content != "# v1" {
		t.Errorf("Unexpected content: %q", content)
	}

	sha := server.files["posts/a.md"].sha
	if err := client.UpdateFile(ctx, "posts/a.md", "# v2", "edit", sha); err != nil {
		t.Fatalf("UpdateFile error: %v", err)
	}

	content, err = client.ReadFile(ctx, "posts/a.md")
	if err != nil {
		t.Fatalf("ReadFile after update error: %v", err)
	}
	if content != "# v2" {
		t.Errorf("Update did not land: %q", content)
	}
}

func TestForgeReadFile_Missing(t *testing.T) {
	server := newFakeForgeServer(t)
	client, done := newForgeTestClient(t, server, DialectGitea, Config{})
	defer done()

	_, err := client.ReadFile(context.Background(), "missing.md")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestForgeCreateFile_ExistingPathConflicts(t *testing.T) {
	server := newFakeForgeServer(t)
	server.put("posts/a.md", "content")
	client, done := newForgeTestClient(t, server, DialectGitea, Config{})
	defer done()

	err := client.CreateFile(context.Background(), "posts/a.md", "other", "add")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Expected ErrConflict, got %v", err)
	}
}

func TestForgeUpdateFile_StaleSHA(t *testing.T) {
	server := newFakeForgeServer(t)
	server.put("posts/a.md", "# v1")
	client, done := newForgeTestClient(t, server, DialectGitea, Config{})
	defer done()
	ctx := context.Background()

	stale := server.files["posts/a.md"].sha
	if err := client.UpdateFile(ctx, "posts/a.md", "# v2", "edit", stale); err != nil {
		t.Fatalf("First update should succeed: %v", err)
	}
	err := client.UpdateFile(ctx, "posts/a.md", "# v3", "edit", stale)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Second update with stale SHA should conflict, got %v", err)
	}
}

func TestForgeDeleteFile(t *testing.T) {
	server := newFakeForgeServer(t)
	server.put("posts/a.md", "# v1")
	client, done := newForgeTestClient(t, server, DialectGitea, Config{})
	defer done()
	ctx := context.Background()

	sha := server.files["posts/a.md"].sha
	if err := client.DeleteFile(ctx, "posts/a.md", sha, "remove"); err != nil {
		t.Fatalf("DeleteFile error: %v", err)
	}

	// Deleting again with the now-stale SHA: the path is gone, so this is
	// not-found rather than a silent success.
	err := client.DeleteFile(ctx, "posts/a.md", sha, "remove again")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for an already-deleted path, got %v", err)
	}
}

func TestForgeUploadBinary_UpsertWithoutSHA(t *testing.T) {
	server := newFakeForgeServer(t)
	client, done := newForgeTestClient(t, server, DialectGitea, Config{})
	defer done()
	ctx := context.Background()

	data := []byte{0x89, 0x50, 0x4e, 0x47}
	if err := client.UploadBinary(ctx, "public/images/logo.png", data, "upload", ""); err != nil {
		t.Fatalf("UploadBinary create error: %v", err)
	}

	// A second upload without a SHA resolves the current one and updates.
	if err := client.UploadBinary(ctx, "public/images/logo.png", []byte{1, 2}, "replace", ""); err != nil {
		t.Fatalf("UploadBinary update error: %v", err)
	}
	if string(server.files["public/images/logo.png"].content) != "\x01\x02" {
		t.Errorf("Upload did not replace the content")
	}
}

func TestForgeListAllFiles_FastPathAndFallbackAgree(t *testing.T) {
	// For a flat directory with no subdirectories, the recursive fast path
	// (gitea) and the shallow fallback (gogs) must return the same file
	// paths.
	collect := func(dialect ForgeDialect, wantDegraded bool) []string {
		server := newFakeForgeServer(t)
		server.put("posts/a.md", "a")
		server.put("posts/b.md", "b")
		server.put("README.md", "readme")
		client, done := newForgeTestClient(t, server, dialect, Config{})
		defer done()

		listing, err := client.ListAllFiles(context.Background(), "posts")
		if err != nil {
			t.Fatalf("ListAllFiles (%s) error: %v", dialect.Name, err)
		}
		if listing.Degraded != wantDegraded {
			t.Errorf("Dialect %s: expected degraded=%v, got %v", dialect.Name, wantDegraded, listing.Degraded)
		}
		var paths []string
		for _, e := range listing.Entries {
			paths = append(paths, e.Path)
		}
		sort.Strings(paths)
		return paths
	}

	fast := collect(DialectGitea, false)
	fallback := collect(DialectGogs, true)

	if len(fast) != 2 || len(fallback) != 2 {
		t.Fatalf("Expected 2 files from both paths, got fast=%v fallback=%v", fast, fallback)
	}
	for i := range fast {
		if fast[i] != fallback[i] {
			t.Errorf("Fast path and fallback disagree: %v vs %v", fast, fallback)
		}
	}
}

func TestForgeListAllFiles_TruncatedTree(t *testing.T) {
	server := newFakeForgeServer(t)
	server.put("posts/a.md", "a")
	server.treeTruncated = true
	client, done := newForgeTestClient(t, server, DialectGitea, Config{})
	defer done()

	listing, err := client.ListAllFiles(context.Background(), "")
	if err != nil {
		t.Fatalf("A truncated tree must not be an error: %v", err)
	}
	if !listing.Truncated {
		t.Error("Expected Truncated to be set")
	}
	if len(listing.Entries) != 1 {
		t.Errorf("Expected the partial listing, got %d entries", len(listing.Entries))
	}
}

func TestForgeListAllFiles_FallsBackWhenTreeFails(t *testing.T) {
	server := newFakeForgeServer(t)
	server.put("posts/a.md", "a")
	server.put("posts/sub/b.md", "b")
	server.treeDisabled = true
	client, done := newForgeTestClient(t, server, DialectGitea, Config{})
	defer done()

	listing, err := client.ListAllFiles(context.Background(), "posts")
	if err != nil {
		t.Fatalf("Fallback should not error: %v", err)
	}
	if !listing.Degraded {
		t.Error("Expected Degraded on the fallback result")
	}
	// The fallback is shallow: nested files are not included.
	for _, e := range listing.Entries {
		if e.Path == "posts/sub/b.md" {
			t.Error("Fallback must not recurse into subdirectories")
		}
	}
}

func TestForgeUpdateFile_NotRetriedOnDroppedConnection(t *testing.T) {
	// The write lands server-side, but the connection dies before the
	// client sees a response. A replay would hit the compare-and-swap check
	// and misreport the committed write as a conflict, so the client must
	// give up after one attempt.
	var putAttempts int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "unexpected request"})
			return
		}
		atomic.AddInt32(&putAttempts, 1)
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("test server does not support hijacking")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack failed: %v", err)
			return
		}
		conn.Close()
	}))
	defer ts.Close()

	client, err := NewForgeClient(DialectGitea, Config{
		BaseURL: ts.URL, Owner: "owner", Repo: "site", Token: "secret-token",
	})
	if err != nil {
		t.Fatalf("NewForgeClient error: %v", err)
	}

	err = client.UpdateFile(context.Background(), "posts/a.md", "v2", "edit", "sha-1")
	if err == nil {
		t.Fatal("Expected a transport error for the dropped connection")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatalf("A dropped write must not surface as a conflict: %v", err)
	}
	if n := atomic.LoadInt32(&putAttempts); n != 1 {
		t.Errorf("Expected exactly one PUT attempt, server saw %d", n)
	}
}

func TestForgeRead_RetriedOnServerError(t *testing.T) {
	var getAttempts int32
	server := newFakeForgeServer(t)
	server.put("posts/a.md", "# v1")
	inner := server.handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&getAttempts, 1) == 1 {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "transient"})
			return
		}
		inner.ServeHTTP(w, r)
	}))
	defer ts.Close()

	client, err := NewForgeClient(DialectGitea, Config{
		BaseURL: ts.URL, Owner: "owner", Repo: "site", Token: "secret-token",
	})
	if err != nil {
		t.Fatalf("NewForgeClient error: %v", err)
	}

	content, err := client.ReadFile(context.Background(), "posts/a.md")
	if err != nil {
		t.Fatalf("A transient server error on a read should be retried away: %v", err)
	}
	if content != "# v1" {
		t.Errorf("Unexpected content: %q", content)
	}
	if n := atomic.LoadInt32(&getAttempts); n < 2 {
		t.Errorf("Expected the read to be retried, server saw %d attempts", n)
	}
}

func TestForgeAuthInvalidSignal(t *testing.T) {
	server := newFakeForgeServer(t)
	fired := 0
	client, done := newForgeTestClient(t, server, DialectGitea, Config{
		Token:         "wrong-token",
		OnAuthInvalid: func() { fired++ },
	})
	defer done()
	ctx := context.Background()

	_, err := client.GetRepositoryInfo(ctx)
	if !errors.Is(err, ErrAuthInvalid) {
		t.Fatalf("Expected ErrAuthInvalid, got %v", err)
	}
	_, _ = client.ReadFile(ctx, "posts/a.md")

	if fired != 1 {
		t.Errorf("Expected the auth-invalid callback to fire exactly once, fired %d times", fired)
	}
}

func TestForgeVerifyToken(t *testing.T) {
	server := newFakeForgeServer(t)
	client, done := newForgeTestClient(t, server, DialectGitea, Config{})
	defer done()

	login, err := client.VerifyToken(context.Background())
	if err != nil {
		t.Fatalf("VerifyToken error: %v", err)
	}
	if login != "editor" {
		t.Errorf("Unexpected login: %s", login)
	}
}

func TestForgeListDirectory(t *testing.T) {
	server := newFakeForgeServer(t)
	server.put("posts/a.md", "a")
	server.put("posts/sub/b.md", "b")
	client, done := newForgeTestClient(t, server, DialectGitea, Config{})
	defer done()

	entries, err := client.ListDirectory(context.Background(), "posts")
	if err != nil {
		t.Fatalf("ListDirectory error: %v", err)
	}

	byName := map[string]ContentEntry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	if byName["a.md"].Type != TypeFile {
		t.Errorf("Expected a.md to be a file: %+v", byName["a.md"])
	}
	if byName["sub"].Type != TypeDir {
		t.Errorf("Expected sub to be a dir: %+v", byName["sub"])
	}
}

func TestForgeListDirectory_NotFound(t *testing.T) {
	server := newFakeForgeServer(t)
	client, done := newForgeTestClient(t, server, DialectGitea, Config{})
	defer done()

	_, err := client.ListDirectory(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}
