package gitea

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/steg2011/netvault/pkg/errors"
	"github.com/steg2011/netvault/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic(err)
	}
	m.Run()
}

// fakeGitea is an in-memory stand-in for the Gitea v1 REST API covering the
// endpoints the client depends on.
type fakeGitea struct {
	mu       sync.Mutex
	orgs     map[string]bool
	repos    map[string]bool
	files    map[string]fileState // "repo/path" -> state
	commits  map[string][]string  // "repo/path" -> commit shas, newest first
	creates  int32
	conflict int32 // force N conflicts on PUT before succeeding
}

type fileState struct {
	sha     string
	content string
}

func newFakeGitea() *fakeGitea {
	return &fakeGitea{
		orgs:    map[string]bool{},
		repos:   map[string]bool{},
		files:   map[string]fileState{},
		commits: map[string][]string{},
	}
}

func (f *fakeGitea) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/orgs", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.orgs[body.Username] {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		f.orgs[body.Username] = true
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/v1/orgs/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/orgs/")
		parts := strings.Split(rest, "/")
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			if f.orgs[parts[0]] {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		case len(parts) == 2 && parts[1] == "repos" && r.Method == http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if f.repos[body.Name] {
				w.WriteHeader(http.StatusConflict)
				return
			}
			f.repos[body.Name] = true
			atomic.AddInt32(&f.creates, 1)
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("/api/v1/repos/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/repos/")
		parts := strings.Split(rest, "/")
		if len(parts) < 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		repo := parts[1]
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case len(parts) == 2 && r.Method == http.MethodGet:
			if f.repos[repo] {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		case len(parts) >= 4 && parts[2] == "contents":
			key := repo + "/" + strings.Join(parts[3:], "/")
			switch r.Method {
			case http.MethodGet:
				st, ok := f.files[key]
				if !ok {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				_ = json.NewEncoder(w).Encode(map[string]string{
					"sha":     st.sha,
					"content": base64.StdEncoding.EncodeToString([]byte(st.content)),
				})
			case http.MethodPut:
				var body struct {
					Content string `json:"content"`
					SHA     string `json:"sha"`
				}
				_ = json.NewDecoder(r.Body).Decode(&body)
				cur, hadFile := f.files[key]
				if hadFile && body.SHA != cur.sha {
					w.WriteHeader(http.StatusConflict)
					return
				}
				if n := atomic.LoadInt32(&f.conflict); n > 0 {
					atomic.AddInt32(&f.conflict, -1)
					w.WriteHeader(http.StatusConflict)
					return
				}
				raw, _ := base64.StdEncoding.DecodeString(body.Content)
				commit := "sha-" + strings.ReplaceAll(key, "/", "-") + "-" + strings.Repeat("x", len(f.commits[key])+1)
				f.files[key] = fileState{sha: commit, content: string(raw)}
				f.commits[key] = append([]string{commit}, f.commits[key]...)
				w.WriteHeader(http.StatusCreated)
				_ = json.NewEncoder(w).Encode(map[string]any{"commit": map[string]string{"sha": commit}})
			}
		case len(parts) == 3 && parts[2] == "commits" && r.Method == http.MethodGet:
			key := repo + "/" + r.URL.Query().Get("path")
			out := []map[string]string{}
			for _, sha := range f.commits[key] {
				out = append(out, map[string]string{"sha": sha})
			}
			if len(out) > 2 {
				out = out[:2]
			}
			_ = json.NewEncoder(w).Encode(out)
		case len(parts) == 4 && parts[2] == "compare":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("--- a/core-1.txt\n+++ b/core-1.txt\n-old line\n+new line\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeGitea) {
	t.Helper()
	fake := newFakeGitea()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", "netvault"), fake
}

func TestEnsureRepoCreatesOrgAndRepo(t *testing.T) {
	c, fake := newTestClient(t)
	require.NoError(t, c.EnsureRepo(context.Background(), "nyc-configs"))
	require.True(t, fake.orgs["netvault"])
	require.True(t, fake.repos["nyc-configs"])
}

func TestEnsureRepoIdempotentAndConcurrent(t *testing.T) {
	c, fake := newTestClient(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.EnsureRepo(context.Background(), "lon-configs")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&fake.creates))
}

func TestCommitFileCreateThenUpdate(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.EnsureRepo(ctx, "nyc-configs"))

	first, err := c.CommitFile(ctx, "nyc-configs", "core-1.txt", []byte("hostname core-1\n"), "backup job 1: core-1")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := c.CommitFile(ctx, "nyc-configs", "core-1.txt", []byte("hostname core-1\n!\n"), "backup job 2: core-1")
	require.NoError(t, err)
	require.NotEmpty(t, second)
	require.NotEqual(t, first, second)
}

func TestCommitFileRoundTripsContent(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.EnsureRepo(ctx, "nyc-configs"))

	content := []byte("hostname sw-7.dc1\ninterface Gi0/1\n description odd.name-test\n")
	_, err := c.CommitFile(ctx, "nyc-configs", "sw-7.dc1.txt", content, "backup")
	require.NoError(t, err)

	got, err := c.ReadFile(ctx, "nyc-configs", "sw-7.dc1.txt")
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestCommitFileRetriesConflict(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.EnsureRepo(ctx, "nyc-configs"))
	atomic.StoreInt32(&fake.conflict, 2)

	sha, err := c.CommitFile(ctx, "nyc-configs", "core-1.txt", []byte("x"), "backup")
	require.NoError(t, err)
	require.NotEmpty(t, sha)
}

func TestCommitFileGivesUpAfterRetries(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.EnsureRepo(ctx, "nyc-configs"))
	atomic.StoreInt32(&fake.conflict, 10)

	_, err := c.CommitFile(ctx, "nyc-configs", "core-1.txt", []byte("x"), "backup")
	require.Error(t, err)
	require.True(t, appErr.IsCode(err, appErr.CodeRepoUnavailable))
}

func TestDiffSingleRevisionIsEmpty(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.EnsureRepo(ctx, "nyc-configs"))
	_, err := c.CommitFile(ctx, "nyc-configs", "core-1.txt", []byte("a"), "backup")
	require.NoError(t, err)

	diff, err := c.Diff(ctx, "nyc-configs", "core-1.txt")
	require.NoError(t, err)
	require.Empty(t, diff)
}

func TestDiffTwoRevisions(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.EnsureRepo(ctx, "nyc-configs"))
	_, err := c.CommitFile(ctx, "nyc-configs", "core-1.txt", []byte("old line\n"), "backup")
	require.NoError(t, err)
	_, err = c.CommitFile(ctx, "nyc-configs", "core-1.txt", []byte("new line\n"), "backup")
	require.NoError(t, err)

	diff, err := c.Diff(ctx, "nyc-configs", "core-1.txt")
	require.NoError(t, err)
	require.Contains(t, diff, "+new line")
	require.Contains(t, diff, "-old line")
}

func TestRepositoryUnavailableCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "netvault")
	err := c.EnsureRepo(context.Background(), "nyc-configs")
	require.Error(t, err)
	require.True(t, appErr.IsCode(err, appErr.CodeRepoUnavailable))
}
