// Package gitea is a minimal client for the repository service holding the
// per-site configuration history. Every call is idempotent from the
// orchestrator's point of view: "already exists" converges to success and
// conditional-update conflicts are retried.
package gitea

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	appErr "github.com/steg2011/netvault/pkg/errors"
	"github.com/steg2011/netvault/pkg/logger"
)

const (
	commitRetries     = 3
	commitRetryDelay  = 250 * time.Millisecond
	bodySnippetLength = 512
)

// Client talks to the Gitea REST API with a single long-lived bearer token.
type Client struct {
	baseURL string
	token   string
	org     string
	http    *http.Client
}

// NewClient builds a client for the given Gitea instance and organization.
func NewClient(baseURL, token, org string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		org:     org,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Org returns the organization all site repositories live under.
func (c *Client) Org() string { return c.org }

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, appErr.Wrap(err, appErr.CodeInternal, "marshal request body")
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, appErr.Wrap(err, appErr.CodeInternal, "build request")
	}
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, appErr.Wrap(err, appErr.CodeRepoUnavailable, "repository service unreachable")
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, appErr.Wrap(err, appErr.CodeRepoUnavailable, "read repository service response")
	}
	return resp.StatusCode, b, nil
}

func unavailable(op string, status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > bodySnippetLength {
		snippet = snippet[:bodySnippetLength]
	}
	return appErr.New(appErr.CodeRepoUnavailable, fmt.Sprintf("%s: HTTP %d", op, status)).
		WithMeta("status", status).WithMeta("body", snippet)
}

// EnsureRepo makes sure {org}/{repoName} exists, creating the org and the
// repository (with an initial commit) as needed. Concurrent callers with the
// same arguments converge: any observed "already exists" is success.
func (c *Client) EnsureRepo(ctx context.Context, repoName string) error {
	status, _, err := c.do(ctx, http.MethodGet, "/api/v1/repos/"+c.org+"/"+repoName, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	orgStatus, _, err := c.do(ctx, http.MethodGet, "/api/v1/orgs/"+c.org, nil)
	if err != nil {
		return err
	}
	if orgStatus == http.StatusNotFound {
		st, body, err := c.do(ctx, http.MethodPost, "/api/v1/orgs", map[string]any{
			"username":   c.org,
			"visibility": "private",
		})
		if err != nil {
			return err
		}
		if st != http.StatusOK && st != http.StatusCreated && !exists(st) {
			return unavailable("create org "+c.org, st, body)
		}
	}

	st, body, err := c.do(ctx, http.MethodPost, "/api/v1/orgs/"+c.org+"/repos", map[string]any{
		"name":           repoName,
		"private":        true,
		"auto_init":      true,
		"default_branch": "main",
	})
	if err != nil {
		return err
	}
	if st == http.StatusOK || st == http.StatusCreated || exists(st) {
		logger.L().Info("repository ready", zap.String("repo", c.org+"/"+repoName))
		return nil
	}
	return unavailable("create repo "+c.org+"/"+repoName, st, body)
}

// exists covers the statuses Gitea uses for "that name is taken".
func exists(status int) bool {
	return status == http.StatusConflict || status == http.StatusUnprocessableEntity
}

type contentsResponse struct {
	SHA     string `json:"sha"`
	Content string `json:"content"`
}

type commitResponse struct {
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// CommitFile creates or overwrites path in repoName with content and returns
// the resulting commit id. The current file revision is read first and sent
// as the update precondition; a conflicting concurrent update is retried
// with fresh state, for at most commitRetries attempts in total.
func (c *Client) CommitFile(ctx context.Context, repoName, path string, content []byte, message string) (string, error) {
	urlPath := "/api/v1/repos/" + c.org + "/" + repoName + "/contents/" + url.PathEscape(path)

	var lastErr error
	for attempt := 0; attempt < commitRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", appErr.Wrap(ctx.Err(), appErr.CodeRepoUnavailable, "commit canceled")
			case <-time.After(commitRetryDelay << (attempt - 1)):
			}
		}

		var sha string
		status, body, err := c.do(ctx, http.MethodGet, urlPath, nil)
		if err != nil {
			return "", err
		}
		if status == http.StatusOK {
			var cur contentsResponse
			if err := json.Unmarshal(body, &cur); err != nil {
				return "", appErr.Wrap(err, appErr.CodeRepoUnavailable, "decode contents response")
			}
			sha = cur.SHA
		}

		payload := map[string]any{
			"content": base64.StdEncoding.EncodeToString(content),
			"message": message,
			"branch":  "main",
		}
		if sha != "" {
			payload["sha"] = sha
		}

		status, body, err = c.do(ctx, http.MethodPut, urlPath, payload)
		if err != nil {
			return "", err
		}
		switch {
		case status == http.StatusOK || status == http.StatusCreated:
			var cr commitResponse
			if err := json.Unmarshal(body, &cr); err != nil {
				return "", appErr.Wrap(err, appErr.CodeRepoUnavailable, "decode commit response")
			}
			return cr.Commit.SHA, nil
		case status == http.StatusConflict:
			// Another writer moved the file revision; re-read and retry.
			lastErr = unavailable("commit "+path, status, body)
			continue
		default:
			return "", unavailable("commit "+path, status, body)
		}
	}
	return "", lastErr
}

// ReadFile fetches the current content of path, decoded from base64.
func (c *Client) ReadFile(ctx context.Context, repoName, path string) ([]byte, error) {
	urlPath := "/api/v1/repos/" + c.org + "/" + repoName + "/contents/" + url.PathEscape(path)
	status, body, err := c.do(ctx, http.MethodGet, urlPath, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, appErr.New(appErr.CodeNotFound, "file not found: "+path)
	}
	if status != http.StatusOK {
		return nil, unavailable("read "+path, status, body)
	}
	var cur contentsResponse
	if err := json.Unmarshal(body, &cur); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeRepoUnavailable, "decode contents response")
	}
	raw, err := base64.StdEncoding.DecodeString(cur.Content)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeRepoUnavailable, "decode file content")
	}
	return raw, nil
}

type commitListEntry struct {
	SHA string `json:"sha"`
}

// Diff returns the unified diff between the two most recent commits that
// touched path. With fewer than two revisions the diff is empty text.
func (c *Client) Diff(ctx context.Context, repoName, path string) (string, error) {
	listPath := "/api/v1/repos/" + c.org + "/" + repoName + "/commits?limit=2&path=" + url.QueryEscape(path)
	status, body, err := c.do(ctx, http.MethodGet, listPath, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", unavailable("list commits for "+path, status, body)
	}
	var commits []commitListEntry
	if err := json.Unmarshal(body, &commits); err != nil {
		return "", appErr.Wrap(err, appErr.CodeRepoUnavailable, "decode commit list")
	}
	if len(commits) < 2 {
		return "", nil
	}

	comparePath := fmt.Sprintf("/api/v1/repos/%s/%s/compare/%s...%s.diff", c.org, repoName, commits[1].SHA, commits[0].SHA)
	status, body, err = c.do(ctx, http.MethodGet, comparePath, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", unavailable("compare "+path, status, body)
	}
	return string(body), nil
}
