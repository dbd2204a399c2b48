package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v63/github"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// GithubStore keeps the ledger as a JSON file in a GitHub repository,
// read and written through the Contents API. The file's blob SHA acts
// as the optimistic version token: GitHub rejects a write whose SHA no
// longer matches the current blob.
type GithubStore struct {
	client *github.Client
	owner  string
	repo   string
	branch string
	path   string
}

// NewGithubClient returns a Contents API client authenticated with a
// personal access token. The timeout bounds each HTTP call so a stalled
// connection cannot hang a cycle.
func NewGithubClient(ctx context.Context, token string, timeout time.Duration) *github.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = timeout
	return github.NewClient(hc)
}

// NewGithubStore wraps an API client for a single ledger file. An empty
// branch means the repository's default branch.
func NewGithubStore(client *github.Client, owner, repo, branch, path string) *GithubStore {
	return &GithubStore{
		client: client,
		owner:  owner,
		repo:   repo,
		branch: branch,
		path:   path,
	}
}

// Read fetches and decodes the ledger file. A missing file is an empty
// ledger with an empty version token, not an error; the first Write
// will create it.
func (s *GithubStore) Read(ctx context.Context) ([]string, string, error) {
	opts := &github.RepositoryContentGetOptions{Ref: s.branch}
	file, _, resp, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, s.path, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			log.WithFields(log.Fields{
				"repo": fmt.Sprintf("%s/%s", s.owner, s.repo),
				"path": s.path,
			}).Info("Ledger file not found, starting with empty ledger")
			return []string{}, "", nil
		}
		return nil, "", fmt.Errorf("failed to read ledger %s: %w", s.path, err)
	}
	if file == nil {
		return nil, "", fmt.Errorf("ledger path %s is not a file", s.path)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode ledger content: %w", err)
	}

	var entries []string
	if err := json.Unmarshal([]byte(content), &entries); err != nil {
		return nil, "", fmt.Errorf("failed to parse ledger JSON: %w", err)
	}

	return entries, file.GetSHA(), nil
}

// Write replaces the ledger file contents, guarded by the version token
// from the preceding Read. Returns ErrConflict if the remote blob moved
// on since then.
func (s *GithubStore) Write(ctx context.Context, entries []string, version string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger JSON: %w", err)
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String("Update published links"),
		Content: data,
	}
	if s.branch != "" {
		opts.Branch = github.String(s.branch)
	}
	if version != "" {
		opts.SHA = github.String(version)
	}

	_, resp, err := s.client.Repositories.UpdateFile(ctx, s.owner, s.repo, s.path, opts)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity) {
			return ErrConflict
		}
		return fmt.Errorf("failed to write ledger %s: %w", s.path, err)
	}

	return nil
}

var _ Store = (*GithubStore)(nil)
