package ledger_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v63/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skypost/ledger"
)

const contentsPath = "/repos/owner/repo/contents/published.json"

func newTestStore(t *testing.T, handler http.HandlerFunc) *ledger.GithubStore {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	client.UploadURL = base

	return ledger.NewGithubStore(client, "owner", "repo", "", "published.json")
}

func TestGithubStoreRead(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(`["https://example.com/a","https://example.com/b"]`))

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, contentsPath, r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"type":     "file",
			"name":     "published.json",
			"path":     "published.json",
			"encoding": "base64",
			"content":  encoded,
			"sha":      "abc123",
		})
	})

	entries, version, err := store.Read(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, entries)
	assert.Equal(t, "abc123", version)
}

func TestGithubStoreReadMissingFile(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	})

	entries, version, err := store.Read(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, version)
}

func TestGithubStoreWrite(t *testing.T) {
	var body struct {
		Message string `json:"message"`
		Content string `json:"content"`
		SHA     string `json:"sha"`
	}

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, contentsPath, r.URL.Path)

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":{"sha":"def456"}}`))
	})

	err := store.Write(context.Background(), []string{"https://example.com/a"}, "abc123")
	assert.NoError(t, err)
	assert.Equal(t, "abc123", body.SHA)

	decoded, err := base64.StdEncoding.DecodeString(body.Content)
	require.NoError(t, err)

	var entries []string
	require.NoError(t, json.Unmarshal(decoded, &entries))
	assert.Equal(t, []string{"https://example.com/a"}, entries)
}

func TestNewGithubClientTimeout(t *testing.T) {
	client := ledger.NewGithubClient(context.Background(), "token", 5*time.Second)
	assert.Equal(t, 5*time.Second, client.Client().Timeout)
}

func TestGithubStoreWriteConflict(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"published.json does not match abc123"}`))
	})

	err := store.Write(context.Background(), []string{"https://example.com/a"}, "abc123")
	assert.ErrorIs(t, err, ledger.ErrConflict)
}
