package repofetch

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// ErrUnreachable marks a repository reference that could not be
// resolved into a snapshot. Check runners convert it into a failed
// result instead of propagating it.
var ErrUnreachable = errors.New("repository unreachable")

// Ref points at one repository snapshot.
type Ref struct {
	RepoURL   string
	CommitSHA string
	PagesURL  string // optional, deployed site of the repo
}

// Fetcher resolves a repository reference into a snapshot.
type Fetcher interface {
	Fetch(ctx context.Context, ref Ref) (*Snapshot, error)
}

const (
	maxFileSize  = 1 << 20  // 1 MiB per file
	maxTotalSize = 32 << 20 // 32 MiB per snapshot
)

// GithubFetcher downloads the codeload tarball of a commit.
type GithubFetcher struct {
	httpClient *http.Client
	token      string // optional, raises rate limits and allows private repos
	baseURL    string // overridable in tests
}

func NewGithubFetcher(token string) *GithubFetcher {
	return &GithubFetcher{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		token:      token,
		baseURL:    "https://codeload.github.com",
	}
}

// NewGithubFetcherAt points the fetcher at a different host. Used in
// tests with an httptest server.
func NewGithubFetcherAt(baseURL string, client *http.Client) *GithubFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &GithubFetcher{
		httpClient: client,
		baseURL:    baseURL,
	}
}

func (f *GithubFetcher) Fetch(ctx context.Context, ref Ref) (*Snapshot, error) {
	owner, repo, err := parseRepoURL(ref.RepoURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	tarURL := fmt.Sprintf("%s/%s/%s/tar.gz/%s", f.baseURL, owner, repo, ref.CommitSHA)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tarURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tarball request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: repository or commit not found (HTTP 404)", ErrUnreachable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tarball download returned HTTP %d", ErrUnreachable, resp.StatusCode)
	}

	snapshot := NewSnapshot(ref.RepoURL, ref.CommitSHA)
	if err := extractTarGz(resp.Body, snapshot); err != nil {
		return nil, fmt.Errorf("failed to extract repository tarball: %w", err)
	}
	return snapshot, nil
}

func extractTarGz(r io.Reader, snapshot *Snapshot) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	var total int64
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Size > maxFileSize {
			continue // skip oversized files, checks never need them
		}
		total += hdr.Size
		if total > maxTotalSize {
			return fmt.Errorf("snapshot exceeds %d bytes", int64(maxTotalSize))
		}

		content, err := io.ReadAll(io.LimitReader(tr, maxFileSize))
		if err != nil {
			return fmt.Errorf("tar read: %w", err)
		}
		// codeload tarballs prefix every path with "<repo>-<ref>/"
		path := hdr.Name
		if i := strings.Index(path, "/"); i >= 0 {
			path = path[i+1:]
		}
		if path == "" {
			continue
		}
		snapshot.AddFile(path, content)
	}
}

func parseRepoURL(repoURL string) (owner, repo string, err error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid repository URL: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository URL %q has no owner/name path", repoURL)
	}
	repo = strings.TrimSuffix(parts[1], ".git")
	return parts[0], repo, nil
}
