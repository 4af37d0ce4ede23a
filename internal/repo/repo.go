// Package repo fetches remote repositories so their Python sources can be scanned
package repo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog/log"
)

// Service clones repositories into a working directory
type Service struct {
	baseDir string
	token   string
}

// NewService creates a new repository service. An empty baseDir uses the
// system temp directory.
func NewService(baseDir, token string) *Service {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Service{
		baseDir: baseDir,
		token:   token,
	}
}

// Info contains parsed repository information
type Info struct {
	Owner    string
	Name     string
	URL      string
	CloneURL string
	Branch   string
}

// Checkout is a local working copy of a repository
type Checkout struct {
	Path      string
	CommitSHA string
	Branch    string
}

// ShortSHA returns the abbreviated commit hash
func (c *Checkout) ShortSHA() string {
	if len(c.CommitSHA) > 8 {
		return c.CommitSHA[:8]
	}
	return c.CommitSHA
}

// ParseRepoURL parses a GitHub URL in https or ssh form
func ParseRepoURL(rawURL string) (*Info, error) {
	var owner, name string

	if strings.HasPrefix(rawURL, "git@") {
		// git@github.com:owner/repo.git
		parts := strings.Split(rawURL, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid SSH URL format: %s", rawURL)
		}
		if parts[0] != "git@github.com" {
			return nil, fmt.Errorf("only github.com URLs are supported, got: %s", strings.TrimPrefix(parts[0], "git@"))
		}
		pathParts := strings.Split(strings.TrimSuffix(parts[1], ".git"), "/")
		if len(pathParts) != 2 {
			return nil, fmt.Errorf("invalid repo path: %s", parts[1])
		}
		owner, name = pathParts[0], pathParts[1]
	} else {
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse URL: %w", err)
		}

		if parsed.Host != "github.com" {
			return nil, fmt.Errorf("only github.com URLs are supported, got: %q", parsed.Host)
		}

		pathParts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
		if len(pathParts) < 2 {
			return nil, fmt.Errorf("invalid repo path: %s", parsed.Path)
		}
		owner, name = pathParts[0], strings.TrimSuffix(pathParts[1], ".git")
	}

	if owner == "" || name == "" {
		return nil, fmt.Errorf("invalid repo path in %s", rawURL)
	}

	return &Info{
		Owner:    owner,
		Name:     name,
		URL:      rawURL,
		CloneURL: fmt.Sprintf("https://github.com/%s/%s.git", owner, name),
	}, nil
}

// Clone shallow-clones a repository into a fresh directory under the base
// directory. An empty branch clones the default branch; a branch that does not
// exist falls back to the default. Remove the checkout when done.
func (s *Service) Clone(ctx context.Context, info *Info) (*Checkout, error) {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	repoDir, err := os.MkdirTemp(s.baseDir, fmt.Sprintf("ecocode-%s-%s-", info.Owner, info.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout directory: %w", err)
	}

	log.Info().
		Str("url", info.CloneURL).
		Str("path", repoDir).
		Msg("cloning repository")

	cloneOpts := &git.CloneOptions{
		URL:   info.CloneURL,
		Depth: 1,
	}

	if s.token != "" {
		cloneOpts.Auth = &http.BasicAuth{
			Username: "git",
			Password: s.token,
		}
	}

	if info.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(info.Branch)
		cloneOpts.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, repoDir, false, cloneOpts)
	if err != nil && info.Branch != "" && isMissingRef(err) {
		log.Debug().Str("branch", info.Branch).Msg("branch not found, trying default")
		if err := resetDir(repoDir); err != nil {
			return nil, err
		}
		cloneOpts.ReferenceName = ""
		cloneOpts.SingleBranch = false
		repo, err = git.PlainCloneContext(ctx, repoDir, false, cloneOpts)
	}
	if err != nil {
		_ = os.RemoveAll(repoDir)
		return nil, fmt.Errorf("failed to clone: %w", err)
	}

	checkout, err := checkoutOf(repo, repoDir)
	if err != nil {
		_ = os.RemoveAll(repoDir)
		return nil, err
	}

	log.Info().
		Str("commit", checkout.ShortSHA()).
		Str("branch", checkout.Branch).
		Msg("clone complete")

	return checkout, nil
}

// Remove deletes a checkout's working directory
func (s *Service) Remove(c *Checkout) error {
	if c == nil || c.Path == "" {
		return nil
	}
	return os.RemoveAll(c.Path)
}

// Head describes the git repository containing path, searching parent
// directories. A path outside any repository returns git.ErrRepositoryNotExists.
func Head(path string) (*Checkout, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	return checkoutOf(repo, wt.Filesystem.Root())
}

func checkoutOf(repo *git.Repository, path string) (*Checkout, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	return &Checkout{
		Path:      path,
		CommitSHA: head.Hash().String(),
		Branch:    head.Name().Short(),
	}, nil
}

// resetDir empties a directory left behind by a failed clone
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove partial clone: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

func isMissingRef(err error) bool {
	return errors.Is(err, plumbing.ErrReferenceNotFound) || strings.Contains(err.Error(), "reference not found")
}
