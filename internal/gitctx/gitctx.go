// Package gitctx reads the local git checkout the generator runs in: the
// origin remote, the current branch (or tag), and whether a generated file
// differs from what is committed.
package gitctx

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// ErrNoOrigin is returned when the repository has no usable origin remote.
var ErrNoOrigin = errors.New("no origin remote")

// RemoteURL is the owner/repo pair of a hosted git remote.
type RemoteURL struct {
	Host  string
	Owner string
	Repo  string
}

// Repo is an opened working tree.
type Repo struct {
	repo *git.Repository
	root string

	committedOnce sync.Once
	committed     map[string]plumbing.Hash
	committedErr  error
}

// Open finds the repository containing dir (walking up to the .git directory).
func Open(dir string) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository at %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	return &Repo{repo: repo, root: wt.Filesystem.Root()}, nil
}

// Root is the absolute worktree directory.
func (r *Repo) Root() string { return r.root }

// Origin parses the URL of the "origin" remote.
func (r *Repo) Origin() (*RemoteURL, error) {
	remote, err := r.repo.Remote(git.DefaultRemoteName)
	if err != nil {
		if errors.Is(err, git.ErrRemoteNotFound) {
			return nil, ErrNoOrigin
		}
		return nil, err
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return nil, ErrNoOrigin
	}
	return ParseRemoteURL(urls[0])
}

// Branch returns the name of the tag HEAD points at, or the short branch name
// when HEAD is not tagged.
func (r *Repo) Branch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}

	tags, err := r.repo.Tags()
	if err != nil {
		return "", fmt.Errorf("list tags: %w", err)
	}
	var tagName string
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if obj, err := r.repo.TagObject(ref.Hash()); err == nil {
			commit, err := obj.Commit()
			if err != nil {
				return nil
			}
			target = commit.Hash
		}
		if target == head.Hash() {
			tagName = ref.Name().Short()
			return storer.ErrStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return "", fmt.Errorf("scan tags: %w", err)
	}
	if tagName != "" {
		return tagName, nil
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is detached at %s", head.Hash())
	}
	return head.Name().Short(), nil
}

// IsPathLocallyModified reports whether the file at path (absolute, or
// relative to the working directory) differs from the version committed at
// HEAD. Files HEAD does not track count as modified. The HEAD listing is read
// once per Repo; file contents are hashed on every call.
func (r *Repo) IsPathLocallyModified(path string) (bool, error) {
	rel, err := r.relative(path)
	if err != nil {
		return false, err
	}
	committed, err := r.committedFiles()
	if err != nil {
		return false, err
	}
	want, ok := committed[rel]
	if !ok {
		return true, nil
	}
	data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	return plumbing.ComputeHash(plumbing.BlobObject, data) != want, nil
}

// committedFiles maps every file in the HEAD tree to its blob hash. A
// repository without commits yields an empty map.
func (r *Repo) committedFiles() (map[string]plumbing.Hash, error) {
	r.committedOnce.Do(func() {
		r.committed = make(map[string]plumbing.Hash)
		head, err := r.repo.Head()
		if err != nil {
			if !errors.Is(err, plumbing.ErrReferenceNotFound) {
				r.committedErr = fmt.Errorf("resolve HEAD: %w", err)
			}
			return
		}
		commit, err := r.repo.CommitObject(head.Hash())
		if err != nil {
			r.committedErr = fmt.Errorf("read HEAD commit: %w", err)
			return
		}
		tree, err := commit.Tree()
		if err != nil {
			r.committedErr = fmt.Errorf("read HEAD tree: %w", err)
			return
		}
		r.committedErr = tree.Files().ForEach(func(f *object.File) error {
			r.committed[f.Name] = f.Hash
			return nil
		})
	})
	return r.committed, r.committedErr
}

func (r *Repo) relative(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside the repository", path)
	}
	return rel, nil
}

// ParseRemoteURL understands https, ssh:// and scp-like (git@host:owner/repo)
// remote URLs.
func ParseRemoteURL(raw string) (*RemoteURL, error) {
	raw = strings.TrimSpace(raw)
	var host, path string
	switch {
	case strings.Contains(raw, "://"):
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse remote url: %w", err)
		}
		host, path = u.Hostname(), u.Path
	case strings.Contains(raw, ":"):
		i := strings.Index(raw, ":")
		host, path = raw[:i], raw[i+1:]
		if at := strings.LastIndex(host, "@"); at >= 0 {
			host = host[at+1:]
		}
	default:
		return nil, fmt.Errorf("unsupported remote url: %q", raw)
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" {
		return nil, fmt.Errorf("remote url %q has no owner/repo", raw)
	}
	repo := strings.TrimSuffix(parts[len(parts)-1], ".git")
	if repo == "" {
		return nil, fmt.Errorf("remote url %q has no repository name", raw)
	}
	return &RemoteURL{Host: host, Owner: parts[len(parts)-2], Repo: repo}, nil
}

// HostURL builds the preview origin for a branch of a remote:
// https://<branch>--<repo>--<owner>.hlx.live. Characters that are not valid
// in a host label are replaced with '-'.
func HostURL(branch string, remote *RemoteURL) string {
	return fmt.Sprintf("https://%s--%s--%s.hlx.live", hostLabel(branch), hostLabel(remote.Repo), hostLabel(remote.Owner))
}

func hostLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('-')
	}
	return b.String()
}

// DetectHost opens the repository at dir and derives the preview origin.
func DetectHost(dir string) (string, error) {
	r, err := Open(dir)
	if err != nil {
		return "", err
	}
	remote, err := r.Origin()
	if err != nil {
		return "", err
	}
	branch, err := r.Branch()
	if err != nil {
		return "", err
	}
	return HostURL(branch, remote), nil
}
