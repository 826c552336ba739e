// Package gitrepo keeps the version history of each draft in its own git
// repository holding a single comparison.json.
package gitrepo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	contentFile = "comparison.json"
	mainBranch  = "main"
)

var (
	ErrInvalidID    = errors.New("invalid draft id")
	ErrRepoNotFound = errors.New("draft repository not found")
	// ErrVersionNotFound is returned by ReadAt for a hash not in the history.
	ErrVersionNotFound = errors.New("draft version not found")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type CommitInfo struct {
	Hash      string    `json:"hash"`
	FullHash  string    `json:"fullHash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	now     func() time.Time
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureRepo creates the draft's repository with content as the first
// commit. An existing repository is left alone and its head returned.
func (s *Service) EnsureRepo(draftID string, content []byte, author string) (CommitInfo, error) {
	if !idPattern.MatchString(draftID) {
		return CommitInfo{}, ErrInvalidID
	}
	lock := s.draftLock(draftID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(draftID)
	if _, err := os.Stat(path); err == nil {
		repo, err := git.PlainOpen(path)
		if err != nil {
			return CommitInfo{}, fmt.Errorf("open repo: %w", err)
		}
		return head(repo)
	} else if !errors.Is(err, os.ErrNotExist) {
		return CommitInfo{}, fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return CommitInfo{}, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("init repo: %w", err)
	}
	// Point HEAD at main before the first commit so the branch is born there.
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return CommitInfo{}, fmt.Errorf("set HEAD to main: %w", err)
	}

	hash, err := s.commit(repo, content, author, "Create draft", true)
	if err != nil {
		return CommitInfo{}, err
	}
	return commitInfo(repo, hash)
}

// Commit records content as a new version. Unchanged content creates no
// commit and returns the current head.
func (s *Service) Commit(draftID string, content []byte, author, message string) (CommitInfo, error) {
	repo, unlock, err := s.open(draftID)
	if err != nil {
		return CommitInfo{}, err
	}
	defer unlock()

	if message == "" {
		message = "Update draft"
	}
	hash, err := s.commit(repo, content, author, message, false)
	if errors.Is(err, git.ErrEmptyCommit) {
		return head(repo)
	}
	if err != nil {
		return CommitInfo{}, err
	}
	return commitInfo(repo, hash)
}

// Head returns the newest version.
func (s *Service) Head(draftID string) (CommitInfo, error) {
	repo, unlock, err := s.open(draftID)
	if err != nil {
		return CommitInfo{}, err
	}
	defer unlock()
	return head(repo)
}

// History lists versions newest first. limit <= 0 means all.
func (s *Service) History(draftID string, limit int) ([]CommitInfo, error) {
	repo, unlock, err := s.open(draftID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(c *object.Commit) error {
		items = append(items, toCommitInfo(c))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ReadAt returns the document stored at hash, which may be abbreviated.
func (s *Service) ReadAt(draftID, hash string) ([]byte, CommitInfo, error) {
	repo, unlock, err := s.open(draftID)
	if err != nil {
		return nil, CommitInfo{}, err
	}
	defer unlock()

	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return nil, CommitInfo{}, fmt.Errorf("%w: %v", ErrVersionNotFound, err)
	}
	c, err := repo.CommitObject(resolved)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, CommitInfo{}, fmt.Errorf("%w: %s", ErrVersionNotFound, hash)
	}
	if err != nil {
		return nil, CommitInfo{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	content, err := readContent(c)
	if err != nil {
		return nil, CommitInfo{}, err
	}
	return content, toCommitInfo(c), nil
}

// Remove deletes the draft's repository.
func (s *Service) Remove(draftID string) error {
	if !idPattern.MatchString(draftID) {
		return ErrInvalidID
	}
	lock := s.draftLock(draftID)
	lock.Lock()
	defer lock.Unlock()
	if err := os.RemoveAll(s.repoPath(draftID)); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	return nil
}

func (s *Service) open(draftID string) (*git.Repository, func(), error) {
	if !idPattern.MatchString(draftID) {
		return nil, nil, ErrInvalidID
	}
	lock := s.draftLock(draftID)
	lock.Lock()
	repo, err := git.PlainOpen(s.repoPath(draftID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		lock.Unlock()
		return nil, nil, ErrRepoNotFound
	}
	if err != nil {
		lock.Unlock()
		return nil, nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, lock.Unlock, nil
}

func (s *Service) repoPath(draftID string) string {
	return filepath.Join(s.baseDir, draftID)
}

func (s *Service) draftLock(draftID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[draftID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[draftID] = lock
	return lock
}

func (s *Service) commit(repo *git.Repository, content []byte, author, message string, allowEmpty bool) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload := content
	if len(payload) == 0 || payload[len(payload)-1] != '\n' {
		payload = append(append([]byte(nil), content...), '\n')
	}
	root := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(root, contentFile), payload, 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add content: %w", err)
	}

	if author == "" {
		author = "Anonymous"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: allowEmpty,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@drafts.forkcast.local", sanitizeEmail(author)),
			When:  s.now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit content: %w", err)
	}
	return hash, nil
}

func head(repo *git.Repository) (CommitInfo, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}
	return commitInfo(repo, ref.Hash())
}

func commitInfo(repo *git.Repository, hash plumbing.Hash) (CommitInfo, error) {
	c, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(c), nil
}

func readContent(c *object.Commit) ([]byte, error) {
	file, err := c.File(contentFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read content bytes: %w", err)
	}
	return data, nil
}

func toCommitInfo(c *object.Commit) CommitInfo {
	full := c.Hash.String()
	return CommitInfo{
		Hash:      full[:7],
		FullHash:  full,
		Message:   c.Message,
		Author:    c.Author.Name,
		CreatedAt: c.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "author"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
