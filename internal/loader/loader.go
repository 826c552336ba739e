// Package loader turns untrusted bytes (pasted text, Gist content, bundled
// examples) into validated comparisons with their reference facts resolved.
package loader

import (
	"context"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"forkcast/api/internal/comparison"
)

//go:embed examples/*.json
var examplesFS embed.FS

// References resolves forkcast-facts payloads.
type References interface {
	Facts(id int) (comparison.FactsData, bool)
}

// Result is a loaded comparison plus what the loader learned about it.
type Result struct {
	Comparison *comparison.Comparison
	// Missing lists facts sections whose EIP had no reference entry. Those
	// sections keep empty data.
	Missing []*ReferenceMissingError
	Key     string
	Cached  bool
	// StoredAt is when the cached copy was written; zero for uncached loads.
	StoredAt time.Time
	Gist     *GistFile
}

// Loader is safe for concurrent use.
type Loader struct {
	gists GistClient
	cache Cache
	refs  References
	ttl   time.Duration
	now   func() time.Time
	log   *zap.Logger
	group singleflight.Group

	fetchTimeout time.Duration
}

// DefaultFetchTimeout bounds a shared Gist fetch once it no longer follows
// the context of the caller that started it.
const DefaultFetchTimeout = 30 * time.Second

type Option func(*Loader)

func WithTTL(ttl time.Duration) Option {
	return func(l *Loader) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Loader) { l.now = now }
}

func WithFetchTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.fetchTimeout = d
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) { l.log = log }
}

// New creates a Loader. gists may be nil when only pasted documents and
// examples are loaded. A nil cache means an in-memory one expiring at the
// loader's TTL.
func New(gists GistClient, cache Cache, refs References, opts ...Option) *Loader {
	l := &Loader{
		gists:        gists,
		cache:        cache,
		refs:         refs,
		ttl:          DefaultTTL,
		now:          time.Now,
		log:          zap.NewNop(),
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.cache == nil {
		l.cache = NewMemoryCache(WithMemoryTTL(l.ttl), WithMemoryClock(l.now))
	}
	return l
}

// Parse validates data and resolves facts. Nothing is cached.
func (l *Loader) Parse(data []byte) (*Result, error) {
	c, err := comparison.Parse(data)
	if err != nil {
		return nil, err
	}
	return l.resolve(c)
}

// LoadPasted parses a document supplied directly by the user. Successful
// parses are cached under "local:" plus the content hash.
func (l *Loader) LoadPasted(ctx context.Context, data []byte) (*Result, error) {
	key := LocalKey(data)
	if res, ok := l.fromCache(ctx, key); ok {
		return res, nil
	}
	res, err := l.Parse(data)
	if err != nil {
		return nil, err
	}
	res.Key = key
	l.store(ctx, key, data)
	return res, nil
}

// LocalKey is the cache key of a pasted document.
func LocalKey(data []byte) string {
	sum := blake2b.Sum256(data)
	return "local:" + hex.EncodeToString(sum[:])
}

// GistKey is the cache key of a Gist document.
func GistKey(id string) string {
	return "gist:" + id
}

// LoadGist returns the comparison stored in Gist id. A fresh cached copy is
// used unless refresh is set, in which case the entry is dropped and the Gist
// refetched. Concurrent loads of one id share a single request, which runs
// detached from any one caller: a caller that gives up returns its own
// context error while the others still get the result.
func (l *Loader) LoadGist(ctx context.Context, id string, refresh bool) (*Result, error) {
	if l.gists == nil {
		return nil, errors.New("gist loading is not configured")
	}
	key := GistKey(id)
	if refresh {
		if err := l.cache.Delete(ctx, key); err != nil {
			l.log.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
		}
	} else if res, ok := l.fromCache(ctx, key); ok {
		return res, nil
	}

	ch := l.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.fetchTimeout)
		defer cancel()
		file, err := l.gists.Fetch(fetchCtx, id)
		if err != nil {
			return nil, err
		}
		// Validate before caching so a broken Gist is never served as a hit.
		if _, err := comparison.Parse(file.Content); err != nil {
			return nil, err
		}
		l.store(fetchCtx, key, file.Content)
		return file, nil
	})
	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.Err != nil {
		l.log.Info("gist load failed", zap.String("gist_id", id), zap.Error(r.Err))
		return nil, r.Err
	}
	file := r.Val.(GistFile)
	if r.Shared {
		l.log.Debug("gist fetch shared", zap.String("gist_id", id))
	}

	res, err := l.Parse(file.Content)
	if err != nil {
		return nil, err
	}
	res.Key = key
	res.Gist = &file
	return res, nil
}

func (l *Loader) fromCache(ctx context.Context, key string) (*Result, bool) {
	entry, ok, err := l.cache.Get(ctx, key)
	if err != nil {
		l.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if !entry.Fresh(l.now(), l.ttl) {
		if err := l.cache.Delete(ctx, key); err != nil {
			l.log.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	res, err := l.Parse(entry.Data)
	if err != nil {
		// Entries are validated before they are written, so this is a
		// corrupted backend or a format change: drop it and reload.
		l.log.Warn("discarding invalid cache entry", zap.String("key", key), zap.Error(err))
		_ = l.cache.Delete(ctx, key)
		return nil, false
	}
	res.Key = key
	res.Cached = true
	res.StoredAt = entry.Timestamp
	return res, true
}

func (l *Loader) store(ctx context.Context, key string, data []byte) {
	entry := Entry{Data: data, Timestamp: l.now()}
	if err := l.cache.Set(ctx, key, entry); err != nil {
		l.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// resolve replaces every facts payload with the reference data. Unknown EIPs
// get empty data and are reported in Missing.
func (l *Loader) resolve(c *comparison.Comparison) (*Result, error) {
	res := &Result{Comparison: c}
	if l.refs == nil {
		return res, nil
	}
	for _, f := range c.Facts() {
		data, ok := l.refs.Facts(f.Section.EIPID)
		if !ok {
			res.Missing = append(res.Missing, &ReferenceMissingError{Section: f.Index, EIP: f.Section.EIPID})
			data = comparison.FactsData{}
		}
		next, err := res.Comparison.WithResolvedFacts(f.Index, data)
		if err != nil {
			return nil, fmt.Errorf("resolve facts: %w", err)
		}
		res.Comparison = next
	}
	return res, nil
}

// Example describes a bundled comparison.
type Example struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	EIPs        []int  `json:"eips"`
}

// Examples lists the bundled comparisons by name.
func (l *Loader) Examples() ([]Example, error) {
	entries, err := fs.ReadDir(examplesFS, "examples")
	if err != nil {
		return nil, fmt.Errorf("read examples: %w", err)
	}
	out := make([]Example, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		data, err := examplesFS.ReadFile("examples/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read example %s: %w", name, err)
		}
		c, err := comparison.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("example %s: %w", name, err)
		}
		out = append(out, Example{
			Name:        name,
			Title:       c.Meta.Title,
			Description: c.Meta.Description,
			EIPs:        c.EIPs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LoadExample loads a bundled comparison by name.
func (l *Loader) LoadExample(name string) (*Result, error) {
	if name == "" || strings.ContainsAny(name, "/\\.") {
		return nil, fmt.Errorf("%w: %q", ErrExampleNotFound, name)
	}
	data, err := examplesFS.ReadFile("examples/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrExampleNotFound, name)
	}
	res, err := l.Parse(data)
	if err != nil {
		return nil, err
	}
	res.Key = "example:" + name
	return res, nil
}
