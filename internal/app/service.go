package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"forkcast/api/internal/comparison"
	"forkcast/api/internal/config"
	"forkcast/api/internal/eips"
	"forkcast/api/internal/export"
	"forkcast/api/internal/gitrepo"
	"forkcast/api/internal/loader"
	"forkcast/api/internal/search"
	"forkcast/api/internal/store"
	"forkcast/api/internal/util"
)

const (
	defaultDraftLimit   = 50
	defaultHistoryLimit = 50
)

type draftStore interface {
	Ping(context.Context) error
	InsertDraft(context.Context, store.Draft) (store.Draft, error)
	GetDraft(context.Context, string) (store.Draft, error)
	UpdateDraft(context.Context, store.Draft) (store.Draft, error)
	MarkPublished(context.Context, string, string, time.Time) error
	ListDrafts(context.Context, int, int) ([]store.DraftSummary, error)
	DeleteDraft(context.Context, string) error
}

type gitStore interface {
	EnsureRepo(string, []byte, string) (gitrepo.CommitInfo, error)
	Commit(string, []byte, string, string) (gitrepo.CommitInfo, error)
	History(string, int) ([]gitrepo.CommitInfo, error)
	ReadAt(string, string) ([]byte, gitrepo.CommitInfo, error)
	Remove(string) error
}

type GistPublisher interface {
	Create(context.Context, loader.CreateGistRequest) (loader.CreatedGist, error)
}

// Check is a named readiness probe.
type Check struct {
	Name string
	Ping func(context.Context) error
}

// Deps are the collaborators of Service. Store and Git are both set or both
// nil; without them the draft routes answer 503.
type Deps struct {
	Loader *loader.Loader
	EIPs   *eips.Dataset
	Export *export.Service
	Search *search.Service
	Store  draftStore
	Git    gitStore
	// Gists publishes with the server's token.
	Gists GistPublisher
	// GistsForToken builds a publisher for a caller-supplied token.
	GistsForToken func(token string) GistPublisher
	Checks        []Check
	Log           *zap.Logger
}

type Service struct {
	cfg           config.Config
	loader        *loader.Loader
	eips          *eips.Dataset
	export        *export.Service
	search        *search.Service
	store         draftStore
	git           gitStore
	gists         GistPublisher
	gistsForToken func(string) GistPublisher
	checks        []Check
	log           *zap.Logger
	now           func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:           cfg,
		loader:        deps.Loader,
		eips:          deps.EIPs,
		export:        deps.Export,
		search:        deps.Search,
		store:         deps.Store,
		git:           deps.Git,
		gists:         deps.Gists,
		gistsForToken: deps.GistsForToken,
		checks:        deps.Checks,
		log:           log,
		now:           time.Now,
	}
}

// Ready runs every check and reports whether all passed.
func (s *Service) Ready(ctx context.Context) (bool, map[string]any) {
	ok := true
	checks := make(map[string]any, len(s.checks))
	for _, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			ok = false
			checks[c.Name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[c.Name] = map[string]any{"status": "ok"}
	}
	return ok, checks
}

// Validate parses a pasted document and summarises it.
func (s *Service) Validate(ctx context.Context, data []byte) (map[string]any, error) {
	res, err := s.loader.LoadPasted(ctx, data)
	if err != nil {
		return nil, err
	}
	kinds := make([]string, 0, len(res.Comparison.Sections))
	for _, sec := range res.Comparison.Sections {
		kinds = append(kinds, string(sec.Kind()))
	}
	return map[string]any{
		"ok":       true,
		"key":      res.Key,
		"title":    res.Comparison.Meta.Title,
		"eips":     res.Comparison.EIPs,
		"sections": kinds,
		"missing":  missingPayload(res.Missing),
	}, nil
}

// RenderPasted renders a pasted document as a standalone page.
func (s *Service) RenderPasted(ctx context.Context, data []byte) (string, error) {
	res, err := s.loader.LoadPasted(ctx, data)
	if err != nil {
		return "", err
	}
	return s.export.HTML(res.Comparison)
}

func (s *Service) Gist(ctx context.Context, id string, refresh bool) (*loader.Result, error) {
	res, err := s.loader.LoadGist(ctx, id, refresh)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GistPayload loads Gist id for the JSON endpoint.
func (s *Service) GistPayload(ctx context.Context, id string, refresh bool) (map[string]any, error) {
	res, err := s.Gist(ctx, id, refresh)
	if err != nil {
		return nil, err
	}
	return resultPayload(res), nil
}

// GistHTML renders Gist id as a standalone page.
func (s *Service) GistHTML(ctx context.Context, id string, refresh bool) (string, error) {
	res, err := s.Gist(ctx, id, refresh)
	if err != nil {
		return "", err
	}
	return s.export.HTML(res.Comparison)
}

type PublishInput struct {
	Comparison json.RawMessage `json:"comparison"`
	DraftID    string          `json:"draftId"`
	Public     bool            `json:"public"`
}

// PublishGist publishes a document, or a draft's head, as a new Gist. token
// overrides the server's GitHub token when set.
func (s *Service) PublishGist(ctx context.Context, token string, in PublishInput) (map[string]any, error) {
	publisher := s.gists
	if token != "" && s.gistsForToken != nil {
		publisher = s.gistsForToken(token)
	}
	if publisher == nil {
		return nil, errGistsDisabled
	}

	var (
		c   *comparison.Comparison
		err error
	)
	switch {
	case in.DraftID != "":
		c, _, err = s.loadDraft(ctx, in.DraftID)
	case len(in.Comparison) > 0:
		var res *loader.Result
		res, err = s.loader.Parse(in.Comparison)
		if res != nil {
			c = res.Comparison
		}
	default:
		return nil, errValidation("comparison or draftId is required")
	}
	if err != nil {
		return nil, err
	}

	content, err := comparison.MarshalIndent(c)
	if err != nil {
		return nil, fmt.Errorf("marshal comparison: %w", err)
	}
	filename := gistFilename(c.Meta.Title)
	created, err := publisher.Create(ctx, loader.CreateGistRequest{
		Description: strings.TrimSpace("Forkcast comparison: " + c.Meta.Title),
		Public:      in.Public,
		Files:       map[string][]byte{filename: content},
	})
	if err != nil {
		return nil, err
	}

	if in.DraftID != "" && s.store != nil {
		if err := s.store.MarkPublished(ctx, in.DraftID, created.ID, s.now().UTC()); err != nil {
			s.log.Warn("mark draft published", zap.String("draft_id", in.DraftID), zap.Error(err))
		}
	}
	return map[string]any{
		"id":       created.ID,
		"url":      created.HTMLURL,
		"filename": filename,
	}, nil
}

func (s *Service) Examples() ([]loader.Example, error) {
	return s.loader.Examples()
}

func (s *Service) Example(name string) (map[string]any, error) {
	res, err := s.loader.LoadExample(name)
	if err != nil {
		return nil, err
	}
	return resultPayload(res), nil
}

func (s *Service) ExampleHTML(name string) (string, error) {
	res, err := s.loader.LoadExample(name)
	if err != nil {
		return "", err
	}
	return s.export.HTML(res.Comparison)
}

type CreateDraftInput struct {
	// Comparison is a full document. When absent a default document is built
	// from Meta and EIPs.
	Comparison json.RawMessage `json:"comparison"`
	Meta       comparison.Meta `json:"meta"`
	EIPs       []int           `json:"eips"`
}

type UpdateDraftInput struct {
	Comparison json.RawMessage `json:"comparison"`
	Message    string          `json:"message"`
}

func (s *Service) draftsEnabled() bool {
	return s.store != nil && s.git != nil
}

func (s *Service) CreateDraft(ctx context.Context, in CreateDraftInput) (map[string]any, error) {
	if !s.draftsEnabled() {
		return nil, errDraftsDisabled
	}

	var c *comparison.Comparison
	if len(in.Comparison) > 0 {
		res, err := s.loader.Parse(in.Comparison)
		if err != nil {
			return nil, err
		}
		c = res.Comparison
	} else {
		if len(in.EIPs) == 0 {
			return nil, errValidation("eips must list at least one EIP")
		}
		c = comparison.NewDefault(in.Meta, in.EIPs)
		if err := comparison.Validate(c); err != nil {
			return nil, err
		}
	}

	content, err := comparison.MarshalIndent(c)
	if err != nil {
		return nil, fmt.Errorf("marshal comparison: %w", err)
	}
	id := util.NewID("drf")
	head, err := s.git.EnsureRepo(id, content, c.Meta.Author)
	if err != nil {
		return nil, fmt.Errorf("create draft repo: %w", err)
	}
	draft, err := s.store.InsertDraft(ctx, store.Draft{
		ID:         id,
		Title:      c.Meta.Title,
		Author:     c.Meta.Author,
		EIPs:       c.EIPs,
		Content:    content,
		HeadCommit: head.Hash,
	})
	if err != nil {
		if rmErr := s.git.Remove(id); rmErr != nil {
			s.log.Warn("remove orphaned draft repo", zap.String("draft_id", id), zap.Error(rmErr))
		}
		return nil, fmt.Errorf("insert draft: %w", err)
	}
	s.indexDraft(draft, c)

	return map[string]any{
		"draft":      draftPayload(draft),
		"comparison": c,
		"commit":     head,
	}, nil
}

func (s *Service) loadDraft(ctx context.Context, id string) (*comparison.Comparison, store.Draft, error) {
	if !s.draftsEnabled() {
		return nil, store.Draft{}, errDraftsDisabled
	}
	draft, err := s.store.GetDraft(ctx, id)
	if err != nil {
		return nil, store.Draft{}, err
	}
	res, err := s.loader.Parse(draft.Content)
	if err != nil {
		return nil, store.Draft{}, fmt.Errorf("stored draft %s: %w", id, err)
	}
	return res.Comparison, draft, nil
}

func (s *Service) GetDraft(ctx context.Context, id string) (map[string]any, error) {
	c, draft, err := s.loadDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"draft": draftPayload(draft), "comparison": c}, nil
}

func (s *Service) ListDrafts(ctx context.Context, eip, limit int) (map[string]any, error) {
	if !s.draftsEnabled() {
		return nil, errDraftsDisabled
	}
	if limit <= 0 || limit > 200 {
		limit = defaultDraftLimit
	}
	drafts, err := s.store.ListDrafts(ctx, eip, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(drafts))
	for _, d := range drafts {
		items = append(items, map[string]any{
			"id":         d.ID,
			"title":      d.Title,
			"author":     d.Author,
			"eips":       d.EIPs,
			"headCommit": d.HeadCommit,
			"gistId":     nilIfEmpty(d.GistID),
			"updatedAt":  d.UpdatedAt,
		})
	}
	return map[string]any{"drafts": items}, nil
}

// UpdateDraft commits a new version of the document and reports what changed.
func (s *Service) UpdateDraft(ctx context.Context, id string, in UpdateDraftInput) (map[string]any, error) {
	if len(in.Comparison) == 0 {
		return nil, errValidation("comparison is required")
	}
	before, draft, err := s.loadDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.loader.Parse(in.Comparison)
	if err != nil {
		return nil, err
	}
	return s.commitDraft(ctx, draft, before, res.Comparison, in.Message)
}

// AddFacts appends a forkcast-facts section for eip to the draft.
func (s *Service) AddFacts(ctx context.Context, id string, eip int) (map[string]any, error) {
	data, ok := s.eips.Facts(eip)
	if !ok {
		return nil, errEIPNotFound(eip)
	}
	before, draft, err := s.loadDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	after := before.WithFacts(eip, data)
	return s.commitDraft(ctx, draft, before, after, "Add Forkcast facts for "+eips.Label(eip))
}

func (s *Service) commitDraft(ctx context.Context, draft store.Draft, before, after *comparison.Comparison, message string) (map[string]any, error) {
	changes := gitrepo.Diff(before, after)
	if len(changes) == 0 {
		return map[string]any{
			"draft":      draftPayload(draft),
			"comparison": before,
			"changes":    changes,
		}, nil
	}
	if strings.TrimSpace(message) == "" {
		message = summarizeChanges(changes)
	}
	content, err := comparison.MarshalIndent(after)
	if err != nil {
		return nil, fmt.Errorf("marshal comparison: %w", err)
	}
	head, err := s.git.Commit(draft.ID, content, after.Meta.Author, message)
	if err != nil {
		return nil, fmt.Errorf("commit draft: %w", err)
	}

	draft.Title = after.Meta.Title
	draft.Author = after.Meta.Author
	draft.EIPs = after.EIPs
	draft.Content = content
	draft.HeadCommit = head.Hash
	updated, err := s.store.UpdateDraft(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("update draft: %w", err)
	}
	s.indexDraft(updated, after)

	return map[string]any{
		"draft":      draftPayload(updated),
		"comparison": after,
		"commit":     head,
		"changes":    changes,
	}, nil
}

func (s *Service) DeleteDraft(ctx context.Context, id string) error {
	if !s.draftsEnabled() {
		return errDraftsDisabled
	}
	if err := s.store.DeleteDraft(ctx, id); err != nil {
		return err
	}
	if err := s.git.Remove(id); err != nil && !errors.Is(err, gitrepo.ErrRepoNotFound) {
		s.log.Warn("remove draft repo", zap.String("draft_id", id), zap.Error(err))
	}
	if s.search != nil {
		s.search.DeleteDraft(id)
	}
	return nil
}

func (s *Service) DraftHistory(ctx context.Context, id string, limit int) (map[string]any, error) {
	if !s.draftsEnabled() {
		return nil, errDraftsDisabled
	}
	if _, err := s.store.GetDraft(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	commits, err := s.git.History(id, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"draftId": id, "commits": commits}, nil
}

// DraftVersion returns the document as of commit hash, with the changes from
// that version to the current head.
func (s *Service) DraftVersion(ctx context.Context, id, hash string) (map[string]any, error) {
	current, _, err := s.loadDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	content, commit, err := s.git.ReadAt(id, hash)
	if err != nil {
		return nil, err
	}
	res, err := s.loader.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("draft %s at %s: %w", id, hash, err)
	}
	return map[string]any{
		"commit":        commit,
		"comparison":    res.Comparison,
		"changesToHead": gitrepo.Diff(res.Comparison, current),
	}, nil
}

func (s *Service) ExportDraft(ctx context.Context, id string, format export.Format) (*export.Result, error) {
	c, _, err := s.loadDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.export.Export(ctx, c, format)
}

func (s *Service) indexDraft(d store.Draft, c *comparison.Comparison) {
	if s.search == nil {
		return
	}
	s.search.IndexDraft(search.DraftRecord{
		ID:          d.ID,
		Title:       d.Title,
		Author:      d.Author,
		Description: c.Meta.Description,
		EIPs:        d.EIPs,
	})
}

// Search runs a query over EIPs and drafts.
func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}

func (s *Service) EIP(id int) (map[string]any, error) {
	rec, ok := s.eips.Lookup(id)
	if !ok {
		return nil, errEIPNotFound(id)
	}
	facts, _ := s.eips.Facts(id)
	return map[string]any{"eip": rec, "label": eips.Label(id), "facts": facts}, nil
}

func (s *Service) Forks() []map[string]any {
	forks := s.eips.Forks()
	out := make([]map[string]any, 0, len(forks))
	for _, f := range forks {
		members := s.eips.InFork(f.Name)
		ids := make([]int, 0, len(members))
		for _, rec := range members {
			ids = append(ids, rec.ID)
		}
		out = append(out, map[string]any{
			"name":           f.Name,
			"status":         f.Status,
			"activationDate": nilIfEmpty(f.ActivationDate),
			"description":    f.Description,
			"eips":           ids,
		})
	}
	return out
}

func resultPayload(res *loader.Result) map[string]any {
	payload := map[string]any{
		"comparison": res.Comparison,
		"key":        res.Key,
		"cached":     res.Cached,
		"missing":    missingPayload(res.Missing),
	}
	if !res.StoredAt.IsZero() {
		payload["storedAt"] = res.StoredAt
	}
	if g := res.Gist; g != nil {
		payload["gist"] = map[string]any{
			"id":       g.GistID,
			"file":     g.Name,
			"url":      g.HTMLURL,
			"owner":    nilIfEmpty(g.Owner),
			"modified": g.Modified,
		}
	}
	return payload
}

func missingPayload(missing []*loader.ReferenceMissingError) []map[string]any {
	out := make([]map[string]any, 0, len(missing))
	for _, m := range missing {
		out = append(out, map[string]any{"section": m.Section, "eip": m.EIP})
	}
	return out
}

func draftPayload(d store.Draft) map[string]any {
	var published any
	if d.PublishedAt != nil {
		published = *d.PublishedAt
	}
	return map[string]any{
		"id":          d.ID,
		"title":       d.Title,
		"author":      d.Author,
		"eips":        d.EIPs,
		"headCommit":  d.HeadCommit,
		"gistId":      nilIfEmpty(d.GistID),
		"publishedAt": published,
		"createdAt":   d.CreatedAt,
		"updatedAt":   d.UpdatedAt,
	}
}

func summarizeChanges(changes []gitrepo.Change) string {
	fields := make([]string, 0, len(changes))
	for i, c := range changes {
		if i == 3 {
			fields = append(fields, fmt.Sprintf("%d more", len(changes)-3))
			break
		}
		fields = append(fields, c.Field)
	}
	return "Update " + strings.Join(fields, ", ")
}

func gistFilename(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "-") {
				b.WriteByte('-')
			}
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "comparison"
	}
	return name + ".json"
}

func nilIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
