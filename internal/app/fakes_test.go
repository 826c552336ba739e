package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"forkcast/api/internal/config"
	"forkcast/api/internal/eips"
	"forkcast/api/internal/export"
	"forkcast/api/internal/gitrepo"
	"forkcast/api/internal/loader"
	"forkcast/api/internal/render"
	"forkcast/api/internal/search"
	"forkcast/api/internal/store"
)

type fakeStore struct {
	mu        sync.Mutex
	drafts    map[string]store.Draft
	published map[string]string
	insertFn  func(context.Context, store.Draft) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{drafts: map[string]store.Draft{}, published: map[string]string{}}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) InsertDraft(ctx context.Context, d store.Draft) (store.Draft, error) {
	if f.insertFn != nil {
		if err := f.insertFn(ctx, d); err != nil {
			return store.Draft{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	d.CreatedAt, d.UpdatedAt = now, now
	f.drafts[d.ID] = d
	return d, nil
}

func (f *fakeStore) GetDraft(_ context.Context, id string) (store.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[id]
	if !ok {
		return store.Draft{}, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) UpdateDraft(_ context.Context, d store.Draft) (store.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.drafts[d.ID]; !ok {
		return store.Draft{}, store.ErrNotFound
	}
	d.UpdatedAt = d.UpdatedAt.Add(time.Minute)
	f.drafts[d.ID] = d
	return d, nil
}

func (f *fakeStore) MarkPublished(_ context.Context, id, gistID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[id]
	if !ok {
		return store.ErrNotFound
	}
	d.GistID = gistID
	d.PublishedAt = &at
	f.drafts[id] = d
	f.published[id] = gistID
	return nil
}

func (f *fakeStore) ListDrafts(_ context.Context, eip, limit int) ([]store.DraftSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.DraftSummary{}
	for _, d := range f.drafts {
		if eip > 0 && !containsInt(d.EIPs, eip) {
			continue
		}
		out = append(out, store.DraftSummary{ID: d.ID, Title: d.Title, Author: d.Author, EIPs: d.EIPs, HeadCommit: d.HeadCommit, UpdatedAt: d.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) DeleteDraft(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.drafts[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.drafts, id)
	return nil
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

type fakeGists struct {
	fetchFn func(ctx context.Context, id string) (loader.GistFile, error)
}

func (f *fakeGists) Fetch(ctx context.Context, id string) (loader.GistFile, error) {
	if f.fetchFn == nil {
		return loader.GistFile{}, &loader.NotFoundError{ID: id}
	}
	return f.fetchFn(ctx, id)
}

type fakePublisher struct {
	mu       sync.Mutex
	requests []loader.CreateGistRequest
	createFn func(loader.CreateGistRequest) (loader.CreatedGist, error)
}

func (f *fakePublisher) Create(_ context.Context, in loader.CreateGistRequest) (loader.CreatedGist, error) {
	f.mu.Lock()
	f.requests = append(f.requests, in)
	f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn(in)
	}
	return loader.CreatedGist{ID: "abc123", HTMLURL: "https://gist.github.com/abc123"}, nil
}

type testEnv struct {
	server *HTTPServer
	store  *fakeStore
	gists  *fakeGists
}

func newTestEnv(t *testing.T, configure ...func(*Deps)) *testEnv {
	t.Helper()
	ds := eips.Default()
	env := &testEnv{store: newFakeStore(), gists: &fakeGists{}}
	deps := Deps{
		Loader: loader.New(env.gists, nil, ds),
		EIPs:   ds,
		Export: export.NewService(render.New(ds)),
		Search: search.NewService(nil, search.NewLocal(ds), nil, nil),
		Store:  env.store,
		Git:    gitrepo.New(t.TempDir()),
	}
	for _, fn := range configure {
		fn(&deps)
	}
	env.server = NewHTTPServer(New(config.Config{}, deps), "*", nil)
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	payload := decodeJSON(t, rr)
	if payload["code"] != code {
		t.Fatalf("expected code %s, got %v", code, payload["code"])
	}
	return payload
}
