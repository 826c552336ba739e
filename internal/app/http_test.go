package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"forkcast/api/internal/comparison"
	"forkcast/api/internal/export"
	"forkcast/api/internal/gitrepo"
	"forkcast/api/internal/loader"
	"forkcast/api/internal/store"
)

const validDoc = `{
	"meta": {"title": "AA vs Auth", "author": "Avery (@avery)", "created": "2025-01-01", "description": "Account abstraction"},
	"eips": [7702, 3074],
	"sections": [
		{"type": "author-preference", "preferredEip": 7702, "strength": "strong", "reasoning": "Simpler"},
		{"type": "forkcast-facts", "source": "forkcast", "eipId": 7702}
	]
}`

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if payload := decodeJSON(t, rr); payload["ok"] != true {
		t.Errorf("expected ok=true, got %v", payload["ok"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		redisErr   error
		wantStatus int
		wantState  string
	}{
		{name: "all healthy", wantStatus: http.StatusOK, wantState: "ready"},
		{name: "redis down", redisErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantState: "not_ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(d *Deps) {
				d.Checks = []Check{
					{Name: "database", Ping: func(context.Context) error { return nil }},
					{Name: "redis", Ping: func(context.Context) error { return tt.redisErr }},
				}
			})
			rr := env.do(t, http.MethodGet, "/api/ready", "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			payload := decodeJSON(t, rr)
			if payload["status"] != tt.wantState {
				t.Errorf("status = %v", payload["status"])
			}
			checks := payload["checks"].(map[string]any)
			redis := checks["redis"].(map[string]any)
			if tt.redisErr != nil && redis["error"] != "connection refused" {
				t.Errorf("redis check = %v", redis)
			}
			if db := checks["database"].(map[string]any); db["status"] != "ok" {
				t.Errorf("database check = %v", db)
			}
		})
	}
}

func TestValidateAndRender(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/comparisons/validate", validDoc)
	if rr.Code != http.StatusOK {
		t.Fatalf("validate: status %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeJSON(t, rr)
	sections := payload["sections"].([]any)
	if len(sections) != 2 || sections[1] != "forkcast-facts" {
		t.Errorf("sections = %v", sections)
	}
	if !strings.HasPrefix(payload["key"].(string), "local:") {
		t.Errorf("key = %v", payload["key"])
	}

	rr = env.do(t, http.MethodPost, "/api/comparisons/render", validDoc)
	if rr.Code != http.StatusOK {
		t.Fatalf("render: status %d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	page := rr.Body.String()
	if !strings.Contains(page, "AA vs Auth") || !strings.Contains(page, "external-source") {
		t.Error("rendered page missing title or facts section")
	}
}

func TestValidateRejectsMalformedDocuments(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name    string
		body    string
		status  int
		code    string
		message string
	}{
		{name: "empty body", body: "", status: http.StatusBadRequest, code: "INVALID_BODY"},
		{name: "not json", body: "{nope", status: http.StatusUnprocessableEntity, code: "FORMAT_ERROR", message: "Invalid JSON: the document must be a JSON object"},
		{name: "missing sections", body: `{"meta":{},"eips":[1]}`, status: http.StatusUnprocessableEntity, code: "FORMAT_ERROR", message: `Missing required field "sections"`},
		{
			name:    "preferred eip not compared",
			body:    `{"meta":{},"eips":[1,2],"sections":[{"type":"author-preference","preferredEip":9,"strength":"strong","reasoning":"r"}]}`,
			status:  http.StatusUnprocessableEntity,
			code:    "FORMAT_ERROR",
			message: "Section 1:",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/comparisons/validate", tt.body)
			payload := expectError(t, rr, tt.status, tt.code)
			if tt.message != "" && !strings.HasPrefix(payload["error"].(string), tt.message) {
				t.Errorf("error = %q, want prefix %q", payload["error"], tt.message)
			}
		})
	}
}

func TestOversizedBodiesAreRejected(t *testing.T) {
	env := newTestEnv(t)
	// Valid JSON once the padding is skipped, so only the size can fail it.
	padded := strings.Repeat(" ", maxBodyBytes) + validDoc
	for _, target := range []string{"/api/comparisons/validate", "/api/comparisons/render", "/api/drafts"} {
		t.Run(target, func(t *testing.T) {
			payload := expectError(t, env.do(t, http.MethodPost, target, padded), http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE")
			if payload["error"] != "Request body exceeds 5 MiB" {
				t.Errorf("error = %q", payload["error"])
			}
		})
	}

	rr := env.do(t, http.MethodPost, "/api/comparisons/validate", strings.Repeat(" ", maxBodyBytes-len(validDoc))+validDoc)
	if rr.Code != http.StatusOK {
		t.Errorf("body at the limit: status %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGistRoutes(t *testing.T) {
	env := newTestEnv(t)
	var calls int
	env.gists.fetchFn = func(_ context.Context, id string) (loader.GistFile, error) {
		calls++
		switch id {
		case "abc123":
			return loader.GistFile{GistID: id, Name: "aa.json", Content: []byte(validDoc), HTMLURL: "https://gist.github.com/abc123", Owner: "avery"}, nil
		case "nojson":
			return loader.GistFile{}, comparison.NewFormatError(loader.NoJSONFileMessage, nil)
		case "flaky":
			return loader.GistFile{}, &loader.RemoteError{ID: id, Status: http.StatusBadGateway, Body: "bad gateway"}
		default:
			return loader.GistFile{}, &loader.NotFoundError{ID: id}
		}
	}

	rr := env.do(t, http.MethodGet, "/api/gists/abc123", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get gist: status %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeJSON(t, rr)
	if gist := payload["gist"].(map[string]any); gist["id"] != "abc123" || gist["owner"] != "avery" {
		t.Errorf("gist = %v", gist)
	}
	if payload["cached"] != false {
		t.Errorf("first load should not be cached")
	}

	rr = env.do(t, http.MethodGet, "/api/gists/abc123/view", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "AA vs Auth") {
		t.Fatalf("view gist: status %d", rr.Code)
	}
	if calls != 1 {
		t.Errorf("fetches = %d, second load should come from cache", calls)
	}
	env.do(t, http.MethodGet, "/api/gists/abc123?refresh=1", "")
	if calls != 2 {
		t.Errorf("fetches = %d, refresh should refetch", calls)
	}

	payload = expectError(t, env.do(t, http.MethodGet, "/api/gists/missing", ""), http.StatusNotFound, "GIST_NOT_FOUND")
	if payload["error"] != loader.NotFoundMessage {
		t.Errorf("error = %q", payload["error"])
	}
	payload = expectError(t, env.do(t, http.MethodGet, "/api/gists/nojson", ""), http.StatusUnprocessableEntity, "FORMAT_ERROR")
	if payload["error"] != "No JSON file found in this Gist" {
		t.Errorf("error = %q", payload["error"])
	}
	expectError(t, env.do(t, http.MethodGet, "/api/gists/flaky", ""), http.StatusBadGateway, "GIST_UNAVAILABLE")
	expectError(t, env.do(t, http.MethodPost, "/api/gists/abc123", ""), http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
}

func TestPublishGist(t *testing.T) {
	server := &fakePublisher{}
	user := &fakePublisher{createFn: func(loader.CreateGistRequest) (loader.CreatedGist, error) {
		return loader.CreatedGist{ID: "usr1", HTMLURL: "https://gist.github.com/usr1"}, nil
	}}
	var gotToken string
	env := newTestEnv(t, func(d *Deps) {
		d.Gists = server
		d.GistsForToken = func(token string) GistPublisher {
			gotToken = token
			return user
		}
	})

	body := fmt.Sprintf(`{"comparison": %s, "public": true}`, validDoc)
	rr := env.do(t, http.MethodPost, "/api/gists", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("publish: status %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeJSON(t, rr)
	if payload["id"] != "abc123" || payload["filename"] != "aa-vs-auth.json" {
		t.Errorf("payload = %v", payload)
	}
	if len(server.requests) != 1 || !server.requests[0].Public {
		t.Fatalf("server publisher requests = %+v", server.requests)
	}
	published, err := comparison.Parse(server.requests[0].Files["aa-vs-auth.json"])
	if err != nil {
		t.Fatalf("published file should be a valid comparison: %v", err)
	}
	if published.Meta.Title != "AA vs Auth" {
		t.Errorf("published title = %q", published.Meta.Title)
	}

	rr = env.do(t, http.MethodPost, "/api/gists", body, "Authorization", "Bearer user-token")
	if rr.Code != http.StatusCreated || gotToken != "user-token" || len(user.requests) != 1 {
		t.Fatalf("publish with caller token: status %d token %q", rr.Code, gotToken)
	}

	expectError(t, env.do(t, http.MethodPost, "/api/gists", `{}`), http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	anonymous := newTestEnv(t, func(d *Deps) {
		d.Gists = &fakePublisher{createFn: func(loader.CreateGistRequest) (loader.CreatedGist, error) {
			return loader.CreatedGist{}, loader.ErrTokenRequired
		}}
	})
	expectError(t, anonymous.do(t, http.MethodPost, "/api/gists", body), http.StatusUnauthorized, "GITHUB_TOKEN_REQUIRED")
	expectError(t, newTestEnv(t).do(t, http.MethodPost, "/api/gists", body), http.StatusServiceUnavailable, "GISTS_UNAVAILABLE")
}

func TestExampleRoutes(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/examples", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list examples: status %d", rr.Code)
	}
	examples := decodeJSON(t, rr)["examples"].([]any)
	if len(examples) < 2 {
		t.Fatalf("examples = %v", examples)
	}
	first := examples[0].(map[string]any)
	name := first["name"].(string)

	rr = env.do(t, http.MethodGet, "/api/examples/"+name, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get example: status %d body=%s", rr.Code, rr.Body.String())
	}
	if key := decodeJSON(t, rr)["key"]; key != "example:"+name {
		t.Errorf("key = %v", key)
	}

	rr = env.do(t, http.MethodGet, "/api/examples/"+name+"/view", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "<!DOCTYPE html>") {
		t.Errorf("view example: status %d", rr.Code)
	}

	expectError(t, env.do(t, http.MethodGet, "/api/examples/nope", ""), http.StatusNotFound, "EXAMPLE_NOT_FOUND")
	expectError(t, env.do(t, http.MethodGet, "/api/examples/bad.name", ""), http.StatusNotFound, "EXAMPLE_NOT_FOUND")
}

func TestDraftLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/drafts", `{"meta":{"title":"AA","author":"Avery"},"eips":[7702,3074]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: status %d body=%s", rr.Code, rr.Body.String())
	}
	created := decodeJSON(t, rr)
	draft := created["draft"].(map[string]any)
	id := draft["id"].(string)
	if !strings.HasPrefix(id, "drf_") {
		t.Fatalf("draft id = %q", id)
	}
	sections := created["comparison"].(map[string]any)["sections"].([]any)
	if len(sections) != 1 || sections[0].(map[string]any)["type"] != "author-preference" {
		t.Fatalf("default document sections = %v", sections)
	}
	firstHash := created["commit"].(map[string]any)["fullHash"].(string)

	update := `{"message":"Retitle and summarise","comparison":{
		"meta":{"title":"AA, revised","author":"Avery"},
		"eips":[7702,3074],
		"sections":[
			{"type":"author-preference","preferredEip":7702,"strength":"moderate","reasoning":""},
			{"type":"summary","points":["Set code wins"]}
		]}}`
	rr = env.do(t, http.MethodPut, "/api/drafts/"+id, update)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: status %d body=%s", rr.Code, rr.Body.String())
	}
	changes := decodeJSON(t, rr)["changes"].([]any)
	if len(changes) != 2 {
		t.Fatalf("changes = %v", changes)
	}
	if c := changes[0].(map[string]any); c["field"] != "meta.title" || c["after"] != "AA, revised" {
		t.Errorf("first change = %v", c)
	}

	rr = env.do(t, http.MethodPut, "/api/drafts/"+id, update)
	if got := decodeJSON(t, rr)["changes"].([]any); len(got) != 0 {
		t.Errorf("identical update should report no changes, got %v", got)
	}

	rr = env.do(t, http.MethodPost, "/api/drafts/"+id+"/facts", `{"eip":7702}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("facts: status %d body=%s", rr.Code, rr.Body.String())
	}
	sections = decodeJSON(t, rr)["comparison"].(map[string]any)["sections"].([]any)
	facts := sections[len(sections)-1].(map[string]any)
	if facts["type"] != "forkcast-facts" || facts["eipId"] != float64(7702) || facts["data"] == nil {
		t.Errorf("facts section = %v", facts)
	}
	expectError(t, env.do(t, http.MethodPost, "/api/drafts/"+id+"/facts", `{"eip":999999}`), http.StatusNotFound, "EIP_NOT_FOUND")

	rr = env.do(t, http.MethodGet, "/api/drafts/"+id+"/history", "")
	commits := decodeJSON(t, rr)["commits"].([]any)
	if len(commits) != 3 {
		t.Fatalf("history = %v", commits)
	}
	if msg := commits[0].(map[string]any)["message"]; msg != "Add Forkcast facts for EIP-7702" {
		t.Errorf("latest commit message = %v", msg)
	}
	if msg := commits[1].(map[string]any)["message"]; msg != "Retitle and summarise" {
		t.Errorf("update commit message = %v", msg)
	}

	rr = env.do(t, http.MethodGet, "/api/drafts/"+id+"/versions/"+firstHash, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("version: status %d body=%s", rr.Code, rr.Body.String())
	}
	version := decodeJSON(t, rr)
	if title := version["comparison"].(map[string]any)["meta"].(map[string]any)["title"]; title != "AA" {
		t.Errorf("title at first version = %v", title)
	}
	if len(version["changesToHead"].([]any)) == 0 {
		t.Error("first version should differ from head")
	}
	expectError(t, env.do(t, http.MethodGet, "/api/drafts/"+id+"/versions/0000000000000000000000000000000000000000", ""), http.StatusNotFound, "VERSION_NOT_FOUND")

	rr = env.do(t, http.MethodGet, "/api/drafts/"+id+"/export?format=html", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("export: status %d body=%s", rr.Code, rr.Body.String())
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="aa-revised.html"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	expectError(t, env.do(t, http.MethodGet, "/api/drafts/"+id+"/export?format=odt", ""), http.StatusBadRequest, "UNSUPPORTED_FORMAT")

	rr = env.do(t, http.MethodGet, "/api/drafts?eip=3074", "")
	if list := decodeJSON(t, rr)["drafts"].([]any); len(list) != 1 {
		t.Errorf("drafts comparing 3074 = %v", list)
	}
	rr = env.do(t, http.MethodGet, "/api/drafts?eip=1559", "")
	if list := decodeJSON(t, rr)["drafts"].([]any); len(list) != 0 {
		t.Errorf("drafts comparing 1559 = %v", list)
	}

	if rr = env.do(t, http.MethodDelete, "/api/drafts/"+id, ""); rr.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rr.Code)
	}
	expectError(t, env.do(t, http.MethodGet, "/api/drafts/"+id, ""), http.StatusNotFound, "DRAFT_NOT_FOUND")
	expectError(t, env.do(t, http.MethodGet, "/api/drafts/"+id+"/history", ""), http.StatusNotFound, "DRAFT_NOT_FOUND")
}

func TestCreateDraftValidation(t *testing.T) {
	env := newTestEnv(t)
	expectError(t, env.do(t, http.MethodPost, "/api/drafts", `{"meta":{"title":"x"}}`), http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	expectError(t, env.do(t, http.MethodPost, "/api/drafts", `{"comparison":{"meta":{}}}`), http.StatusUnprocessableEntity, "FORMAT_ERROR")
	expectError(t, env.do(t, http.MethodPost, "/api/drafts", `{nope`), http.StatusBadRequest, "INVALID_BODY")

	rr := env.do(t, http.MethodPost, "/api/drafts", fmt.Sprintf(`{"comparison": %s}`, validDoc))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create from document: status %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateDraftRemovesRepoWhenInsertFails(t *testing.T) {
	git := gitrepo.New(t.TempDir())
	env := newTestEnv(t, func(d *Deps) { d.Git = git })
	var failedID string
	env.store.insertFn = func(_ context.Context, d store.Draft) error {
		failedID = d.ID
		return errors.New("disk full")
	}

	expectError(t, env.do(t, http.MethodPost, "/api/drafts", `{"meta":{"title":"AA"},"eips":[7702]}`), http.StatusInternalServerError, "SERVER_ERROR")
	if _, err := git.Head(failedID); !errors.Is(err, gitrepo.ErrRepoNotFound) {
		t.Errorf("repo for failed draft should be removed, Head() error = %v", err)
	}
}

func TestDraftRoutesWithoutStorage(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Store = nil
		d.Git = nil
	})
	for _, route := range []struct{ method, path, body string }{
		{http.MethodPost, "/api/drafts", `{"eips":[1]}`},
		{http.MethodGet, "/api/drafts", ""},
		{http.MethodGet, "/api/drafts/drf_1", ""},
		{http.MethodGet, "/api/drafts/drf_1/history", ""},
		{http.MethodPost, "/api/drafts/drf_1/facts", `{"eip":7702}`},
	} {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			expectError(t, env.do(t, route.method, route.path, route.body), http.StatusServiceUnavailable, "DRAFTS_UNAVAILABLE")
		})
	}
}

func TestEIPRoutes(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/eips?q=set+code", "")
	payload := decodeJSON(t, rr)
	results := payload["results"].([]any)
	if len(results) != 1 || results[0].(map[string]any)["id"] != "7702" {
		t.Fatalf("results = %v", results)
	}
	if payload["source"] != "fallback" {
		t.Errorf("source = %v", payload["source"])
	}

	rr = env.do(t, http.MethodGet, "/api/search?fork=Glamsterdam&type=eip", "")
	if results := decodeJSON(t, rr)["results"].([]any); len(results) != 2 {
		t.Errorf("glamsterdam results = %v", results)
	}
	expectError(t, env.do(t, http.MethodGet, "/api/search?type=fork", ""), http.StatusBadRequest, "INVALID_QUERY")

	rr = env.do(t, http.MethodGet, "/api/eips/EIP-7702", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("eip: status %d", rr.Code)
	}
	if label := decodeJSON(t, rr)["label"]; label != "EIP-7702" {
		t.Errorf("label = %v", label)
	}
	expectError(t, env.do(t, http.MethodGet, "/api/eips/999999", ""), http.StatusNotFound, "EIP_NOT_FOUND")
	expectError(t, env.do(t, http.MethodGet, "/api/eips/abc", ""), http.StatusBadRequest, "INVALID_EIP")

	rr = env.do(t, http.MethodGet, "/api/forks", "")
	forks := decodeJSON(t, rr)["forks"].([]any)
	if len(forks) == 0 {
		t.Fatal("expected forks")
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	expectError(t, env.do(t, http.MethodGet, "/api/nothing/here", ""), http.StatusNotFound, "NOT_FOUND")
	if rr := env.do(t, http.MethodOptions, "/api/drafts", ""); rr.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d", rr.Code)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"domain", errDraftsDisabled, http.StatusServiceUnavailable, "DRAFTS_UNAVAILABLE"},
		{"format", fmt.Errorf("wrap: %w", comparison.NewFormatError("bad", nil)), http.StatusUnprocessableEntity, "FORMAT_ERROR"},
		{"gist not found", &loader.NotFoundError{ID: "x"}, http.StatusNotFound, "GIST_NOT_FOUND"},
		{"remote", &loader.RemoteError{ID: "x", Err: errors.New("dial")}, http.StatusBadGateway, "GIST_UNAVAILABLE"},
		{"draft", fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound, "DRAFT_NOT_FOUND"},
		{"repo", gitrepo.ErrRepoNotFound, http.StatusNotFound, "DRAFT_NOT_FOUND"},
		{"pdf", fmt.Errorf("export pdf: %w", export.ErrPDFDependencyMissing), http.StatusNotImplemented, "EXPORT_UNAVAILABLE"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "SERVER_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _, _ := mapError(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("mapError() = %d %s, want %d %s", status, code, tt.status, tt.code)
			}
		})
	}
}
