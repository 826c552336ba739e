package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"forkcast/api/internal/comparison"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

const maxGistBody = 10 << 20

var gistIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// GistFile is the document file chosen from a Gist.
type GistFile struct {
	GistID   string
	Name     string
	Content  []byte
	HTMLURL  string
	Owner    string
	Modified time.Time
}

// GistClient fetches comparison documents from Gists.
type GistClient interface {
	Fetch(ctx context.Context, id string) (GistFile, error)
}

// GitHubGists talks to the GitHub Gist API.
type GitHubGists struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewGitHubGists creates a client. An empty baseURL means DefaultGitHubAPI;
// token is optional for reads and required for Create.
func NewGitHubGists(baseURL, token string, client *http.Client) *GitHubGists {
	if baseURL == "" {
		baseURL = DefaultGitHubAPI
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &GitHubGists{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

type gistResponse struct {
	ID        string              `json:"id"`
	HTMLURL   string              `json:"html_url"`
	UpdatedAt time.Time           `json:"updated_at"`
	Owner     *gistOwner          `json:"owner"`
	Files     map[string]gistFile `json:"files"`
}

type gistOwner struct {
	Login string `json:"login"`
}

type gistFile struct {
	Filename  string `json:"filename"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	RawURL    string `json:"raw_url"`
}

// ValidGistID reports whether id looks like a Gist identifier.
func ValidGistID(id string) bool {
	return gistIDPattern.MatchString(id)
}

// Fetch loads the Gist and returns its first .json file in name order.
// 404 yields *NotFoundError; other failures yield *RemoteError; a Gist with no
// .json file yields a *comparison.FormatError.
func (g *GitHubGists) Fetch(ctx context.Context, id string) (GistFile, error) {
	if !ValidGistID(id) {
		return GistFile{}, &NotFoundError{ID: id}
	}

	body, err := g.get(ctx, id, g.baseURL+"/gists/"+url.PathEscape(id))
	if err != nil {
		return GistFile{}, err
	}

	var gist gistResponse
	if err := json.Unmarshal(body, &gist); err != nil {
		return GistFile{}, &RemoteError{ID: id, Status: http.StatusOK, Body: "malformed gist response", Err: err}
	}

	file, ok := pickJSONFile(gist.Files)
	if !ok {
		return GistFile{}, comparison.NewFormatError(NoJSONFileMessage, nil)
	}

	content := []byte(file.Content)
	if file.Truncated && file.RawURL != "" {
		content, err = g.get(ctx, id, file.RawURL)
		if err != nil {
			return GistFile{}, err
		}
	}

	out := GistFile{
		GistID:   gist.ID,
		Name:     file.Filename,
		Content:  content,
		HTMLURL:  gist.HTMLURL,
		Modified: gist.UpdatedAt,
	}
	if out.GistID == "" {
		out.GistID = id
	}
	if gist.Owner != nil {
		out.Owner = gist.Owner.Login
	}
	return out, nil
}

// pickJSONFile returns the first file, by name, ending in .json.
func pickJSONFile(files map[string]gistFile) (gistFile, bool) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.HasSuffix(strings.ToLower(name), ".json") {
			f := files[name]
			if f.Filename == "" {
				f.Filename = name
			}
			return f, true
		}
	}
	return gistFile{}, false
}

func (g *GitHubGists) get(ctx context.Context, id, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create gist request: %w", err)
	}
	g.headers(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &RemoteError{ID: id, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGistBody))
	if err != nil {
		return nil, &RemoteError{ID: id, Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{ID: id}
	case resp.StatusCode != http.StatusOK:
		return nil, &RemoteError{ID: id, Status: resp.StatusCode, Body: excerpt(body)}
	}
	return body, nil
}

func (g *GitHubGists) headers(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// CreateGistRequest describes a Gist to publish.
type CreateGistRequest struct {
	Description string
	Public      bool
	Files       map[string][]byte
}

// CreatedGist identifies a newly published Gist.
type CreatedGist struct {
	ID      string `json:"id"`
	HTMLURL string `json:"html_url"`
}

// Create publishes a Gist. It needs the client's token.
func (g *GitHubGists) Create(ctx context.Context, in CreateGistRequest) (CreatedGist, error) {
	if g.token == "" {
		return CreatedGist{}, ErrTokenRequired
	}
	if len(in.Files) == 0 {
		return CreatedGist{}, fmt.Errorf("create gist: no files")
	}

	type fileBody struct {
		Content string `json:"content"`
	}
	payload := struct {
		Description string              `json:"description"`
		Public      bool                `json:"public"`
		Files       map[string]fileBody `json:"files"`
	}{
		Description: in.Description,
		Public:      in.Public,
		Files:       make(map[string]fileBody, len(in.Files)),
	}
	for name, content := range in.Files {
		payload.Files[name] = fileBody{Content: string(content)}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return CreatedGist{}, fmt.Errorf("marshal gist: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/gists", bytes.NewReader(body))
	if err != nil {
		return CreatedGist{}, fmt.Errorf("create gist request: %w", err)
	}
	g.headers(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return CreatedGist{}, &RemoteError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return CreatedGist{}, &RemoteError{Status: resp.StatusCode, Body: excerpt(respBody)}
	}

	var out CreatedGist
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CreatedGist{}, fmt.Errorf("decode created gist: %w", err)
	}
	return out, nil
}
