// Package search finds EIPs and saved comparison drafts. Meilisearch is used
// when reachable; EIPs fall back to a scan of the reference dataset and drafts
// to Postgres full-text search.
package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultEIP   ResultType = "eip"
	ResultDraft ResultType = "draft"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	Status  string     `json:"status,omitempty"`
	EIPs    []int      `json:"eips,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Fork       string     // EIPs only
	EIP        int        // drafts only: must compare this EIP
	Limit      int
	Offset     int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	if q.Limit > 100 {
		return 100
	}
	return q.Limit
}

func (q Query) wants(t ResultType) bool {
	return q.FilterType == "" || q.FilterType == t
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Source  string   `json:"source"`
}

// Searcher can execute a search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// EIPRecord is the data we index for an EIP.
type EIPRecord struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Layman      string   `json:"layman"`
	Status      string   `json:"status"`
	Forks       []string `json:"forks"`
}

// DraftRecord is the data we index for a comparison draft.
type DraftRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	EIPs        []int  `json:"eips"`
}
