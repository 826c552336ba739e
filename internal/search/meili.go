package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const (
	idxEIPs        = "forkcast_eips"
	idxComparisons = "forkcast_comparisons"

	defaultHealthInterval = 10 * time.Second
)

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client   meili.ServiceManager
	log      *zap.Logger
	interval time.Duration
	healthy  atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewMeili creates a Meilisearch client and configures indexes. An
// unreachable server is not an error: the client reports unhealthy and the
// background monitor keeps probing.
func NewMeili(url, apiKey string, log *zap.Logger) *Meili {
	return newMeili(url, apiKey, log, defaultHealthInterval)
}

func newMeili(url, apiKey string, log *zap.Logger, interval time.Duration) *Meili {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Meili{
		client:   meili.New(url, meili.WithAPIKey(apiKey)),
		log:      log.Named("meili"),
		interval: interval,
		done:     make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.log.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	m.wg.Add(1)
	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxEIPs,
			primaryKey: "id",
			filterable: []string{"forks", "status"},
			searchable: []string{"title", "description", "layman"},
		},
		{
			uid:        idxComparisons,
			primaryKey: "id",
			filterable: []string{"eips"},
			searchable: []string{"title", "author", "description"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			m.log.Debug("create index (may already exist)", zap.String("index", idx.uid), zap.Error(err))
		}

		index := m.client.Index(idx.uid)
		filterable := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterable[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			m.log.Warn("update filterable attributes", zap.String("index", idx.uid), zap.Error(err))
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			m.log.Warn("update searchable attributes", zap.String("index", idx.uid), zap.Error(err))
		}
	}
}

func (m *Meili) healthLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor and waits for it to exit.
func (m *Meili) Close() {
	m.once.Do(func() { close(m.done) })
	m.wg.Wait()
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the EIP and comparison indexes (or one of them) and merges
// the hits.
func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	var queries []*meili.SearchRequest
	if q.wants(ResultEIP) {
		sr := m.request(idxEIPs, q)
		if q.Fork != "" {
			sr.Filter = []string{fmt.Sprintf("forks = %q", q.Fork)}
		}
		queries = append(queries, sr)
	}
	if q.wants(ResultDraft) {
		sr := m.request(idxComparisons, q)
		if q.EIP > 0 {
			sr.Filter = []string{fmt.Sprintf("eips = %d", q.EIP)}
		}
		queries = append(queries, sr)
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}
	return results, total, nil
}

func (m *Meili) request(uid string, q Query) *meili.SearchRequest {
	return &meili.SearchRequest{
		IndexUID:              uid,
		Query:                 q.Text,
		Limit:                 int64(q.limit()),
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"*"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
		ShowRankingScore:      true,
	}
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxEIPs:
		return ResultEIP
	case idxComparisons:
		return ResultDraft
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp, ID: decodeID(hit)}
	switch rtyp {
	case ResultEIP:
		title := firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Title = "EIP-" + r.ID + ": " + title
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))
		r.Status = decodeString(hit, "status")
	case ResultDraft:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "author"))
		if raw, ok := hit["eips"]; ok {
			_ = json.Unmarshal(raw, &r.EIPs)
		}
	}
	return r
}

// decodeID accepts both string and numeric primary keys.
func decodeID(hit meili.Hit) string {
	raw, ok := hit["id"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexEIPs bulk-indexes EIP records.
func (m *Meili) IndexEIPs(records []EIPRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxEIPs).AddDocuments(records, nil)
	return err
}

// IndexDraft adds or updates a draft in the search index.
func (m *Meili) IndexDraft(d DraftRecord) error {
	_, err := m.client.Index(idxComparisons).AddDocuments([]DraftRecord{d}, nil)
	return err
}

// DeleteDraft removes a draft from the search index.
func (m *Meili) DeleteDraft(id string) error {
	_, err := m.client.Index(idxComparisons).DeleteDocument(id, nil)
	return err
}
