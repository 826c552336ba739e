package search

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"forkcast/api/internal/eips"
)

// Local searches the in-process reference dataset. It is always healthy.
type Local struct {
	records []eips.Record
}

func NewLocal(ds *eips.Dataset) *Local {
	return &Local{records: ds.All()}
}

func (l *Local) Healthy() bool { return true }

// Search matches case-insensitive substrings of the number, title,
// description and layman text. Title matches rank first, then EIP number.
func (l *Local) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !q.wants(ResultEIP) {
		return nil, 0, nil
	}
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	needle = strings.TrimPrefix(needle, "eip-")

	type scored struct {
		rec  eips.Record
		rank int
	}
	var hits []scored
	for _, rec := range l.records {
		if q.Fork != "" && !inFork(rec, q.Fork) {
			continue
		}
		rank, ok := match(rec, needle)
		if !ok {
			continue
		}
		hits = append(hits, scored{rec: rec, rank: rank})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		return hits[i].rec.ID < hits[j].rec.ID
	})

	total := len(hits)
	start := q.Offset
	if start < 0 || start > total {
		start = total
	}
	end := start + q.limit()
	if end > total {
		end = total
	}
	out := make([]Result, 0, end-start)
	for _, h := range hits[start:end] {
		out = append(out, eipResult(h.rec))
	}
	return out, total, nil
}

func match(rec eips.Record, needle string) (int, bool) {
	if needle == "" {
		return 3, true
	}
	switch {
	case strconv.Itoa(rec.ID) == needle:
		return 0, true
	case strings.Contains(strings.ToLower(rec.Title), needle):
		return 1, true
	case strings.Contains(strings.ToLower(rec.Description), needle),
		strings.Contains(strings.ToLower(rec.Layman), needle):
		return 2, true
	}
	return 0, false
}

func inFork(rec eips.Record, fork string) bool {
	for _, rel := range rec.ForkRelationships {
		if strings.EqualFold(rel.ForkName, fork) {
			return true
		}
	}
	return false
}

func eipResult(rec eips.Record) Result {
	return Result{
		Type:    ResultEIP,
		ID:      strconv.Itoa(rec.ID),
		Title:   eips.Label(rec.ID) + ": " + rec.Title,
		Snippet: rec.Description,
		Status:  rec.Status,
	}
}

// RecordsFromDataset converts the dataset into index records.
func RecordsFromDataset(ds *eips.Dataset) []EIPRecord {
	all := ds.All()
	out := make([]EIPRecord, 0, len(all))
	for _, rec := range all {
		forks := make([]string, 0, len(rec.ForkRelationships))
		for _, rel := range rec.ForkRelationships {
			forks = append(forks, rel.ForkName)
		}
		out = append(out, EIPRecord{
			ID:          rec.ID,
			Title:       rec.Title,
			Description: rec.Description,
			Layman:      rec.Layman,
			Status:      rec.Status,
			Forks:       forks,
		})
	}
	return out
}
