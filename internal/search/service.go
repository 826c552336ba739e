package search

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Index is a search backend that can also be written to. *Meili implements it.
type Index interface {
	Searcher
	IndexEIPs(records []EIPRecord) error
	IndexDraft(d DraftRecord) error
	DeleteDraft(id string) error
}

// DraftLoader reads every draft for reindexing. *PgFTS implements it.
type DraftLoader interface {
	LoadAllDrafts(ctx context.Context) ([]DraftRecord, error)
}

// Service is the facade that tries the index first and falls back to the
// local EIP scan and, for drafts, Postgres.
type Service struct {
	index  Index
	eips   Searcher
	drafts Searcher
	log    *zap.Logger
	wg     sync.WaitGroup
}

// NewService creates a search service. index and drafts may be nil.
func NewService(index Index, eips, drafts Searcher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{index: index, eips: eips, drafts: drafts, log: log.Named("search")}
}

func (s *Service) indexHealthy() bool {
	return s.index != nil && s.index.Healthy()
}

// Search tries the index if healthy, otherwise merges the fallbacks.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexHealthy() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: "meilisearch"}
		}
		s.log.Warn("index error, falling back", zap.Error(err))
	}

	resp := Response{Results: []Result{}, Query: q.Text, Source: "fallback"}
	for _, backend := range []Searcher{s.eips, s.drafts} {
		if backend == nil {
			continue
		}
		results, total, err := backend.Search(ctx, q)
		if err != nil {
			s.log.Warn("fallback search error", zap.Error(err))
			continue
		}
		resp.Results = append(resp.Results, results...)
		resp.Total += total
	}
	return resp
}

// SearchEIPs searches EIPs only.
func (s *Service) SearchEIPs(ctx context.Context, text string, limit int) Response {
	return s.Search(ctx, Query{Text: text, FilterType: ResultEIP, Limit: limit})
}

// IndexDraft indexes a draft in the background.
func (s *Service) IndexDraft(d DraftRecord) {
	if !s.indexHealthy() {
		return
	}
	s.async(func() {
		if err := s.index.IndexDraft(d); err != nil {
			s.log.Warn("index draft", zap.String("draft_id", d.ID), zap.Error(err))
		}
	})
}

// DeleteDraft removes a draft from the index in the background.
func (s *Service) DeleteDraft(id string) {
	if !s.indexHealthy() {
		return
	}
	s.async(func() {
		if err := s.index.DeleteDraft(id); err != nil {
			s.log.Warn("delete draft", zap.String("draft_id", id), zap.Error(err))
		}
	})
}

// ReindexEIPs pushes the reference dataset into the index.
func (s *Service) ReindexEIPs(records []EIPRecord) {
	if !s.indexHealthy() {
		return
	}
	if err := s.index.IndexEIPs(records); err != nil {
		s.log.Warn("reindex eips", zap.Error(err))
	}
}

// ReindexDrafts loads every draft and pushes it into the index.
func (s *Service) ReindexDrafts(ctx context.Context, loader DraftLoader) {
	if !s.indexHealthy() || loader == nil {
		return
	}
	drafts, err := loader.LoadAllDrafts(ctx)
	if err != nil {
		s.log.Warn("reindex load failed", zap.Error(err))
		return
	}
	for _, d := range drafts {
		if err := s.index.IndexDraft(d); err != nil {
			s.log.Warn("reindex draft", zap.String("draft_id", d.ID), zap.Error(err))
		}
	}
}

// Wait blocks until background index writes finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) async(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
