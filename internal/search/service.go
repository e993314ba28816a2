package search

import (
	"context"

	"github.com/rs/zerolog"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	engine   Engine
	fallback Searcher
	logger   zerolog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, logger zerolog.Logger) *Service {
	if meili == nil {
		return NewServiceWith(nil, pgfts, logger)
	}
	return NewServiceWith(meili, pgfts, logger)
}

// NewServiceWith accepts any engine; engine may be nil.
func NewServiceWith(engine Engine, fallback Searcher, logger zerolog.Logger) *Service {
	return &Service{engine: engine, fallback: fallback, logger: logger}
}

func (s *Service) enabled() bool {
	return s.engine != nil && s.engine.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.enabled() {
		results, total, err := s.engine.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn().Err(err).Msg("meilisearch error, falling back to pgfts")
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error().Err(err).Msg("pgfts search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexArticle pushes an article to Meilisearch. Failures are only logged.
func (s *Service) IndexArticle(a ArticleRecord) {
	if !s.enabled() {
		return
	}
	if err := s.engine.IndexArticle(a); err != nil {
		s.logger.Warn().Err(err).Int64("article_id", a.ID).Msg("index article")
	}
}

// IndexNote pushes a note to Meilisearch. Failures are only logged.
func (s *Service) IndexNote(n NoteRecord) {
	if !s.enabled() {
		return
	}
	if err := s.engine.IndexNote(n); err != nil {
		s.logger.Warn().Err(err).Int64("note_id", n.ID).Msg("index note")
	}
}

// RemoveArticle drops an article and the notes that were deleted with it.
func (s *Service) RemoveArticle(id int64, noteIDs []int64) {
	if !s.enabled() {
		return
	}
	if err := s.engine.DeleteArticle(id); err != nil {
		s.logger.Warn().Err(err).Int64("article_id", id).Msg("delete article from index")
	}
	for _, noteID := range noteIDs {
		s.RemoveNote(noteID)
	}
}

func (s *Service) RemoveNote(id int64) {
	if !s.enabled() {
		return
	}
	if err := s.engine.DeleteNote(id); err != nil {
		s.logger.Warn().Err(err).Int64("note_id", id).Msg("delete note from index")
	}
}

// ReindexAll pushes every record to Meilisearch. Called at startup.
func (s *Service) ReindexAll(articles []ArticleRecord, notes []NoteRecord) {
	if !s.enabled() {
		return
	}
	if err := s.engine.IndexArticles(articles); err != nil {
		s.logger.Warn().Err(err).Msg("reindex articles")
	}
	if err := s.engine.IndexNotes(notes); err != nil {
		s.logger.Warn().Err(err).Msg("reindex notes")
	}
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context, pgfts *PgFTS) {
	if !s.enabled() || pgfts == nil {
		return
	}
	articles, notes, err := pgfts.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reindex load failed")
		return
	}
	s.ReindexAll(articles, notes)
	s.logger.Info().Int("articles", len(articles)).Int("notes", len(notes)).Msg("search index rebuilt")
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
