package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
)

const (
	idxArticles = "mindnote_articles"
	idxNotes    = "mindnote_notes"
)

// Meili implements Engine via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  zerolog.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. An
// unreachable server is tolerated; the health loop picks it up later.
func NewMeili(url, apiKey string, logger zerolog.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		logger: logger.With().Str("component", "meilisearch").Logger(),
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		m.logger.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

type indexSettings struct {
	uid        string
	filterable []string
	searchable []string
}

// Both indexes are filtered by userId so a query never crosses owners.
var indexes = []indexSettings{
	{uid: idxArticles, filterable: []string{"userId"}, searchable: []string{"subject", "description", "body"}},
	{uid: idxNotes, filterable: []string{"userId", "articleId"}, searchable: []string{"contents"}},
}

const healthInterval = 10 * time.Second

func (m *Meili) configureIndexes() {
	for _, settings := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: settings.uid, PrimaryKey: "id"}); err != nil {
			m.logger.Debug().Err(err).Str("index", settings.uid).Msg("create index (may already exist)")
		}

		index := m.client.Index(settings.uid)
		filterable := make([]interface{}, 0, len(settings.filterable))
		for _, attr := range settings.filterable {
			filterable = append(filterable, attr)
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			m.logger.Warn().Err(err).Str("index", settings.uid).Msg("update filterable attributes")
		}
		searchable := settings.searchable
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			m.logger.Warn().Err(err).Str("index", settings.uid).Msg("update searchable attributes")
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *Meili) checkHealth() {
	_, err := m.client.Health()
	was := m.healthy.Swap(err == nil)
	switch {
	case err == nil && !was:
		m.logger.Info().Msg("meilisearch recovered, reconfiguring indexes")
		m.configureIndexes()
	case err != nil && was:
		m.logger.Warn().Err(err).Msg("meilisearch became unavailable, falling back to postgres")
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries both indexes (or one of them) restricted to q.UserID and
// pages over the merged hits, ordered by ranking score.
func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: buildQueries(q)})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var ranked []rankedResult
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			ranked = append(ranked, rankedResult{Result: hitToResult(hit, rtyp), score: decodeFloat(hit, "_rankingScore")})
		}
	}
	return mergePage(ranked, q), total, nil
}

type rankedResult struct {
	Result
	score float64
}

// mergePage orders hits from every index by score, then id, and cuts q's window.
func mergePage(ranked []rankedResult, q Query) []Result {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].ID < ranked[j].ID
	})

	offset, limit := q.window()
	if offset >= len(ranked) {
		return nil
	}
	end := min(offset+limit, len(ranked))
	results := make([]Result, 0, end-offset)
	for _, r := range ranked[offset:end] {
		results = append(results, r.Result)
	}
	return results
}

// buildQueries asks every index for the first offset+limit hits so the
// window can be cut after merging.
func buildQueries(q Query) []*meili.SearchRequest {
	offset, limit := q.window()

	targets := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxArticles, ResultArticle},
		{idxNotes, ResultNote},
	}

	var queries []*meili.SearchRequest
	for _, target := range targets {
		if q.FilterType != "" && q.FilterType != target.rtyp {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              target.uid,
			Query:                 q.Text,
			Limit:                 int64(offset + limit),
			Offset:                0,
			Filter:                fmt.Sprintf("userId = %d", q.UserID),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		})
	}
	return queries
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxArticles:
		return ResultArticle
	case idxNotes:
		return ResultNote
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp, ID: decodeInt(hit, "id")}

	switch rtyp {
	case ResultArticle:
		r.ArticleID = r.ID
		r.Title = firstNonBlank(decodeFormattedString(hit, "subject"), decodeString(hit, "subject"))
		r.Snippet = firstNonBlank(
			decodeFormattedString(hit, "description"), decodeString(hit, "description"),
			decodeFormattedString(hit, "body"), decodeString(hit, "body"),
		)
	case ResultNote:
		r.ArticleID = decodeInt(hit, "articleId")
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "contents"), decodeString(hit, "contents"))
	}
	return r
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

func decodeInt(hit meili.Hit, key string) int64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

func decodeFloat(hit meili.Hit, key string) float64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	return 0
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

// IndexArticle adds or updates an article in the search index.
func (m *Meili) IndexArticle(a ArticleRecord) error {
	_, err := m.client.Index(idxArticles).AddDocuments([]ArticleRecord{a}, nil)
	return err
}

// IndexNote adds or updates a note in the search index.
func (m *Meili) IndexNote(n NoteRecord) error {
	_, err := m.client.Index(idxNotes).AddDocuments([]NoteRecord{n}, nil)
	return err
}

func (m *Meili) DeleteArticle(id int64) error {
	_, err := m.client.Index(idxArticles).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}

func (m *Meili) DeleteNote(id int64) error {
	_, err := m.client.Index(idxNotes).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}

// IndexArticles bulk-indexes articles.
func (m *Meili) IndexArticles(articles []ArticleRecord) error {
	if len(articles) == 0 {
		return nil
	}
	_, err := m.client.Index(idxArticles).AddDocuments(articles, nil)
	return err
}

// IndexNotes bulk-indexes notes.
func (m *Meili) IndexNotes(notes []NoteRecord) error {
	if len(notes) == 0 {
		return nil
	}
	_, err := m.client.Index(idxNotes).AddDocuments(notes, nil)
	return err
}
