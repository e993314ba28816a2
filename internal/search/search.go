package search

import (
	"context"
	"fmt"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultArticle ResultType = "article"
	ResultNote    ResultType = "note"
)

// ParseType accepts "", "article" and "note".
func ParseType(value string) (ResultType, error) {
	switch ResultType(value) {
	case "", ResultArticle, ResultNote:
		return ResultType(value), nil
	default:
		return "", fmt.Errorf("unknown search type %q", value)
	}
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        int64      `json:"id"`
	ArticleID int64      `json:"article"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
}

// Query describes a search request. Results are always limited to UserID.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	UserID     int64
	Limit      int
	Offset     int
}

// window returns the normalized offset and limit of q.
func (q Query) window() (offset, limit int) {
	offset, limit = q.Offset, q.Limit
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}
	return offset, limit
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexArticle(a ArticleRecord) error
	IndexNote(n NoteRecord) error
	DeleteArticle(id int64) error
	DeleteNote(id int64) error
}

// Engine is an external index that can both search and be fed.
type Engine interface {
	Searcher
	Indexer
	IndexArticles(articles []ArticleRecord) error
	IndexNotes(notes []NoteRecord) error
}

// ArticleRecord is the data we index for an article.
type ArticleRecord struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"userId"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Body        string `json:"body"`
}

// NoteRecord is the data we index for a note. UserID is the owner of its article.
type NoteRecord struct {
	ID        int64  `json:"id"`
	ArticleID int64  `json:"articleId"`
	UserID    int64  `json:"userId"`
	Contents  string `json:"contents"`
}
