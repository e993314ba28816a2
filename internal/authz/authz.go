// Package authz holds the ownership predicates every handler composes.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/maitracle/mindnote-server/internal/store"
)

const DefaultDenyDetail = "You do not have permission to perform this action."

var ErrUnauthenticated = errors.New("authentication required")

// DeniedError is returned when the requester is known but not allowed.
type DeniedError struct {
	Detail string
}

func (e *DeniedError) Error() string {
	if e.Detail == "" {
		return DefaultDenyDetail
	}
	return e.Detail
}

func Deny(detail string) error {
	return &DeniedError{Detail: detail}
}

// Predicate decides whether requester may act on item. A nil requester is
// an anonymous caller.
type Predicate[T any] func(ctx context.Context, requester *store.User, item T) error

// ArticleOf resolves the article that owns an entity.
type ArticleOf[T any] func(ctx context.Context, item T) (store.Article, error)

type ArticleGetter interface {
	GetArticle(ctx context.Context, articleID int64) (store.Article, error)
}

func Authenticated[T any]() Predicate[T] {
	return func(_ context.Context, requester *store.User, _ T) error {
		if requester == nil {
			return ErrUnauthenticated
		}
		return nil
	}
}

// OwnsArticle allows the owner of the item's article. detail is the 403
// message, empty for the default.
func OwnsArticle[T any](resolve ArticleOf[T], detail string) Predicate[T] {
	return func(ctx context.Context, requester *store.User, item T) error {
		if requester == nil {
			return ErrUnauthenticated
		}
		article, err := resolve(ctx, item)
		if err != nil {
			return fmt.Errorf("resolve owning article: %w", err)
		}
		if article.UserID != requester.ID {
			return Deny(detail)
		}
		return nil
	}
}

// Self allows a user to act on their own account only.
func Self() Predicate[store.User] {
	return func(_ context.Context, requester *store.User, target store.User) error {
		if requester == nil {
			return ErrUnauthenticated
		}
		if requester.ID != target.ID {
			return Deny("")
		}
		return nil
	}
}

// All runs predicates in order; the first failure wins.
func All[T any](predicates ...Predicate[T]) Predicate[T] {
	return func(ctx context.Context, requester *store.User, item T) error {
		for _, predicate := range predicates {
			if err := predicate(ctx, requester, item); err != nil {
				return err
			}
		}
		return nil
	}
}

func ArticleItself(_ context.Context, article store.Article) (store.Article, error) {
	return article, nil
}

func NoteArticle(articles ArticleGetter) ArticleOf[store.Note] {
	return func(ctx context.Context, note store.Note) (store.Article, error) {
		return articles.GetArticle(ctx, note.ArticleID)
	}
}

func ConnectionArticle(articles ArticleGetter) ArticleOf[store.Connection] {
	return func(ctx context.Context, connection store.Connection) (store.Article, error) {
		return articles.GetArticle(ctx, connection.ArticleID)
	}
}
