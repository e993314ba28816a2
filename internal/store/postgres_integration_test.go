package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(fmt.Errorf("insert user: %w", &pgconn.PgError{Code: "23505"})) {
		t.Fatal("expected wrapped 23505 to be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("foreign key violation must not be treated as unique violation")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Fatal("plain error must not be treated as unique violation")
	}
}

func newMigratedStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db := openTestDB(ctx, t)
	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db), ctx
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	s, ctx := newMigratedStore(t)

	user, token, err := s.CreateUserWithToken(ctx, User{Email: "u1@example.com", PasswordHash: "hash", Name: "U1"})
	if err != nil {
		t.Fatalf("CreateUserWithToken() error = %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f]{40}$`).MatchString(token.Key) || token.UserID != user.ID {
		t.Fatalf("unexpected token %+v for user %d", token, user.ID)
	}

	_, _, err = s.CreateUserWithToken(ctx, User{Email: "u1@example.com", PasswordHash: "hash", Name: "Other"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	found, err := s.GetUserByTokenKey(ctx, token.Key)
	if err != nil || found.ID != user.ID {
		t.Fatalf("GetUserByTokenKey() = %+v, %v", found, err)
	}
}

func TestGetOrCreateUserWithTokenIsIdempotent(t *testing.T) {
	s, ctx := newMigratedStore(t)

	first, firstToken, created, err := s.GetOrCreateUserWithToken(ctx, User{Email: "g@example.com", Name: "G", ProfileImageURL: "https://img.example.com/g.png"})
	if err != nil || !created {
		t.Fatalf("first GetOrCreateUserWithToken() created=%v err=%v", created, err)
	}
	second, secondToken, created, err := s.GetOrCreateUserWithToken(ctx, User{Email: "g@example.com", Name: "Renamed"})
	if err != nil || created {
		t.Fatalf("second GetOrCreateUserWithToken() created=%v err=%v", created, err)
	}
	if first.ID != second.ID || second.Name != "G" {
		t.Fatalf("expected existing user untouched, got %+v", second)
	}
	if firstToken.Key != secondToken.Key {
		t.Fatalf("expected token reuse, got %q and %q", firstToken.Key, secondToken.Key)
	}

	again, err := s.GetOrCreateToken(ctx, first.ID)
	if err != nil || again.Key != firstToken.Key {
		t.Fatalf("GetOrCreateToken() = %+v, %v", again, err)
	}
}

func TestDeletingArticleCascadesToNotesAndConnections(t *testing.T) {
	s, ctx := newMigratedStore(t)

	user, _, err := s.CreateUserWithToken(ctx, User{Email: "owner@example.com", PasswordHash: "hash", Name: "Owner"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	article, err := s.CreateArticle(ctx, Article{UserID: user.ID, Subject: "Graphs"})
	if err != nil {
		t.Fatalf("create article: %v", err)
	}
	left, err := s.CreateNote(ctx, Note{ArticleID: article.ID, Contents: "nodes"})
	if err != nil {
		t.Fatalf("create left note: %v", err)
	}
	right, err := s.CreateNote(ctx, Note{ArticleID: article.ID, Contents: "edges"})
	if err != nil {
		t.Fatalf("create right note: %v", err)
	}
	connection, err := s.CreateConnection(ctx, Connection{ArticleID: article.ID, LeftNoteID: left.ID, RightNoteID: right.ID, Reason: "pair"})
	if err != nil {
		t.Fatalf("create connection: %v", err)
	}

	notes, err := s.ListNotesByArticle(ctx, article.ID)
	if err != nil || len(notes) != 2 || notes[0].ID != left.ID {
		t.Fatalf("ListNotesByArticle() = %+v, %v", notes, err)
	}
	for _, id := range []int64{left.ID, right.ID} {
		if n, err := s.CountConnectionsByNote(ctx, id); err != nil || n != 1 {
			t.Fatalf("CountConnectionsByNote(%d) = %d, %v", id, n, err)
		}
	}

	if err := s.DeleteArticle(ctx, article.ID); err != nil {
		t.Fatalf("delete article: %v", err)
	}
	if _, err := s.GetNote(ctx, left.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected note cascade delete, got %v", err)
	}
	if _, err := s.GetConnection(ctx, connection.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected connection cascade delete, got %v", err)
	}
	if n, err := s.CountConnectionsByNote(ctx, left.ID); err != nil || n != 0 {
		t.Fatalf("CountConnectionsByNote() after cascade = %d, %v", n, err)
	}
	if err := s.DeleteArticle(ctx, article.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows deleting missing article, got %v", err)
	}
}

func TestListArticlesByUserIsScopedAndOrdered(t *testing.T) {
	s, ctx := newMigratedStore(t)

	u1, _, err := s.CreateUserWithToken(ctx, User{Email: "u1@example.com", PasswordHash: "hash", Name: "U1"})
	if err != nil {
		t.Fatalf("create u1: %v", err)
	}
	u2, _, err := s.CreateUserWithToken(ctx, User{Email: "u2@example.com", PasswordHash: "hash", Name: "U2"})
	if err != nil {
		t.Fatalf("create u2: %v", err)
	}
	for _, item := range []Article{{UserID: u1.ID, Subject: "a"}, {UserID: u2.ID, Subject: "b"}, {UserID: u1.ID, Subject: "c"}} {
		if _, err := s.CreateArticle(ctx, item); err != nil {
			t.Fatalf("create article: %v", err)
		}
	}

	items, err := s.ListArticlesByUser(ctx, u1.ID)
	if err != nil {
		t.Fatalf("ListArticlesByUser() error = %v", err)
	}
	if len(items) != 2 || items[0].Subject != "a" || items[1].Subject != "c" {
		t.Fatalf("unexpected articles %+v", items)
	}
}
