package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/maitracle/mindnote-server/internal/auth"
	"github.com/maitracle/mindnote-server/internal/authpw"
	"github.com/maitracle/mindnote-server/internal/authz"
	"github.com/maitracle/mindnote-server/internal/store"
)

func TestPKRefDecoding(t *testing.T) {
	cases := []struct {
		body  string
		want  pkRef
		label string
	}{
		{`{}`, pkRef{}, "missing"},
		{`{"article":null}`, pkRef{Set: true, Null: true}, "null"},
		{`{"article":12}`, pkRef{Set: true, Valid: true, Value: 12}, "number"},
		{`{"article":"12"}`, pkRef{Set: true, Valid: true, Value: 12}, "numeric string"},
		{`{"article":"twelve"}`, pkRef{Set: true, kind: "str"}, "string"},
		{`{"article":1.5}`, pkRef{Set: true, kind: "float"}, "float"},
		{`{"article":true}`, pkRef{Set: true, kind: "bool"}, "bool"},
		{`{"article":[1]}`, pkRef{Set: true, kind: "list"}, "list"},
		{`{"article":{"id":1}}`, pkRef{Set: true, kind: "dict"}, "object"},
	}
	for _, tc := range cases {
		var payload notePayload
		if err := json.Unmarshal([]byte(tc.body), &payload); err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.label, err)
		}
		if payload.Article != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", tc.label, tc.want, payload.Article)
		}
	}
}

func TestResolveRefRecordsClientMistakes(t *testing.T) {
	fs := newFakeStore()
	article, _ := fs.CreateArticle(t.Context(), store.Article{UserID: 1, Subject: "s"})
	fields := fieldErrors{}

	got, found, err := resolveRef(t.Context(), fields, "article", ref(article.ID), true, fs.GetArticle)
	if err != nil || !found || got.ID != article.ID {
		t.Fatalf("expected article %d, got %+v found=%v err=%v", article.ID, got, found, err)
	}
	if _, found, _ := resolveRef(t.Context(), fields, "optional", pkRef{}, false, fs.GetArticle); found {
		t.Fatalf("unset optional key must not be found")
	}
	if len(fields) != 0 {
		t.Fatalf("expected no field errors, got %v", fields)
	}

	_, _, _ = resolveRef(t.Context(), fields, "article", pkRef{}, true, fs.GetArticle)
	_, _, _ = resolveRef(t.Context(), fields, "left_note", ref(404), true, fs.GetNote)
	if fields["article"][0] != msgRequired || fields["left_note"][0] != `Invalid pk "404" - object does not exist.` {
		t.Fatalf("unexpected field errors %v", fields)
	}

	boom := errors.New("connection reset")
	_, _, err = resolveRef(t.Context(), fieldErrors{}, "article", ref(1), true, func(context.Context, int64) (store.Article, error) {
		return store.Article{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected storage error to surface, got %v", err)
	}
}

func TestServiceRejectsAnonymousRequester(t *testing.T) {
	env := newTestEnv(t)
	svc := env.service
	ctx := t.Context()

	checks := map[string]error{}
	_, checks["my articles"] = svc.MyArticles(ctx, nil)
	_, checks["create article"] = svc.CreateArticle(ctx, nil, articlePayload{Subject: "s"})
	_, checks["get article"] = svc.GetArticle(ctx, nil, 1)
	_, checks["create note"] = svc.CreateNote(ctx, nil, notePayload{Article: ref(1)})
	_, checks["list notes"] = svc.ListNotes(ctx, nil, "1")
	_, checks["create connection"] = svc.CreateConnection(ctx, nil, connectionPayload{})
	_, checks["update user"] = svc.UpdateUser(ctx, nil, 1, userPatch{})
	_, checks["search"] = svc.Search(ctx, nil, SearchParams{Query: "q"})
	checks["delete note"] = svc.DeleteNote(ctx, nil, 1)
	for name, err := range checks {
		if !errors.Is(err, authz.ErrUnauthenticated) {
			t.Fatalf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
	}
}

func TestCheckConnectionOrder(t *testing.T) {
	env := newTestEnv(t)
	owner := store.User{ID: 1}
	article := store.Article{ID: 10, UserID: owner.ID}
	stranger := store.User{ID: 2}
	same := store.Note{ID: 5, ArticleID: 99}

	err := env.service.checkConnection(t.Context(), &stranger, article, same, same)
	var denied *authz.DeniedError
	if !errors.As(err, &denied) || err.Error() != msgConnOwnArticle {
		t.Fatalf("expected ownership failure first, got %v", err)
	}
	err = env.service.checkConnection(t.Context(), &owner, article, same, same)
	if mapped := mapError(err); mapped.Fields[nonFieldErrors][0] != msgSameNotes {
		t.Fatalf("expected same-notes failure, got %v", err)
	}
	err = env.service.checkConnection(t.Context(), &owner, article, same, store.Note{ID: 6, ArticleID: article.ID})
	if mapped := mapError(err); mapped.Fields[nonFieldErrors][0] != msgArticleMismatch {
		t.Fatalf("expected mismatch failure, got %v", err)
	}
	if err := env.service.checkConnection(t.Context(), &owner, article, store.Note{ID: 5, ArticleID: 10}, store.Note{ID: 6, ArticleID: 10}); err != nil {
		t.Fatalf("expected valid connection, got %v", err)
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{authz.ErrUnauthenticated, http.StatusUnauthorized, msgNotProvided},
		{auth.ErrInvalidToken, http.StatusUnauthorized, msgInvalidToken},
		{authpw.ErrInvalidCredentials, http.StatusUnauthorized, msgBadCredentials},
		{authz.Deny(""), http.StatusForbidden, "You do not have permission to perform this action."},
		{authz.Deny(msgNoteOwnArticle), http.StatusForbidden, msgNoteOwnArticle},
		{fmt.Errorf("resolve owning article: %w", sql.ErrNoRows), http.StatusNotFound, msgNotFound},
		{store.ErrEmailTaken, http.StatusBadRequest, msgEmailTaken},
		{fmt.Errorf("%w: status 401", authpw.ErrGoogleLookup), http.StatusBadRequest, msgGoogleLookup},
		{errors.New("disk full"), http.StatusInternalServerError, msgServerError},
	}
	for _, tc := range cases {
		mapped := mapError(tc.err)
		if mapped.Status != tc.status || mapped.Message != tc.message {
			t.Fatalf("%v: expected %d %q, got %d %q", tc.err, tc.status, tc.message, mapped.Status, mapped.Message)
		}
	}
}

func TestParseBounded(t *testing.T) {
	fields := fieldErrors{}
	if got := parseBounded(fields, "limit", "", 20, 1, 100); got != 20 {
		t.Fatalf("expected fallback 20, got %d", got)
	}
	if got := parseBounded(fields, "offset", "0", 0, 0, -1); got != 0 {
		t.Fatalf("expected 0 offset, got %d", got)
	}
	if got := parseBounded(fields, "limit", "50", 20, 1, 100); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	if len(fields) != 0 {
		t.Fatalf("unexpected field errors %v", fields)
	}
	parseBounded(fields, "limit", "101", 20, 1, 100)
	parseBounded(fields, "offset", "-1", 0, 0, -1)
	if len(fields["limit"]) != 1 || len(fields["offset"]) != 1 {
		t.Fatalf("expected bound errors, got %v", fields)
	}
}
