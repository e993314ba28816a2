package app

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/maitracle/mindnote-server/internal/search"
	"github.com/maitracle/mindnote-server/internal/store"
	"github.com/maitracle/mindnote-server/internal/util"
)

// fakeStore is an in-memory store with the same cascade rules as the schema.
type fakeStore struct {
	nextID      int64
	users       map[int64]store.User
	tokens      map[int64]store.Token
	articles    map[int64]store.Article
	notes       map[int64]store.Note
	connections map[int64]store.Connection
	pingErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       map[int64]store.User{},
		tokens:      map[int64]store.Token{},
		articles:    map[int64]store.Article{},
		notes:       map[int64]store.Note{},
		connections: map[int64]store.Connection{},
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) GetUserByID(_ context.Context, userID int64) (store.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByTokenKey(_ context.Context, key string) (store.User, error) {
	for userID, token := range f.tokens {
		if token.Key == key {
			return f.users[userID], nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) CreateUserWithToken(ctx context.Context, user store.User) (store.User, store.Token, error) {
	if _, err := f.GetUserByEmail(ctx, user.Email); err == nil {
		return store.User{}, store.Token{}, store.ErrEmailTaken
	}
	now := time.Now().UTC()
	user.ID = f.id()
	user.CreatedAt, user.UpdatedAt = now, now
	f.users[user.ID] = user
	token, _ := f.GetOrCreateToken(ctx, user.ID)
	return user, token, nil
}

func (f *fakeStore) GetOrCreateUserWithToken(ctx context.Context, user store.User) (store.User, store.Token, bool, error) {
	if existing, err := f.GetUserByEmail(ctx, user.Email); err == nil {
		token, _ := f.GetOrCreateToken(ctx, existing.ID)
		return existing, token, false, nil
	}
	created, token, err := f.CreateUserWithToken(ctx, user)
	return created, token, err == nil, err
}

func (f *fakeStore) GetOrCreateToken(_ context.Context, userID int64) (store.Token, error) {
	if token, ok := f.tokens[userID]; ok {
		return token, nil
	}
	token := store.Token{Key: util.NewKey(), UserID: userID, CreatedAt: time.Now().UTC()}
	f.tokens[userID] = token
	return token, nil
}

func (f *fakeStore) UpdateUser(_ context.Context, user store.User) (store.User, error) {
	if _, ok := f.users[user.ID]; !ok {
		return store.User{}, sql.ErrNoRows
	}
	user.UpdatedAt = time.Now().UTC()
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStore) DeleteUser(ctx context.Context, userID int64) error {
	if _, ok := f.users[userID]; !ok {
		return sql.ErrNoRows
	}
	for articleID, article := range f.articles {
		if article.UserID == userID {
			_ = f.DeleteArticle(ctx, articleID)
		}
	}
	delete(f.tokens, userID)
	delete(f.users, userID)
	return nil
}

func (f *fakeStore) CreateArticle(_ context.Context, item store.Article) (store.Article, error) {
	now := time.Now().UTC()
	item.ID = f.id()
	item.CreatedAt, item.UpdatedAt = now, now
	f.articles[item.ID] = item
	return item, nil
}

func (f *fakeStore) GetArticle(_ context.Context, articleID int64) (store.Article, error) {
	item, ok := f.articles[articleID]
	if !ok {
		return store.Article{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) ListArticlesByUser(_ context.Context, userID int64) ([]store.Article, error) {
	items := make([]store.Article, 0)
	for _, item := range f.articles {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeStore) UpdateArticle(_ context.Context, item store.Article) (store.Article, error) {
	if _, ok := f.articles[item.ID]; !ok {
		return store.Article{}, sql.ErrNoRows
	}
	item.UpdatedAt = time.Now().UTC()
	f.articles[item.ID] = item
	return item, nil
}

func (f *fakeStore) DeleteArticle(ctx context.Context, articleID int64) error {
	if _, ok := f.articles[articleID]; !ok {
		return sql.ErrNoRows
	}
	for noteID, note := range f.notes {
		if note.ArticleID == articleID {
			_ = f.DeleteNote(ctx, noteID)
		}
	}
	for connectionID, connection := range f.connections {
		if connection.ArticleID == articleID {
			delete(f.connections, connectionID)
		}
	}
	delete(f.articles, articleID)
	return nil
}

func (f *fakeStore) CreateNote(_ context.Context, item store.Note) (store.Note, error) {
	now := time.Now().UTC()
	item.ID = f.id()
	item.CreatedAt, item.UpdatedAt = now, now
	f.notes[item.ID] = item
	return item, nil
}

func (f *fakeStore) GetNote(_ context.Context, noteID int64) (store.Note, error) {
	item, ok := f.notes[noteID]
	if !ok {
		return store.Note{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) ListNotesByArticle(_ context.Context, articleID int64) ([]store.Note, error) {
	items := make([]store.Note, 0)
	for _, item := range f.notes {
		if item.ArticleID == articleID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeStore) UpdateNote(_ context.Context, item store.Note) (store.Note, error) {
	if _, ok := f.notes[item.ID]; !ok {
		return store.Note{}, sql.ErrNoRows
	}
	item.UpdatedAt = time.Now().UTC()
	f.notes[item.ID] = item
	return item, nil
}

func (f *fakeStore) DeleteNote(_ context.Context, noteID int64) error {
	if _, ok := f.notes[noteID]; !ok {
		return sql.ErrNoRows
	}
	for connectionID, connection := range f.connections {
		if connection.LeftNoteID == noteID || connection.RightNoteID == noteID {
			delete(f.connections, connectionID)
		}
	}
	delete(f.notes, noteID)
	return nil
}

func (f *fakeStore) CreateConnection(_ context.Context, item store.Connection) (store.Connection, error) {
	now := time.Now().UTC()
	item.ID = f.id()
	item.CreatedAt, item.UpdatedAt = now, now
	f.connections[item.ID] = item
	return item, nil
}

func (f *fakeStore) GetConnection(_ context.Context, connectionID int64) (store.Connection, error) {
	item, ok := f.connections[connectionID]
	if !ok {
		return store.Connection{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) ListConnectionsByArticle(_ context.Context, articleID int64) ([]store.Connection, error) {
	items := make([]store.Connection, 0)
	for _, item := range f.connections {
		if item.ArticleID == articleID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeStore) CountConnectionsByNote(_ context.Context, noteID int64) (int, error) {
	n := 0
	for _, item := range f.connections {
		if item.LeftNoteID == noteID || item.RightNoteID == noteID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) UpdateConnection(_ context.Context, item store.Connection) (store.Connection, error) {
	if _, ok := f.connections[item.ID]; !ok {
		return store.Connection{}, sql.ErrNoRows
	}
	item.UpdatedAt = time.Now().UTC()
	f.connections[item.ID] = item
	return item, nil
}

func (f *fakeStore) DeleteConnection(_ context.Context, connectionID int64) error {
	if _, ok := f.connections[connectionID]; !ok {
		return sql.ErrNoRows
	}
	delete(f.connections, connectionID)
	return nil
}

// fakeEngine is an always-healthy search index that remembers what it was fed.
type fakeEngine struct {
	articles  map[int64]search.ArticleRecord
	notes     map[int64]search.NoteRecord
	results   []search.Result
	lastQuery search.Query
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		articles: map[int64]search.ArticleRecord{},
		notes:    map[int64]search.NoteRecord{},
	}
}

func (e *fakeEngine) Healthy() bool { return true }

func (e *fakeEngine) Search(_ context.Context, q search.Query) ([]search.Result, int, error) {
	e.lastQuery = q
	return e.results, len(e.results), nil
}

func (e *fakeEngine) IndexArticle(a search.ArticleRecord) error {
	e.articles[a.ID] = a
	return nil
}

func (e *fakeEngine) IndexNote(n search.NoteRecord) error {
	e.notes[n.ID] = n
	return nil
}

func (e *fakeEngine) DeleteArticle(id int64) error {
	delete(e.articles, id)
	return nil
}

func (e *fakeEngine) DeleteNote(id int64) error {
	delete(e.notes, id)
	return nil
}

func (e *fakeEngine) IndexArticles(articles []search.ArticleRecord) error {
	for _, a := range articles {
		e.articles[a.ID] = a
	}
	return nil
}

func (e *fakeEngine) IndexNotes(notes []search.NoteRecord) error {
	for _, n := range notes {
		e.notes[n.ID] = n
	}
	return nil
}

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error { return p.err }
