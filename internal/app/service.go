package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/maitracle/mindnote-server/internal/auth"
	"github.com/maitracle/mindnote-server/internal/authpw"
	"github.com/maitracle/mindnote-server/internal/authz"
	"github.com/maitracle/mindnote-server/internal/search"
	"github.com/maitracle/mindnote-server/internal/store"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

type dataStore interface {
	GetUserByID(ctx context.Context, userID int64) (store.User, error)
	DeleteUser(ctx context.Context, userID int64) error

	CreateArticle(ctx context.Context, item store.Article) (store.Article, error)
	GetArticle(ctx context.Context, articleID int64) (store.Article, error)
	ListArticlesByUser(ctx context.Context, userID int64) ([]store.Article, error)
	UpdateArticle(ctx context.Context, item store.Article) (store.Article, error)
	DeleteArticle(ctx context.Context, articleID int64) error

	CreateNote(ctx context.Context, item store.Note) (store.Note, error)
	GetNote(ctx context.Context, noteID int64) (store.Note, error)
	ListNotesByArticle(ctx context.Context, articleID int64) ([]store.Note, error)
	UpdateNote(ctx context.Context, item store.Note) (store.Note, error)
	DeleteNote(ctx context.Context, noteID int64) error

	CreateConnection(ctx context.Context, item store.Connection) (store.Connection, error)
	GetConnection(ctx context.Context, connectionID int64) (store.Connection, error)
	ListConnectionsByArticle(ctx context.Context, articleID int64) ([]store.Connection, error)
	CountConnectionsByNote(ctx context.Context, noteID int64) (int, error)
	UpdateConnection(ctx context.Context, item store.Connection) (store.Connection, error)
	DeleteConnection(ctx context.Context, connectionID int64) error

	Ping(ctx context.Context) error
}

type accountService interface {
	SignUp(ctx context.Context, req authpw.SignUpRequest) (*authpw.Session, error)
	SignIn(ctx context.Context, req authpw.SignInRequest) (*authpw.Session, error)
	GoogleSignIn(ctx context.Context, accessToken string) (*authpw.Session, error)
	UpdateProfile(ctx context.Context, user store.User, update authpw.ProfileUpdate) (store.User, error)
}

type tokenResolver interface {
	Resolve(ctx context.Context, apiKey string) (store.User, error)
	Forget(ctx context.Context, apiKey string)
}

type searchService interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexArticle(a search.ArticleRecord)
	IndexNote(n search.NoteRecord)
	RemoveArticle(id int64, noteIDs []int64)
	RemoveNote(id int64)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	store    dataStore
	accounts accountService
	tokens   tokenResolver
	search   searchService
	cache    pinger
	validate *validator.Validate
	logger   zerolog.Logger

	canUseArticle    authz.Predicate[store.Article]
	canUseNote       authz.Predicate[store.Note]
	canUseConnection authz.Predicate[store.Connection]
	canPlaceNote     authz.Predicate[store.Article]
	canConnectIn     authz.Predicate[store.Article]
	canManageUser    authz.Predicate[store.User]
}

func New(dataStore dataStore, accounts accountService, tokens tokenResolver, searcher searchService, logger zerolog.Logger) *Service {
	return &Service{
		store:    dataStore,
		accounts: accounts,
		tokens:   tokens,
		search:   searcher,
		validate: newValidator(),
		logger:   logger,

		canUseArticle: authz.All(
			authz.Authenticated[store.Article](),
			authz.OwnsArticle[store.Article](authz.ArticleItself, ""),
		),
		canUseNote: authz.All(
			authz.Authenticated[store.Note](),
			authz.OwnsArticle(authz.NoteArticle(dataStore), ""),
		),
		canUseConnection: authz.All(
			authz.Authenticated[store.Connection](),
			authz.OwnsArticle(authz.ConnectionArticle(dataStore), ""),
		),
		canPlaceNote:  authz.OwnsArticle[store.Article](authz.ArticleItself, msgNoteOwnArticle),
		canConnectIn:  authz.OwnsArticle[store.Article](authz.ArticleItself, msgConnOwnArticle),
		canManageUser: authz.Self(),
	}
}

// WithCache adds the token cache to readiness checks.
func (s *Service) WithCache(cache pinger) *Service {
	s.cache = cache
	return s
}

// Ping checks every backing service and returns per-dependency errors.
func (s *Service) Ping(ctx context.Context) map[string]error {
	checks := map[string]error{"database": s.store.Ping(ctx)}
	if s.cache != nil {
		checks["redis"] = s.cache.Ping(ctx)
	}
	return checks
}

// Authenticate resolves an Authorization header to its user and key.
func (s *Service) Authenticate(ctx context.Context, header string) (store.User, string, error) {
	key, err := auth.KeyFromHeader(header)
	if err != nil {
		return store.User{}, "", err
	}
	user, err := s.tokens.Resolve(ctx, key)
	if err != nil {
		return store.User{}, "", err
	}
	return user, key, nil
}

func (s *Service) SignUp(ctx context.Context, payload signUpPayload) (*authpw.Session, error) {
	if err := checkPayload(s.validate, payload).err(); err != nil {
		return nil, err
	}
	return s.accounts.SignUp(ctx, authpw.SignUpRequest{
		Email:           payload.Email,
		Password:        payload.Password,
		Name:            payload.Name,
		ProfileImageURL: payload.ProfileImageURL,
	})
}

func (s *Service) SignIn(ctx context.Context, payload signInPayload) (*authpw.Session, error) {
	if err := checkPayload(s.validate, payload).err(); err != nil {
		return nil, err
	}
	return s.accounts.SignIn(ctx, authpw.SignInRequest{Email: payload.Email, Password: payload.Password})
}

func (s *Service) GoogleSignIn(ctx context.Context, payload googleSignInPayload) (*authpw.Session, error) {
	if err := checkPayload(s.validate, payload).err(); err != nil {
		return nil, err
	}
	return s.accounts.GoogleSignIn(ctx, payload.OAuthToken)
}

func (s *Service) UpdateUser(ctx context.Context, requester *store.User, userID int64, patch userPatch) (store.User, error) {
	if requester == nil {
		return store.User{}, authz.ErrUnauthenticated
	}
	target, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return store.User{}, err
	}
	if err := s.canManageUser(ctx, requester, target); err != nil {
		return store.User{}, err
	}
	if err := checkPayload(s.validate, patch).err(); err != nil {
		return store.User{}, err
	}
	return s.accounts.UpdateProfile(ctx, target, authpw.ProfileUpdate{
		Name:            patch.Name,
		ProfileImageURL: patch.ProfileImageURL,
		Password:        patch.Password,
	})
}

// DeleteUser removes the account and drops apiKey from the token cache.
func (s *Service) DeleteUser(ctx context.Context, requester *store.User, userID int64, apiKey string) error {
	if requester == nil {
		return authz.ErrUnauthenticated
	}
	target, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.canManageUser(ctx, requester, target); err != nil {
		return err
	}
	// Index entries are collected first; the cascade removes the rows.
	articles, err := s.store.ListArticlesByUser(ctx, target.ID)
	if err != nil {
		return err
	}
	indexed := make(map[int64][]int64, len(articles))
	for _, article := range articles {
		noteIDs, err := s.noteIDs(ctx, article.ID)
		if err != nil {
			return err
		}
		indexed[article.ID] = noteIDs
	}
	if err := s.store.DeleteUser(ctx, target.ID); err != nil {
		return err
	}
	for articleID, noteIDs := range indexed {
		s.search.RemoveArticle(articleID, noteIDs)
	}
	s.tokens.Forget(ctx, apiKey)
	s.logger.Info().Int64("user_id", target.ID).Msg("user deleted")
	return nil
}

func (s *Service) CreateArticle(ctx context.Context, requester *store.User, payload articlePayload) (store.Article, error) {
	if requester == nil {
		return store.Article{}, authz.ErrUnauthenticated
	}
	if err := checkPayload(s.validate, payload).err(); err != nil {
		return store.Article{}, err
	}
	created, err := s.store.CreateArticle(ctx, store.Article{
		UserID:      requester.ID,
		Subject:     payload.Subject,
		Description: payload.Description,
		Body:        payload.Body,
	})
	if err != nil {
		return store.Article{}, err
	}
	s.search.IndexArticle(articleRecord(created))
	return created, nil
}

func (s *Service) MyArticles(ctx context.Context, requester *store.User) ([]store.Article, error) {
	if requester == nil {
		return nil, authz.ErrUnauthenticated
	}
	return s.store.ListArticlesByUser(ctx, requester.ID)
}

// ArticleDetail is an article with all of its notes and connections.
type ArticleDetail struct {
	Article     store.Article
	Notes       []store.Note
	Connections []store.Connection
}

func (s *Service) GetArticle(ctx context.Context, requester *store.User, articleID int64) (ArticleDetail, error) {
	article, err := s.ownedArticle(ctx, requester, articleID)
	if err != nil {
		return ArticleDetail{}, err
	}
	notes, err := s.store.ListNotesByArticle(ctx, article.ID)
	if err != nil {
		return ArticleDetail{}, err
	}
	connections, err := s.store.ListConnectionsByArticle(ctx, article.ID)
	if err != nil {
		return ArticleDetail{}, err
	}
	return ArticleDetail{Article: article, Notes: notes, Connections: connections}, nil
}

func (s *Service) UpdateArticle(ctx context.Context, requester *store.User, articleID int64, patch articlePatch) (store.Article, error) {
	article, err := s.ownedArticle(ctx, requester, articleID)
	if err != nil {
		return store.Article{}, err
	}
	if err := checkPayload(s.validate, patch).err(); err != nil {
		return store.Article{}, err
	}
	if patch.Subject != nil {
		article.Subject = *patch.Subject
	}
	if patch.Description != nil {
		article.Description = *patch.Description
	}
	if patch.Body != nil {
		article.Body = *patch.Body
	}
	updated, err := s.store.UpdateArticle(ctx, article)
	if err != nil {
		return store.Article{}, err
	}
	s.search.IndexArticle(articleRecord(updated))
	return updated, nil
}

func (s *Service) DeleteArticle(ctx context.Context, requester *store.User, articleID int64) error {
	article, err := s.ownedArticle(ctx, requester, articleID)
	if err != nil {
		return err
	}
	// Note ids are read first; the rows disappear with the article.
	noteIDs, err := s.noteIDs(ctx, article.ID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteArticle(ctx, article.ID); err != nil {
		return err
	}
	s.search.RemoveArticle(article.ID, noteIDs)
	return nil
}

func (s *Service) noteIDs(ctx context.Context, articleID int64) ([]int64, error) {
	notes, err := s.store.ListNotesByArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(notes))
	for _, note := range notes {
		ids = append(ids, note.ID)
	}
	return ids, nil
}

func (s *Service) ownedArticle(ctx context.Context, requester *store.User, articleID int64) (store.Article, error) {
	if requester == nil {
		return store.Article{}, authz.ErrUnauthenticated
	}
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return store.Article{}, err
	}
	if err := s.canUseArticle(ctx, requester, article); err != nil {
		return store.Article{}, err
	}
	return article, nil
}

func (s *Service) CreateNote(ctx context.Context, requester *store.User, payload notePayload) (store.Note, error) {
	if requester == nil {
		return store.Note{}, authz.ErrUnauthenticated
	}
	fields := checkPayload(s.validate, payload)
	article, _, err := resolveRef(ctx, fields, "article", payload.Article, true, s.store.GetArticle)
	if err != nil {
		return store.Note{}, err
	}
	if err := fields.err(); err != nil {
		return store.Note{}, err
	}
	if err := s.canPlaceNote(ctx, requester, article); err != nil {
		return store.Note{}, err
	}

	created, err := s.store.CreateNote(ctx, store.Note{ArticleID: article.ID, Contents: payload.Contents})
	if err != nil {
		return store.Note{}, err
	}
	s.search.IndexNote(noteRecord(created, article.UserID))
	return created, nil
}

// ListNotes returns the notes of one article. rawArticleID is the
// unparsed query parameter.
func (s *Service) ListNotes(ctx context.Context, requester *store.User, rawArticleID string) ([]store.Note, error) {
	if requester == nil {
		return nil, authz.ErrUnauthenticated
	}
	articleID, err := parseID(rawArticleID)
	if err != nil {
		return nil, fieldError("article", msgInvalidChoice)
	}
	article, err := s.store.GetArticle(ctx, articleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fieldError("article", msgInvalidChoice)
	}
	if err != nil {
		return nil, err
	}
	if err := s.canUseArticle(ctx, requester, article); err != nil {
		return nil, err
	}
	return s.store.ListNotesByArticle(ctx, article.ID)
}

func (s *Service) UpdateNote(ctx context.Context, requester *store.User, noteID int64, patch notePatch) (store.Note, error) {
	note, err := s.ownedNote(ctx, requester, noteID)
	if err != nil {
		return store.Note{}, err
	}
	fields := checkPayload(s.validate, patch)
	target, moved, err := resolveRef(ctx, fields, "article", patch.Article, false, s.store.GetArticle)
	if err != nil {
		return store.Note{}, err
	}
	if err := fields.err(); err != nil {
		return store.Note{}, err
	}
	if moved && target.ID != note.ArticleID {
		if err := s.canPlaceNote(ctx, requester, target); err != nil {
			return store.Note{}, err
		}
		// Connections require both notes in their own article.
		linked, err := s.store.CountConnectionsByNote(ctx, note.ID)
		if err != nil {
			return store.Note{}, err
		}
		if linked > 0 {
			return store.Note{}, nonFieldError(msgNoteConnected)
		}
		note.ArticleID = target.ID
	}
	if patch.Contents != nil {
		note.Contents = *patch.Contents
	}

	updated, err := s.store.UpdateNote(ctx, note)
	if err != nil {
		return store.Note{}, err
	}
	s.search.IndexNote(noteRecord(updated, requester.ID))
	return updated, nil
}

func (s *Service) DeleteNote(ctx context.Context, requester *store.User, noteID int64) error {
	note, err := s.ownedNote(ctx, requester, noteID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteNote(ctx, note.ID); err != nil {
		return err
	}
	s.search.RemoveNote(note.ID)
	return nil
}

func (s *Service) ownedNote(ctx context.Context, requester *store.User, noteID int64) (store.Note, error) {
	if requester == nil {
		return store.Note{}, authz.ErrUnauthenticated
	}
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return store.Note{}, err
	}
	if err := s.canUseNote(ctx, requester, note); err != nil {
		return store.Note{}, err
	}
	return note, nil
}

func (s *Service) CreateConnection(ctx context.Context, requester *store.User, payload connectionPayload) (store.Connection, error) {
	if requester == nil {
		return store.Connection{}, authz.ErrUnauthenticated
	}
	fields := checkPayload(s.validate, payload)
	article, _, err := resolveRef(ctx, fields, "article", payload.Article, true, s.store.GetArticle)
	if err != nil {
		return store.Connection{}, err
	}
	left, _, err := resolveRef(ctx, fields, "left_note", payload.LeftNote, true, s.store.GetNote)
	if err != nil {
		return store.Connection{}, err
	}
	right, _, err := resolveRef(ctx, fields, "right_note", payload.RightNote, true, s.store.GetNote)
	if err != nil {
		return store.Connection{}, err
	}
	if err := fields.err(); err != nil {
		return store.Connection{}, err
	}
	if err := s.checkConnection(ctx, requester, article, left, right); err != nil {
		return store.Connection{}, err
	}

	return s.store.CreateConnection(ctx, store.Connection{
		ArticleID:   article.ID,
		LeftNoteID:  left.ID,
		RightNoteID: right.ID,
		Reason:      payload.Reason,
	})
}

// UpdateConnection merges patch into the stored connection and validates
// the merged value as if it were new.
func (s *Service) UpdateConnection(ctx context.Context, requester *store.User, connectionID int64, patch connectionPatch) (store.Connection, error) {
	connection, err := s.ownedConnection(ctx, requester, connectionID)
	if err != nil {
		return store.Connection{}, err
	}
	fields := checkPayload(s.validate, patch)
	article, articleSet, err := resolveRef(ctx, fields, "article", patch.Article, false, s.store.GetArticle)
	if err != nil {
		return store.Connection{}, err
	}
	left, leftSet, err := resolveRef(ctx, fields, "left_note", patch.LeftNote, false, s.store.GetNote)
	if err != nil {
		return store.Connection{}, err
	}
	right, rightSet, err := resolveRef(ctx, fields, "right_note", patch.RightNote, false, s.store.GetNote)
	if err != nil {
		return store.Connection{}, err
	}
	if err := fields.err(); err != nil {
		return store.Connection{}, err
	}

	if !articleSet {
		if article, err = s.store.GetArticle(ctx, connection.ArticleID); err != nil {
			return store.Connection{}, fmt.Errorf("load connection article: %w", err)
		}
	}
	if !leftSet {
		if left, err = s.store.GetNote(ctx, connection.LeftNoteID); err != nil {
			return store.Connection{}, fmt.Errorf("load left note: %w", err)
		}
	}
	if !rightSet {
		if right, err = s.store.GetNote(ctx, connection.RightNoteID); err != nil {
			return store.Connection{}, fmt.Errorf("load right note: %w", err)
		}
	}
	if err := s.checkConnection(ctx, requester, article, left, right); err != nil {
		return store.Connection{}, err
	}

	connection.ArticleID = article.ID
	connection.LeftNoteID = left.ID
	connection.RightNoteID = right.ID
	if patch.Reason != nil {
		connection.Reason = *patch.Reason
	}
	return s.store.UpdateConnection(ctx, connection)
}

func (s *Service) DeleteConnection(ctx context.Context, requester *store.User, connectionID int64) error {
	connection, err := s.ownedConnection(ctx, requester, connectionID)
	if err != nil {
		return err
	}
	return s.store.DeleteConnection(ctx, connection.ID)
}

func (s *Service) ownedConnection(ctx context.Context, requester *store.User, connectionID int64) (store.Connection, error) {
	if requester == nil {
		return store.Connection{}, authz.ErrUnauthenticated
	}
	connection, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return store.Connection{}, err
	}
	if err := s.canUseConnection(ctx, requester, connection); err != nil {
		return store.Connection{}, err
	}
	return connection, nil
}

// checkConnection applies the ownership, distinctness and same-article
// rules in that order.
func (s *Service) checkConnection(ctx context.Context, requester *store.User, article store.Article, left, right store.Note) error {
	if err := s.canConnectIn(ctx, requester, article); err != nil {
		return err
	}
	if left.ID == right.ID {
		return nonFieldError(msgSameNotes)
	}
	if left.ArticleID != article.ID || right.ArticleID != article.ID {
		return nonFieldError(msgArticleMismatch)
	}
	return nil
}

// SearchParams are the raw query parameters of a search request.
type SearchParams struct {
	Query  string
	Type   string
	Limit  string
	Offset string
}

func (s *Service) Search(ctx context.Context, requester *store.User, params SearchParams) (search.Response, error) {
	if requester == nil {
		return search.Response{}, authz.ErrUnauthenticated
	}
	fields := fieldErrors{}
	text := strings.TrimSpace(params.Query)
	if text == "" {
		fields.add("q", msgRequired)
	}
	filterType, err := search.ParseType(strings.TrimSpace(params.Type))
	if err != nil {
		fields.add("type", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", params.Type))
	}
	limit := parseBounded(fields, "limit", params.Limit, defaultSearchLimit, 1, maxSearchLimit)
	offset := parseBounded(fields, "offset", params.Offset, 0, 0, -1)
	if err := fields.err(); err != nil {
		return search.Response{}, err
	}

	return s.search.Search(ctx, search.Query{
		Text:       text,
		FilterType: filterType,
		UserID:     requester.ID,
		Limit:      limit,
		Offset:     offset,
	}), nil
}

// parseBounded reads an optional integer parameter. A negative max means
// no upper bound.
func parseBounded(fields fieldErrors, name, raw string, fallback, min, max int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		fields.add(name, "A valid integer is required.")
		return fallback
	}
	switch {
	case value < min:
		fields.add(name, fmt.Sprintf("Ensure this value is greater than or equal to %d.", min))
	case max >= 0 && value > max:
		fields.add(name, fmt.Sprintf("Ensure this value is less than or equal to %d.", max))
	}
	return value
}

var errInvalidID = errors.New("invalid id")

// parseID accepts positive decimal ids.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

func articleRecord(article store.Article) search.ArticleRecord {
	return search.ArticleRecord{
		ID:          article.ID,
		UserID:      article.UserID,
		Subject:     article.Subject,
		Description: article.Description,
		Body:        article.Body,
	}
}

func noteRecord(note store.Note, ownerID int64) search.NoteRecord {
	return search.NoteRecord{
		ID:        note.ID,
		ArticleID: note.ArticleID,
		UserID:    ownerID,
		Contents:  note.Contents,
	}
}
