package app

import (
	"time"

	"github.com/maitracle/mindnote-server/internal/authpw"
	"github.com/maitracle/mindnote-server/internal/store"
)

// The password hash never leaves the server.
type userView struct {
	ID              int64     `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	ProfileImageURL string    `json:"profile_image_url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type sessionView struct {
	User    userView `json:"user"`
	Token   string   `json:"token"`
	Created *bool    `json:"created,omitempty"`
}

type articleView struct {
	ID          int64     `json:"id"`
	User        int64     `json:"user"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type articleDetailView struct {
	articleView
	Notes       []noteView       `json:"notes"`
	Connections []connectionView `json:"connections"`
}

type noteView struct {
	ID        int64     `json:"id"`
	Article   int64     `json:"article"`
	Contents  string    `json:"contents"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type connectionView struct {
	ID        int64     `json:"id"`
	Article   int64     `json:"article"`
	LeftNote  int64     `json:"left_note"`
	RightNote int64     `json:"right_note"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func viewUser(user store.User) userView {
	return userView{
		ID:              user.ID,
		Email:           user.Email,
		Name:            user.Name,
		ProfileImageURL: user.ProfileImageURL,
		CreatedAt:       user.CreatedAt,
		UpdatedAt:       user.UpdatedAt,
	}
}

func viewSession(session *authpw.Session, withCreated bool) sessionView {
	view := sessionView{User: viewUser(session.User), Token: session.Token.Key}
	if withCreated {
		created := session.Created
		view.Created = &created
	}
	return view
}

func viewArticle(article store.Article) articleView {
	return articleView{
		ID:          article.ID,
		User:        article.UserID,
		Subject:     article.Subject,
		Description: article.Description,
		Body:        article.Body,
		CreatedAt:   article.CreatedAt,
		UpdatedAt:   article.UpdatedAt,
	}
}

func viewArticles(articles []store.Article) []articleView {
	views := make([]articleView, 0, len(articles))
	for _, article := range articles {
		views = append(views, viewArticle(article))
	}
	return views
}

func viewArticleDetail(detail ArticleDetail) articleDetailView {
	connections := make([]connectionView, 0, len(detail.Connections))
	for _, connection := range detail.Connections {
		connections = append(connections, viewConnection(connection))
	}
	return articleDetailView{
		articleView: viewArticle(detail.Article),
		Notes:       viewNotes(detail.Notes),
		Connections: connections,
	}
}

func viewNote(note store.Note) noteView {
	return noteView{
		ID:        note.ID,
		Article:   note.ArticleID,
		Contents:  note.Contents,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
}

func viewNotes(notes []store.Note) []noteView {
	views := make([]noteView, 0, len(notes))
	for _, note := range notes {
		views = append(views, viewNote(note))
	}
	return views
}

func viewConnection(connection store.Connection) connectionView {
	return connectionView{
		ID:        connection.ID,
		Article:   connection.ArticleID,
		LeftNote:  connection.LeftNoteID,
		RightNote: connection.RightNoteID,
		Reason:    connection.Reason,
		CreatedAt: connection.CreatedAt,
		UpdatedAt: connection.UpdatedAt,
	}
}
