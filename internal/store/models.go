package store

import "time"

type User struct {
	ID              int64
	Email           string
	PasswordHash    string
	Name            string
	ProfileImageURL string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Token is the single opaque API key of a user.
type Token struct {
	Key       string
	UserID    int64
	CreatedAt time.Time
}

type Article struct {
	ID          int64
	UserID      int64
	Subject     string
	Description string
	Body        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Note struct {
	ID        int64
	ArticleID int64
	Contents  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Connection links two notes of the same article.
type Connection struct {
	ID          int64
	ArticleID   int64
	LeftNoteID  int64
	RightNoteID int64
	Reason      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
