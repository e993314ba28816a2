package store

import (
	"context"
	"fmt"
)

const (
	articleColumns    = `id, user_id, subject, description, body, created_at, updated_at`
	noteColumns       = `id, article_id, contents, created_at, updated_at`
	connectionColumns = `id, article_id, left_note_id, right_note_id, reason, created_at, updated_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (Article, error) {
	var item Article
	err := row.Scan(&item.ID, &item.UserID, &item.Subject, &item.Description, &item.Body, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func scanNote(row rowScanner) (Note, error) {
	var item Note
	err := row.Scan(&item.ID, &item.ArticleID, &item.Contents, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func scanConnection(row rowScanner) (Connection, error) {
	var item Connection
	err := row.Scan(&item.ID, &item.ArticleID, &item.LeftNoteID, &item.RightNoteID, &item.Reason, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) CreateArticle(ctx context.Context, item Article) (Article, error) {
	created, err := scanArticle(s.db.QueryRowContext(ctx, `
		INSERT INTO articles (user_id, subject, description, body)
		VALUES ($1, $2, $3, $4)
		RETURNING `+articleColumns,
		item.UserID, item.Subject, item.Description, item.Body))
	if err != nil {
		return Article{}, fmt.Errorf("insert article: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetArticle(ctx context.Context, articleID int64) (Article, error) {
	return scanArticle(s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id=$1`, articleID))
}

func (s *PostgresStore) ListArticlesByUser(ctx context.Context, userID int64) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+articleColumns+`
		FROM articles
		WHERE user_id=$1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	items := make([]Article, 0)
	for rows.Next() {
		item, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return items, nil
}

// UpdateArticle rewrites the editable columns; the owner is fixed at creation.
func (s *PostgresStore) UpdateArticle(ctx context.Context, item Article) (Article, error) {
	updated, err := scanArticle(s.db.QueryRowContext(ctx, `
		UPDATE articles
		SET subject=$2, description=$3, body=$4, updated_at=NOW()
		WHERE id=$1
		RETURNING `+articleColumns,
		item.ID, item.Subject, item.Description, item.Body))
	if err != nil {
		return Article{}, fmt.Errorf("update article: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteArticle(ctx context.Context, articleID int64) error {
	return s.deleteByID(ctx, "articles", articleID)
}

func (s *PostgresStore) CreateNote(ctx context.Context, item Note) (Note, error) {
	created, err := scanNote(s.db.QueryRowContext(ctx, `
		INSERT INTO notes (article_id, contents)
		VALUES ($1, $2)
		RETURNING `+noteColumns,
		item.ArticleID, item.Contents))
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetNote(ctx context.Context, noteID int64) (Note, error) {
	return scanNote(s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id=$1`, noteID))
}

func (s *PostgresStore) ListNotesByArticle(ctx context.Context, articleID int64) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE article_id=$1
		ORDER BY id
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		item, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateNote(ctx context.Context, item Note) (Note, error) {
	updated, err := scanNote(s.db.QueryRowContext(ctx, `
		UPDATE notes
		SET article_id=$2, contents=$3, updated_at=NOW()
		WHERE id=$1
		RETURNING `+noteColumns,
		item.ID, item.ArticleID, item.Contents))
	if err != nil {
		return Note{}, fmt.Errorf("update note: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, noteID int64) error {
	return s.deleteByID(ctx, "notes", noteID)
}

func (s *PostgresStore) CreateConnection(ctx context.Context, item Connection) (Connection, error) {
	created, err := scanConnection(s.db.QueryRowContext(ctx, `
		INSERT INTO connections (article_id, left_note_id, right_note_id, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING `+connectionColumns,
		item.ArticleID, item.LeftNoteID, item.RightNoteID, item.Reason))
	if err != nil {
		return Connection{}, fmt.Errorf("insert connection: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetConnection(ctx context.Context, connectionID int64) (Connection, error) {
	return scanConnection(s.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id=$1`, connectionID))
}

func (s *PostgresStore) ListConnectionsByArticle(ctx context.Context, articleID int64) ([]Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE article_id=$1
		ORDER BY id
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	items := make([]Connection, 0)
	for rows.Next() {
		item, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return items, nil
}

// CountConnectionsByNote counts connections that use noteID on either side.
func (s *PostgresStore) CountConnectionsByNote(ctx context.Context, noteID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM connections WHERE left_note_id=$1 OR right_note_id=$1
	`, noteID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count note connections: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) UpdateConnection(ctx context.Context, item Connection) (Connection, error) {
	updated, err := scanConnection(s.db.QueryRowContext(ctx, `
		UPDATE connections
		SET article_id=$2, left_note_id=$3, right_note_id=$4, reason=$5, updated_at=NOW()
		WHERE id=$1
		RETURNING `+connectionColumns,
		item.ID, item.ArticleID, item.LeftNoteID, item.RightNoteID, item.Reason))
	if err != nil {
		return Connection{}, fmt.Errorf("update connection: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteConnection(ctx context.Context, connectionID int64) error {
	return s.deleteByID(ctx, "connections", connectionID)
}
