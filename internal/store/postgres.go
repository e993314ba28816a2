package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maitracle/mindnote-server/internal/util"
)

var ErrEmailTaken = errors.New("email already registered")

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const userColumns = `id, email, password_hash, name, profile_image_url, created_at, updated_at`

func scanUser(row rowScanner) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.ProfileImageURL, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreateUserWithToken inserts a user and its API token in one transaction.
func (s *PostgresStore) CreateUserWithToken(ctx context.Context, user User) (User, Token, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, Token{}, fmt.Errorf("begin sign up tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created, err := scanUser(tx.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, name, profile_image_url)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		user.Email, user.PasswordHash, user.Name, user.ProfileImageURL))
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, Token{}, ErrEmailTaken
		}
		return User{}, Token{}, fmt.Errorf("insert user: %w", err)
	}

	token, err := getOrCreateToken(ctx, tx, created.ID)
	if err != nil {
		return User{}, Token{}, err
	}
	if err := tx.Commit(); err != nil {
		return User{}, Token{}, fmt.Errorf("commit sign up: %w", err)
	}
	return created, token, nil
}

// GetOrCreateUserWithToken returns the user registered under user.Email,
// creating it (and its token) when absent. created reports which branch ran.
func (s *PostgresStore) GetOrCreateUserWithToken(ctx context.Context, user User) (User, Token, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, Token{}, false, fmt.Errorf("begin oauth sign in tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := true
	stored, err := scanUser(tx.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, name, profile_image_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
		RETURNING `+userColumns,
		user.Email, user.PasswordHash, user.Name, user.ProfileImageURL))
	if errors.Is(err, sql.ErrNoRows) {
		created = false
		stored, err = scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, user.Email))
	}
	if err != nil {
		return User{}, Token{}, false, fmt.Errorf("get or create user: %w", err)
	}

	token, err := getOrCreateToken(ctx, tx, stored.ID)
	if err != nil {
		return User{}, Token{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return User{}, Token{}, false, fmt.Errorf("commit oauth sign in: %w", err)
	}
	return stored, token, created, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func (s *PostgresStore) GetUserByTokenKey(ctx context.Context, key string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.password_hash, u.name, u.profile_image_url, u.created_at, u.updated_at
		FROM tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.key=$1
	`, key))
}

// UpdateUser writes the mutable profile columns. Email never changes.
func (s *PostgresStore) UpdateUser(ctx context.Context, user User) (User, error) {
	updated, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users
		SET name=$2, profile_image_url=$3, password_hash=$4, updated_at=NOW()
		WHERE id=$1
		RETURNING `+userColumns,
		user.ID, user.Name, user.ProfileImageURL, user.PasswordHash))
	if err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID int64) error {
	return s.deleteByID(ctx, "users", userID)
}

func (s *PostgresStore) GetOrCreateToken(ctx context.Context, userID int64) (Token, error) {
	return getOrCreateToken(ctx, s.db, userID)
}

// getOrCreateToken tolerates a concurrent creator: the loser of the
// ON CONFLICT race reads the winner's row.
func getOrCreateToken(ctx context.Context, q queryer, userID int64) (Token, error) {
	var token Token
	err := q.QueryRowContext(ctx, `
		INSERT INTO tokens (user_id, key)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING key, user_id, created_at
	`, userID, util.NewKey()).Scan(&token.Key, &token.UserID, &token.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		err = q.QueryRowContext(ctx, `SELECT key, user_id, created_at FROM tokens WHERE user_id=$1`, userID).
			Scan(&token.Key, &token.UserID, &token.CreatedAt)
	}
	if err != nil {
		return Token{}, fmt.Errorf("get or create token: %w", err)
	}
	return token, nil
}

func (s *PostgresStore) deleteByID(ctx context.Context, table string, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
