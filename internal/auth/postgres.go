package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindOperator(ctx context.Context, username string) (Operator, string, error) {
	var op Operator
	var hash string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, is_active, password_hash
		FROM operators
		WHERE username = $1
		LIMIT 1
	`, username).Scan(&op.ID, &op.Username, &op.FullName, &op.IsActive, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Operator{}, "", ErrInvalidCredentials
		}
		return Operator{}, "", err
	}
	return op, hash, nil
}

func (r *PostgresRepository) InsertOperator(ctx context.Context, username, fullName, passwordHash string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO operators (username, full_name, password_hash, is_active, created_at)
		VALUES ($1, $2, $3, TRUE, now())
		RETURNING id
	`, username, fullName, passwordHash).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrOperatorExists
		}
		return 0, err
	}
	return id, nil
}

func (r *PostgresRepository) InsertSession(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO operator_sessions (
			operator_id, session_token_hash, expires_at, ip_address, user_agent, created_at
		) VALUES (
			$1, $2, $3, $4, $5, now()
		)
	`, s.OperatorID, s.TokenHash, s.ExpiresAt, nullableString(s.IPAddress), nullableString(s.UserAgent))
	return err
}

func (r *PostgresRepository) FindSessionOperator(ctx context.Context, tokenHash string, now time.Time) (Operator, error) {
	var op Operator
	err := r.db.QueryRowContext(ctx, `
		SELECT o.id, o.username, o.full_name, o.is_active
		FROM operator_sessions s
		JOIN operators o ON o.id = s.operator_id
		WHERE s.session_token_hash = $1
		  AND s.revoked_at IS NULL
		  AND s.expires_at > $2
		LIMIT 1
	`, tokenHash, now).Scan(&op.ID, &op.Username, &op.FullName, &op.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Operator{}, ErrUnauthorized
		}
		return Operator{}, err
	}
	return op, nil
}

func (r *PostgresRepository) RevokeSession(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE operator_sessions
		SET revoked_at = $2
		WHERE session_token_hash = $1
		  AND revoked_at IS NULL
	`, tokenHash, at)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
