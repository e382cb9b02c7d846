package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authgate/authgate/internal/security/secretbox"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so
// mutations can run standalone or join an enclosing transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SessionStore persists login sessions and their encrypted provider tokens.
type SessionStore struct {
	pool *pgxpool.Pool
}

const sessionColumns = `id, user_id, status, provider,
	access_token_ciphertext, access_token_iv, access_token_tag,
	access_token_expires_at,
	refresh_token_ciphertext, refresh_token_iv, refresh_token_tag,
	refresh_token_expires_at, refresh_token_hash,
	scope, provider_account_id, last_accessed_at, revoked_at, expires_at,
	metadata, created_at, updated_at, deleted_at`

// Create inserts a session inside the caller's transaction (session rows
// are only born together with their user upsert). A duplicate refresh
// token maps to ErrConflict.
func (s *SessionStore) Create(ctx context.Context, tx pgx.Tx, sess *Session) error {
	if tx == nil {
		return ErrTxRequired
	}
	meta, err := encodeMetadata(sess.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO session
			(id, user_id, status, provider,
			 access_token_ciphertext, access_token_iv, access_token_tag,
			 access_token_expires_at,
			 refresh_token_ciphertext, refresh_token_iv, refresh_token_tag,
			 refresh_token_expires_at, refresh_token_hash,
			 scope, provider_account_id, last_accessed_at, expires_at,
			 metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, now(), now())`,
		sess.ID, sess.UserID, sess.Status, sess.Provider,
		sess.AccessToken.Ciphertext, sess.AccessToken.IV, sess.AccessToken.Tag,
		sess.AccessTokenExpiresAt,
		sess.RefreshToken.Ciphertext, sess.RefreshToken.IV, sess.RefreshToken.Tag,
		sess.RefreshTokenExpiresAt, sess.RefreshTokenHash,
		sess.Scope, sess.ProviderAccountID, sess.LastAccessedAt, sess.ExpiresAt,
		meta)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("store: insert session: %w", err)
	}
	return nil
}

// GetByID fetches a non-deleted session in any status.
func (s *SessionStore) GetByID(ctx context.Context, id string) (*Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, `SELECT `+sessionColumns+`
		FROM session WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	return sess, err
}

// TokenUpdate carries a rotation result. RefreshToken is nil when the
// provider kept the old refresh token.
type TokenUpdate struct {
	AccessToken          secretbox.EncryptedValue
	AccessTokenExpiresAt time.Time

	RefreshToken          *secretbox.EncryptedValue
	RefreshTokenExpiresAt *time.Time
	RefreshTokenHash      string
}

// UpdateTokens rotates stored provider tokens in place. Only active
// sessions accept rotation; a miss means the session disappeared or left
// the active state underneath us and reports ErrNotFound. tx may be nil.
func (s *SessionStore) UpdateTokens(ctx context.Context, tx pgx.Tx, id string, upd TokenUpdate) error {
	var q querier = s.pool
	if tx != nil {
		q = tx
	}
	var (
		tag pgconn.CommandTag
		err error
	)
	if upd.RefreshToken != nil {
		tag, err = q.Exec(ctx, `UPDATE session
			SET access_token_ciphertext = $2, access_token_iv = $3,
			    access_token_tag = $4, access_token_expires_at = $5,
			    refresh_token_ciphertext = $6, refresh_token_iv = $7,
			    refresh_token_tag = $8, refresh_token_expires_at = $9,
			    refresh_token_hash = $10,
			    last_accessed_at = now(), updated_at = now()
			WHERE id = $1 AND status = 'active' AND deleted_at IS NULL`,
			id,
			upd.AccessToken.Ciphertext, upd.AccessToken.IV, upd.AccessToken.Tag,
			upd.AccessTokenExpiresAt,
			upd.RefreshToken.Ciphertext, upd.RefreshToken.IV, upd.RefreshToken.Tag,
			upd.RefreshTokenExpiresAt, upd.RefreshTokenHash)
	} else {
		tag, err = q.Exec(ctx, `UPDATE session
			SET access_token_ciphertext = $2, access_token_iv = $3,
			    access_token_tag = $4, access_token_expires_at = $5,
			    last_accessed_at = now(), updated_at = now()
			WHERE id = $1 AND status = 'active' AND deleted_at IS NULL`,
			id,
			upd.AccessToken.Ciphertext, upd.AccessToken.IV, upd.AccessToken.Tag,
			upd.AccessTokenExpiresAt)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("store: update session tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus moves an active session into a terminal state. The WHERE
// guard makes terminal states sticky: transitioning an already revoked or
// expired session is a silent no-op.
func (s *SessionStore) UpdateStatus(ctx context.Context, id string, status SessionStatus, revokedAt *time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE session
		SET status = $2, revoked_at = COALESCE($3, revoked_at),
		    updated_at = now()
		WHERE id = $1 AND status = 'active' AND deleted_at IS NULL`,
		id, status, revokedAt)
	if err != nil {
		return fmt.Errorf("store: update session status: %w", err)
	}
	return nil
}

// Touch bumps last_accessed_at. Best effort; callers ignore the error.
func (s *SessionStore) Touch(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE session
		SET last_accessed_at = now()
		WHERE id = $1 AND status = 'active' AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("store: touch session: %w", err)
	}
	return nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		sess Session
		meta []byte
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Status, &sess.Provider,
		&sess.AccessToken.Ciphertext, &sess.AccessToken.IV, &sess.AccessToken.Tag,
		&sess.AccessTokenExpiresAt,
		&sess.RefreshToken.Ciphertext, &sess.RefreshToken.IV, &sess.RefreshToken.Tag,
		&sess.RefreshTokenExpiresAt, &sess.RefreshTokenHash,
		&sess.Scope, &sess.ProviderAccountID, &sess.LastAccessedAt,
		&sess.RevokedAt, &sess.ExpiresAt, &meta,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &sess.Metadata); err != nil {
			return nil, fmt.Errorf("store: decode session metadata: %w", err)
		}
	}
	return &sess, nil
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("store: encode session metadata: %w", err)
	}
	return b, nil
}
