package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UpsertUserInput carries the profile fields resolved from a provider.
type UpsertUserInput struct {
	ProviderAccountID string
	Email             string
	FirstName         string
	LastName          string
	AvatarURL         string
}

// UserStore persists identity records in postgres.
type UserStore struct {
	pool *pgxpool.Pool
}

const userColumns = `id, email, first_name, last_name, avatar_url,
	provider_account_id, created_at, updated_at, deleted_at`

// Upsert resolves the user for a provider login inside the caller's
// transaction. Resolution order: provider_account_id, then email (links the
// provider identity onto the existing account), then a fresh insert. A nil
// tx is a programming error surfaced as ErrTxRequired; losing an insert
// race maps to ErrConflict so the caller can retry the whole transaction.
func (s *UserStore) Upsert(ctx context.Context, tx pgx.Tx, in UpsertUserInput) (*User, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}

	u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+`
		FROM app_user WHERE provider_account_id = $1 AND deleted_at IS NULL`,
		in.ProviderAccountID))
	switch {
	case err == nil:
		return s.refreshProfile(ctx, tx, u.ID, in)
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("store: lookup user by provider account: %w", err)
	}

	u, err = scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+`
		FROM app_user WHERE email = $1 AND deleted_at IS NULL`, in.Email))
	switch {
	case err == nil:
		// Existing account signed in through this provider for the first
		// time: attach the provider identity and refresh the profile.
		u, err = scanUser(tx.QueryRow(ctx, `UPDATE app_user
			SET provider_account_id = $2, first_name = $3, last_name = $4,
			    avatar_url = $5, updated_at = now()
			WHERE id = $1
			RETURNING `+userColumns,
			u.ID, in.ProviderAccountID, in.FirstName, in.LastName, in.AvatarURL))
		if err != nil {
			if isUniqueViolation(err) {
				return nil, ErrConflict
			}
			return nil, fmt.Errorf("store: link provider identity: %w", err)
		}
		return u, nil
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("store: lookup user by email: %w", err)
	}

	u, err = scanUser(tx.QueryRow(ctx, `INSERT INTO app_user
			(id, email, first_name, last_name, avatar_url, provider_account_id,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+userColumns,
		uuid.NewString(), in.Email, in.FirstName, in.LastName, in.AvatarURL,
		in.ProviderAccountID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("store: insert user: %w", err)
	}
	return u, nil
}

func (s *UserStore) refreshProfile(ctx context.Context, tx pgx.Tx, id string, in UpsertUserInput) (*User, error) {
	u, err := scanUser(tx.QueryRow(ctx, `UPDATE app_user
		SET email = $2, first_name = $3, last_name = $4, avatar_url = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, in.Email, in.FirstName, in.LastName, in.AvatarURL))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("store: update user profile: %w", err)
	}
	return u, nil
}

// GetByID fetches a non-deleted user.
func (s *UserStore) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+`
		FROM app_user WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return u, err
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u                           User
		firstName, lastName, avatar *string
	)
	err := row.Scan(&u.ID, &u.Email, &firstName, &lastName, &avatar,
		&u.ProviderAccountID, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if firstName != nil {
		u.FirstName = *firstName
	}
	if lastName != nil {
		u.LastName = *lastName
	}
	if avatar != nil {
		u.AvatarURL = *avatar
	}
	return &u, nil
}
