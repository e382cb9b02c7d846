package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/authgate/authgate/internal/store"
)

// UserStore is the slice of the user store the orchestrator needs.
type UserStore interface {
	Upsert(ctx context.Context, tx pgx.Tx, in store.UpsertUserInput) (*store.User, error)
}

// SessionStore is the slice of the session store used by the orchestrator
// and the lifecycle manager.
type SessionStore interface {
	Create(ctx context.Context, tx pgx.Tx, sess *store.Session) error
	GetByID(ctx context.Context, id string) (*store.Session, error)
	UpdateTokens(ctx context.Context, tx pgx.Tx, id string, upd store.TokenUpdate) error
	UpdateStatus(ctx context.Context, id string, status store.SessionStatus, revokedAt *time.Time) error
}

// TxRunner opens the transaction the callback work runs in.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}
