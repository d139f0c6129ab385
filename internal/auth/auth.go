// Package auth resolves bearer secrets to accounts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/podhaven/crawler/internal/store"
)

// ErrInvalidKey means the presented secret matches no account key.
var ErrInvalidKey = errors.New("invalid api key")

// Clock abstracts time.Now so tests can pin last-seen timestamps.
type Clock interface {
	Now() time.Time
}

const sqlSelectAccountByKey = `
SELECT a.id, a.email, a.last_seen_at
FROM key k
JOIN account a ON a.id = k.account_id
WHERE k.secret = $1`

const sqlTouchAccount = `UPDATE account SET last_seen_at = $2 WHERE id = $1`

// Authenticate resolves secret to its account and records the access time.
func Authenticate(ctx context.Context, q store.Querier, clock Clock, secret string) (store.Account, error) {
	var account store.Account
	err := q.QueryRow(ctx, sqlSelectAccountByKey, secret).
		Scan(&account.ID, &account.Email, &account.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Account{}, ErrInvalidKey
	}
	if err != nil {
		return store.Account{}, fmt.Errorf("looking up api key: %w", err)
	}

	now := clock.Now()
	if _, err := q.Exec(ctx, sqlTouchAccount, account.ID, now); err != nil {
		return store.Account{}, fmt.Errorf("recording account access: %w", err)
	}
	account.LastSeenAt = now
	return account, nil
}
