package repositories

import (
	"context"
	"database/sql"
	"time"
)

// NotifyTokenRepository keeps the push device tokens of each user.
type NotifyTokenRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewNotifyTokenRepository constructs a NotifyTokenRepository.
func NewNotifyTokenRepository(db *sql.DB, d Dialect) *NotifyTokenRepository {
	return &NotifyTokenRepository{db: db, dialect: d}
}

// Add registers a token. Registering the same token twice is a no-op.
func (r *NotifyTokenRepository) Add(ctx context.Context, userID int64, token string) error {
	_, err := r.dialect.exec(ctx, r.db, `INSERT INTO notify_tokens (user_id, token, created_at) VALUES (?, ?, ?)`,
		userID, token, time.Now().UTC())
	if isDuplicate(err) {
		return nil
	}
	return err
}

// Remove unregisters a token.
func (r *NotifyTokenRepository) Remove(ctx context.Context, userID int64, token string) error {
	_, err := r.dialect.exec(ctx, r.db, `DELETE FROM notify_tokens WHERE user_id = ? AND token = ?`, userID, token)
	return err
}

// RemoveToken drops a token for whoever owns it. Used when the push
// provider reports the device as unregistered.
func (r *NotifyTokenRepository) RemoveToken(ctx context.Context, token string) error {
	_, err := r.dialect.exec(ctx, r.db, `DELETE FROM notify_tokens WHERE token = ?`, token)
	return err
}

// Tokens lists a user's registered tokens.
func (r *NotifyTokenRepository) Tokens(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`SELECT token FROM notify_tokens WHERE user_id = ? ORDER BY token`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
