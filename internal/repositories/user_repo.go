package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"masterok/internal/models"
)

// UserRepository touches the few user columns this service maintains:
// the completed job counter and the last seen timestamp. Rows are created
// on first write when the authentication service has not provisioned them.
type UserRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(db *sql.DB, d Dialect) *UserRepository {
	return &UserRepository{db: db, dialect: d}
}

func (r *UserRepository) upsert(column, insertValue, updateExpr string) string {
	if r.dialect == MySQL {
		return `INSERT INTO users (id, role, ` + column + `) VALUES (?, ?, ` + insertValue + `)
			ON DUPLICATE KEY UPDATE ` + column + ` = ` + updateExpr
	}
	return `INSERT INTO users (id, role, ` + column + `) VALUES (?, ?, ` + insertValue + `)
		ON CONFLICT (id) DO UPDATE SET ` + column + ` = ` + updateExpr
}

// IncrementCompletedTx adds one to the provider's completed job counter.
func (r *UserRepository) IncrementCompletedTx(ctx context.Context, tx *sql.Tx, providerID int64) error {
	_, err := r.dialect.exec(ctx, tx, r.upsert("completed_orders", "1", "users.completed_orders + 1"),
		providerID, models.RoleProvider)
	return err
}

// TouchLastSeen records the moment the user was last active.
func (r *UserRepository) TouchLastSeen(ctx context.Context, userID int64, role string, at time.Time) error {
	if role == "" {
		role = models.RoleClient
	}
	_, err := r.dialect.exec(ctx, r.db, r.upsert("last_seen_at", "?", "?"), userID, role, at, at)
	return err
}

// CompletedOrders returns the provider's completed job counter.
func (r *UserRepository) CompletedOrders(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT completed_orders FROM users WHERE id = ?`), userID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// LastSeen returns when the user was last active, or nil if never recorded.
func (r *UserRepository) LastSeen(ctx context.Context, userID int64) (*time.Time, error) {
	var at sql.NullTime
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT last_seen_at FROM users WHERE id = ?`), userID).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return nullTimePtr(at), nil
}
