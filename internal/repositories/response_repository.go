package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"masterok/internal/models"
)

const responseColumns = `id, request_id, provider_id, price, message, estimated_time, status, created_at, updated_at`

// ResponseRepository stores provider bids.
type ResponseRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewResponseRepository constructs a ResponseRepository.
func NewResponseRepository(db *sql.DB, d Dialect) *ResponseRepository {
	return &ResponseRepository{db: db, dialect: d}
}

func scanResponse(row interface{ Scan(...interface{}) error }) (models.Response, error) {
	var (
		resp      models.Response
		estimated sql.NullInt64
		updated   sql.NullTime
	)
	if err := row.Scan(&resp.ID, &resp.RequestID, &resp.ProviderID, &resp.Price, &resp.Message,
		&estimated, &resp.Status, &resp.CreatedAt, &updated); err != nil {
		return models.Response{}, err
	}
	if estimated.Valid {
		v := int(estimated.Int64)
		resp.EstimatedTime = &v
	}
	resp.UpdatedAt = nullTimePtr(updated)
	return resp, nil
}

// CreateTx inserts a pending bid. A second bid by the same provider on the
// same request fails with ErrConflict.
func (r *ResponseRepository) CreateTx(ctx context.Context, tx *sql.Tx, resp models.Response) (models.Response, error) {
	resp.Status = models.ResponseStatusPending
	resp.CreatedAt = time.Now().UTC()
	id, err := r.dialect.insert(ctx, tx, `INSERT INTO responses
		(request_id, provider_id, price, message, estimated_time, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		resp.RequestID, resp.ProviderID, resp.Price, resp.Message, resp.EstimatedTime, resp.Status, resp.CreatedAt)
	if isDuplicate(err) {
		return models.Response{}, fmt.Errorf("%w: provider %d already responded to request %d", models.ErrConflict, resp.ProviderID, resp.RequestID)
	}
	if err != nil {
		return models.Response{}, err
	}
	resp.ID = id
	return resp, nil
}

// GetByID returns a single bid.
func (r *ResponseRepository) GetByID(ctx context.Context, id int64) (models.Response, error) {
	resp, err := scanResponse(r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+responseColumns+` FROM responses WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Response{}, models.ErrNoRecord
	}
	return resp, err
}

// ExistsTx reports whether the provider already bid on the request.
func (r *ResponseRepository) ExistsTx(ctx context.Context, tx *sql.Tx, requestID, providerID int64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*) FROM responses WHERE request_id = ? AND provider_id = ?`),
		requestID, providerID).Scan(&n)
	return n > 0, err
}

// HasResponded reports whether the provider bid on the request.
func (r *ResponseRepository) HasResponded(ctx context.Context, requestID, providerID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*) FROM responses WHERE request_id = ? AND provider_id = ?`),
		requestID, providerID).Scan(&n)
	return n > 0, err
}

// ListByRequest returns bids on a request, oldest first. A non-zero
// providerID restricts the list to that provider's bid.
func (r *ResponseRepository) ListByRequest(ctx context.Context, requestID, providerID int64) ([]models.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM responses WHERE request_id = ?`
	args := []interface{}{requestID}
	if providerID != 0 {
		query += ` AND provider_id = ?`
		args = append(args, providerID)
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query+` ORDER BY id ASC`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Response{}
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, resp)
	}
	return list, rows.Err()
}

// AcceptTx marks a pending bid accepted. sql.ErrNoRows means the bid was no longer pending.
func (r *ResponseRepository) AcceptTx(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	rows, err := r.dialect.exec(ctx, tx, `UPDATE responses SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.ResponseStatusAccepted, at, id, models.ResponseStatusPending)
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RejectOthersTx rejects every pending bid on the request except the winner.
func (r *ResponseRepository) RejectOthersTx(ctx context.Context, tx *sql.Tx, requestID, winnerID int64, at time.Time) (int64, error) {
	return r.dialect.exec(ctx, tx, `UPDATE responses SET status = ?, updated_at = ? WHERE request_id = ? AND id <> ? AND status = ?`,
		models.ResponseStatusRejected, at, requestID, winnerID, models.ResponseStatusPending)
}

// CancelPendingTx cancels every pending bid on the request.
func (r *ResponseRepository) CancelPendingTx(ctx context.Context, tx *sql.Tx, requestID int64, at time.Time) (int64, error) {
	return r.dialect.exec(ctx, tx, `UPDATE responses SET status = ?, updated_at = ? WHERE request_id = ? AND status = ?`,
		models.ResponseStatusCancelled, at, requestID, models.ResponseStatusPending)
}

// CountByProvider returns the total and accepted number of bids a provider made.
func (r *ResponseRepository) CountByProvider(ctx context.Context, providerID int64) (total, accepted int, err error) {
	err = r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM responses WHERE provider_id = ?`), models.ResponseStatusAccepted, providerID).Scan(&total, &accepted)
	return total, accepted, err
}
