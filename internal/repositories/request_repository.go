package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"masterok/internal/fsm"
	"masterok/internal/models"
)

const requestColumns = `id, client_id, title, description, type, brand, model, photos, address, district,
	budget, status, selected_provider_id, selected_at, completed_at, created_at, updated_at`

// RequestRepository stores repair requests.
type RequestRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewRequestRepository constructs a RequestRepository.
func NewRequestRepository(db *sql.DB, d Dialect) *RequestRepository {
	return &RequestRepository{db: db, dialect: d}
}

func scanRequest(row interface{ Scan(...interface{}) error }) (models.Request, error) {
	var (
		req        models.Request
		brand      sql.NullString
		model      sql.NullString
		photos     sql.NullString
		budget     sql.NullFloat64
		selected   sql.NullInt64
		selectedAt sql.NullTime
		completed  sql.NullTime
	)
	err := row.Scan(&req.ID, &req.ClientID, &req.Title, &req.Description, &req.Type, &brand, &model, &photos,
		&req.Address, &req.District, &budget, &req.Status, &selected, &selectedAt, &completed,
		&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return models.Request{}, err
	}
	req.Brand = nullStringPtr(brand)
	req.Model = nullStringPtr(model)
	if budget.Valid {
		b := budget.Float64
		req.Budget = &b
	}
	req.SelectedProviderID = nullInt64Ptr(selected)
	req.SelectedAt = nullTimePtr(selectedAt)
	req.CompletedAt = nullTimePtr(completed)
	req.Photos = []string{}
	if photos.Valid && photos.String != "" {
		if err := json.Unmarshal([]byte(photos.String), &req.Photos); err != nil {
			return models.Request{}, fmt.Errorf("decode photos: %w", err)
		}
	}
	return req, nil
}

func encodePhotos(photos []string) (string, error) {
	if photos == nil {
		photos = []string{}
	}
	b, err := json.Marshal(photos)
	return string(b), err
}

// Create inserts a new request in status new.
func (r *RequestRepository) Create(ctx context.Context, req models.Request) (models.Request, error) {
	photos, err := encodePhotos(req.Photos)
	if err != nil {
		return models.Request{}, err
	}
	now := time.Now().UTC()
	req.Status = models.RequestStatusNew
	req.CreatedAt, req.UpdatedAt = now, now
	id, err := r.dialect.insert(ctx, r.db, `INSERT INTO requests
		(client_id, title, description, type, brand, model, photos, address, district, budget, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ClientID, req.Title, req.Description, req.Type, req.Brand, req.Model, photos,
		req.Address, req.District, req.Budget, req.Status, now, now)
	if err != nil {
		return models.Request{}, err
	}
	req.ID = id
	if req.Photos == nil {
		req.Photos = []string{}
	}
	return req, nil
}

// GetByID returns a live (not soft-deleted) request.
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (models.Request, error) {
	return r.get(ctx, r.db, id, false)
}

// GetForUpdateTx reads the request inside tx and holds its row lock until tx ends.
func (r *RequestRepository) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id int64) (models.Request, error) {
	return r.get(ctx, tx, id, true)
}

func (r *RequestRepository) get(ctx context.Context, q querier, id int64, lock bool) (models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = ? AND deleted_at IS NULL`
	if lock {
		query += r.dialect.ForUpdate()
	}
	req, err := scanRequest(q.QueryRowContext(ctx, r.dialect.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Request{}, models.ErrNoRecord
	}
	return req, err
}

// List returns one page of requests matching f and the total number of matches.
func (r *RequestRepository) List(ctx context.Context, f models.RequestFilter) ([]models.Request, int, error) {
	where := []string{"deleted_at IS NULL"}
	var args []interface{}
	if f.ClientID != 0 {
		where = append(where, "client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.OpenForProviderID != 0 {
		in, inArgs := inClause([]string{models.RequestStatusNew, models.RequestStatusSearching})
		where = append(where, "status IN "+in,
			"NOT EXISTS (SELECT 1 FROM responses rs WHERE rs.request_id = requests.id AND rs.provider_id = ?)")
		args = append(args, inArgs...)
		args = append(args, f.OpenForProviderID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.District != "" {
		where = append(where, "district = ?")
		args = append(args, f.District)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.MinBudget != nil {
		where = append(where, "budget >= ?")
		args = append(args, *f.MinBudget)
	}
	if f.MaxBudget != nil {
		where = append(where, "budget <= ?")
		args = append(args, *f.MaxBudget)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*) FROM requests WHERE `+cond), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortCol := "created_at"
	if f.Sort == "budget" {
		sortCol = "budget"
	}
	order := "DESC"
	if strings.EqualFold(f.Order, "asc") {
		order = "ASC"
	}
	query := `SELECT ` + requestColumns + ` FROM requests WHERE ` + cond +
		` ORDER BY ` + sortCol + ` ` + order + `, id ` + order + ` LIMIT ? OFFSET ?`
	pageArgs := append(append([]interface{}{}, args...), f.PerPage, (f.Page-1)*f.PerPage)

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []models.Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, req)
	}
	return list, total, rows.Err()
}

// Update persists the editable fields while the request is still open.
// sql.ErrNoRows means the request left the open states.
func (r *RequestRepository) Update(ctx context.Context, req models.Request) (models.Request, error) {
	photos, err := encodePhotos(req.Photos)
	if err != nil {
		return models.Request{}, err
	}
	in, inArgs := inClause([]string{models.RequestStatusNew, models.RequestStatusSearching})
	req.UpdatedAt = time.Now().UTC()
	args := []interface{}{req.Title, req.Description, req.Type, req.Brand, req.Model, photos, req.Address,
		req.District, req.Budget, req.UpdatedAt, req.ID}
	args = append(args, inArgs...)
	rows, err := r.dialect.exec(ctx, r.db, `UPDATE requests SET title = ?, description = ?, type = ?, brand = ?,
		model = ?, photos = ?, address = ?, district = ?, budget = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL AND status IN `+in, args...)
	if err != nil {
		return models.Request{}, err
	}
	if rows == 0 {
		return models.Request{}, sql.ErrNoRows
	}
	return req, nil
}

// updateStatusCAS moves the request to toStatus when its current status is
// one the state machine allows as a source. sql.ErrNoRows means another
// writer changed the status first.
func (r *RequestRepository) updateStatusCAS(ctx context.Context, q querier, id int64, toStatus, extra string, extraArgs ...interface{}) error {
	sources := fsm.Sources(toStatus)
	if len(sources) == 0 {
		return fmt.Errorf("%w: nothing transitions to %s", models.ErrInvalidState, toStatus)
	}
	in, inArgs := inClause(sources)
	args := append([]interface{}{toStatus, time.Now().UTC()}, extraArgs...)
	args = append(args, id)
	args = append(args, inArgs...)
	rows, err := r.dialect.exec(ctx, q, `UPDATE requests SET status = ?, updated_at = ?`+extra+
		` WHERE id = ? AND deleted_at IS NULL AND status IN `+in, args...)
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkSearchingTx moves a new request to searching. It is a no-op for any other status.
func (r *RequestRepository) MarkSearchingTx(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := r.dialect.exec(ctx, tx, `UPDATE requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.RequestStatusSearching, time.Now().UTC(), id, models.RequestStatusNew)
	return err
}

// SelectTx records the winning provider and moves the request to in_progress.
func (r *RequestRepository) SelectTx(ctx context.Context, tx *sql.Tx, id, providerID int64, at time.Time) error {
	return r.updateStatusCAS(ctx, tx, id, models.RequestStatusInProgress,
		", selected_provider_id = ?, selected_at = ?", providerID, at)
}

// CancelTx moves an open request to cancelled.
func (r *RequestRepository) CancelTx(ctx context.Context, tx *sql.Tx, id int64) error {
	return r.updateStatusCAS(ctx, tx, id, models.RequestStatusCancelled, "")
}

// CompleteTx moves an in_progress request to completed.
func (r *RequestRepository) CompleteTx(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	return r.updateStatusCAS(ctx, tx, id, models.RequestStatusCompleted, ", completed_at = ?", at)
}

// SoftDeleteTx hides the request. In-progress requests cannot be deleted.
func (r *RequestRepository) SoftDeleteTx(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	rows, err := r.dialect.exec(ctx, tx, `UPDATE requests SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL AND status <> ?`, at, at, id, models.RequestStatusInProgress)
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountByStatus returns the live requests of a client grouped by status.
func (r *RequestRepository) CountByStatus(ctx context.Context, clientID int64) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`SELECT status, COUNT(*) FROM requests
		WHERE client_id = ? AND deleted_at IS NULL GROUP BY status`), clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// CountActiveForProvider counts in_progress requests assigned to the provider.
func (r *RequestRepository) CountActiveForProvider(ctx context.Context, providerID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*) FROM requests
		WHERE selected_provider_id = ? AND status = ? AND deleted_at IS NULL`),
		providerID, models.RequestStatusInProgress).Scan(&n)
	return n, err
}
