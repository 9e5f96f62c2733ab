package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"masterok/internal/models"
)

const chatColumns = `id, request_id, client_id, provider_id, status, last_message_at, created_at, updated_at`

// ChatRepository stores the per-request chats.
type ChatRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewChatRepository constructs a ChatRepository.
func NewChatRepository(db *sql.DB, d Dialect) *ChatRepository {
	return &ChatRepository{db: db, dialect: d}
}

func scanChat(row interface{ Scan(...interface{}) error }) (models.Chat, error) {
	var (
		chat models.Chat
		last sql.NullTime
	)
	if err := row.Scan(&chat.ID, &chat.RequestID, &chat.ClientID, &chat.ProviderID, &chat.Status,
		&last, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
		return models.Chat{}, err
	}
	chat.LastMessageAt = nullTimePtr(last)
	return chat, nil
}

// CreateTx inserts an active chat. The unique index on request_id turns a
// second chat for the same request into ErrConflict.
func (r *ChatRepository) CreateTx(ctx context.Context, tx *sql.Tx, chat models.Chat) (models.Chat, error) {
	now := time.Now().UTC()
	chat.Status = models.ChatStatusActive
	chat.CreatedAt, chat.UpdatedAt = now, now
	id, err := r.dialect.insert(ctx, tx, `INSERT INTO chats
		(request_id, client_id, provider_id, status, last_message_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		chat.RequestID, chat.ClientID, chat.ProviderID, chat.Status, chat.LastMessageAt, now, now)
	if isDuplicate(err) {
		return models.Chat{}, fmt.Errorf("%w: chat for request %d already exists", models.ErrConflict, chat.RequestID)
	}
	if err != nil {
		return models.Chat{}, err
	}
	chat.ID = id
	return chat, nil
}

// GetByID returns a chat.
func (r *ChatRepository) GetByID(ctx context.Context, id int64) (models.Chat, error) {
	return r.getOne(ctx, r.db, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id)
}

// GetForUpdateTx reads the chat inside tx and holds its row lock until tx ends.
func (r *ChatRepository) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id int64) (models.Chat, error) {
	return r.getOne(ctx, tx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`+r.dialect.ForUpdate(), id)
}

func (r *ChatRepository) getOne(ctx context.Context, q querier, query string, args ...interface{}) (models.Chat, error) {
	chat, err := scanChat(q.QueryRowContext(ctx, r.dialect.Rebind(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, models.ErrNoRecord
	}
	return chat, err
}

// ListForUser returns the user's chats with the number of messages the user
// has not read, most recently active first. An empty status lists all chats.
func (r *ChatRepository) ListForUser(ctx context.Context, userID int64, status string) ([]models.ChatSummary, error) {
	query := `SELECT ` + prefixed("c.", chatColumns) + `,
		(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id AND m.is_read = ?
			AND m.sender_id <> ?) AS unread
		FROM chats c WHERE (c.client_id = ? OR c.provider_id = ?)`
	args := []interface{}{false, userID, userID, userID}
	if status != "" {
		query += ` AND c.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY CASE WHEN c.last_message_at IS NULL THEN 1 ELSE 0 END, c.last_message_at DESC, c.id DESC`

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.ChatSummary{}
	for rows.Next() {
		var (
			s    models.ChatSummary
			last sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.RequestID, &s.ClientID, &s.ProviderID, &s.Status, &last,
			&s.CreatedAt, &s.UpdatedAt, &s.UnreadCount); err != nil {
			return nil, err
		}
		s.LastMessageAt = nullTimePtr(last)
		list = append(list, s)
	}
	return list, rows.Err()
}

// TouchTx records the time of the latest message.
func (r *ChatRepository) TouchTx(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	_, err := r.dialect.exec(ctx, tx, `UPDATE chats SET last_message_at = ?, updated_at = ? WHERE id = ?`, at, at, id)
	return err
}

// Close marks an active chat closed. It reports false when the chat was already closed.
func (r *ChatRepository) Close(ctx context.Context, id int64) (bool, error) {
	rows, err := r.dialect.exec(ctx, r.db, `UPDATE chats SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.ChatStatusClosed, time.Now().UTC(), id, models.ChatStatusActive)
	return rows > 0, err
}

// prefixed qualifies a column list with a table alias.
func prefixed(prefix, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = prefix + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
