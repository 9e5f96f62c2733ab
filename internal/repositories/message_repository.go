package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"masterok/internal/models"
)

const messageColumns = `id, chat_id, sender_id, is_system, text, image_ref, is_read, read_at, created_at`

// MessageRepository stores chat messages.
type MessageRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewMessageRepository constructs a MessageRepository.
func NewMessageRepository(db *sql.DB, d Dialect) *MessageRepository {
	return &MessageRepository{db: db, dialect: d}
}

func scanMessage(row interface{ Scan(...interface{}) error }) (models.Message, error) {
	var (
		msg    models.Message
		sender sql.NullInt64
		text   sql.NullString
		image  sql.NullString
		readAt sql.NullTime
	)
	if err := row.Scan(&msg.ID, &msg.ChatID, &sender, &msg.System, &text, &image, &msg.IsRead, &readAt, &msg.CreatedAt); err != nil {
		return models.Message{}, err
	}
	msg.SenderID = nullInt64Ptr(sender)
	msg.Text = nullStringPtr(text)
	msg.ImageRef = nullStringPtr(image)
	msg.ReadAt = nullTimePtr(readAt)
	return msg, nil
}

// InsertTx appends an unread message to a chat.
func (r *MessageRepository) InsertTx(ctx context.Context, tx *sql.Tx, msg models.Message) (models.Message, error) {
	msg.IsRead = false
	msg.ReadAt = nil
	id, err := r.dialect.insert(ctx, tx, `INSERT INTO messages (chat_id, sender_id, is_system, text, image_ref, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, msg.ChatID, msg.SenderID, msg.System, msg.Text, msg.ImageRef, false, msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}
	msg.ID = id
	return msg, nil
}

// GetByID returns a message of the given chat.
func (r *MessageRepository) GetByID(ctx context.Context, chatID, id int64) (models.Message, error) {
	msg, err := scanMessage(r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+messageColumns+
		` FROM messages WHERE id = ? AND chat_id = ?`), id, chatID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, models.ErrNoRecord
	}
	return msg, err
}

// ListByChat returns a page of messages in insertion order.
func (r *MessageRepository) ListByChat(ctx context.Context, chatID int64, page, pageSize int) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`SELECT `+messageColumns+
		` FROM messages WHERE chat_id = ? ORDER BY id ASC LIMIT ? OFFSET ?`), chatID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, msg)
	}
	return list, rows.Err()
}

// Last returns the newest message of a chat.
func (r *MessageRepository) Last(ctx context.Context, chatID int64) (models.Message, error) {
	msg, err := scanMessage(r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+messageColumns+
		` FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT 1`), chatID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, models.ErrNoRecord
	}
	return msg, err
}

// MarkRead marks every message not sent by reader as read and returns how
// many rows changed.
func (r *MessageRepository) MarkRead(ctx context.Context, chatID, readerID int64, at time.Time) (int64, error) {
	return r.dialect.exec(ctx, r.db, `UPDATE messages SET is_read = ?, read_at = ?
		WHERE chat_id = ? AND is_read = ? AND sender_id <> ?`,
		true, at, chatID, false, readerID)
}

// UnreadCount counts messages in a chat the viewer has not read.
func (r *MessageRepository) UnreadCount(ctx context.Context, chatID, viewerID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*) FROM messages
		WHERE chat_id = ? AND is_read = ? AND sender_id <> ?`),
		chatID, false, viewerID).Scan(&n)
	return n, err
}

// UnreadCountTx is UnreadCount inside a transaction.
func (r *MessageRepository) UnreadCountTx(ctx context.Context, tx *sql.Tx, chatID, viewerID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*) FROM messages
		WHERE chat_id = ? AND is_read = ? AND sender_id <> ?`),
		chatID, false, viewerID).Scan(&n)
	return n, err
}

// TotalUnread counts unread messages across every chat the user takes part in.
func (r *MessageRepository) TotalUnread(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*) FROM messages m
		JOIN chats c ON c.id = m.chat_id
		WHERE (c.client_id = ? OR c.provider_id = ?) AND m.is_read = ?
			AND m.sender_id <> ?`),
		userID, userID, false, userID).Scan(&n)
	return n, err
}

// Delete removes a message written by senderID. System messages are never
// removed. It reports false when no such message exists.
func (r *MessageRepository) Delete(ctx context.Context, chatID, id, senderID int64) (bool, error) {
	rows, err := r.dialect.exec(ctx, r.db, `DELETE FROM messages WHERE id = ? AND chat_id = ? AND sender_id = ? AND is_system = ?`,
		id, chatID, senderID, false)
	return rows > 0, err
}
