package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type columnTypes struct {
	id       string
	datetime string
	money    string
}

func (d Dialect) columnTypes() columnTypes {
	switch d {
	case Postgres:
		return columnTypes{id: "BIGSERIAL PRIMARY KEY", datetime: "TIMESTAMPTZ", money: "DOUBLE PRECISION"}
	case SQLite:
		return columnTypes{id: "INTEGER PRIMARY KEY AUTOINCREMENT", datetime: "DATETIME", money: "REAL"}
	default:
		return columnTypes{id: "BIGINT AUTO_INCREMENT PRIMARY KEY", datetime: "DATETIME(6)", money: "DOUBLE"}
	}
}

// Schema returns the DDL statements for the brokering tables. The users table
// belongs to the authentication service; it is created here only when absent
// so single-node deployments and tests have somewhere to keep counters.
func (d Dialect) Schema() []string {
	ct := d.columnTypes()
	r := strings.NewReplacer("{id}", ct.id, "{datetime}", ct.datetime, "{money}", ct.money)

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			role VARCHAR(20) NOT NULL DEFAULT 'client',
			completed_orders INT NOT NULL DEFAULT 0,
			last_seen_at {datetime} NULL
		)`,
		`CREATE TABLE IF NOT EXISTS requests (
			id {id},
			client_id BIGINT NOT NULL,
			title VARCHAR(200) NOT NULL,
			description TEXT NOT NULL,
			type VARCHAR(32) NOT NULL,
			brand VARCHAR(100) NULL,
			model VARCHAR(100) NULL,
			photos TEXT NULL,
			address VARCHAR(255) NOT NULL,
			district VARCHAR(100) NOT NULL,
			budget {money} NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'new',
			selected_provider_id BIGINT NULL,
			selected_at {datetime} NULL,
			completed_at {datetime} NULL,
			created_at {datetime} NOT NULL,
			updated_at {datetime} NOT NULL,
			deleted_at {datetime} NULL
		)`,
		`CREATE TABLE IF NOT EXISTS responses (
			id {id},
			request_id BIGINT NOT NULL REFERENCES requests(id),
			provider_id BIGINT NOT NULL,
			price {money} NOT NULL,
			message VARCHAR(500) NOT NULL,
			estimated_time INT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at {datetime} NOT NULL,
			updated_at {datetime} NULL,
			UNIQUE (provider_id, request_id)
		)`,
		`CREATE TABLE IF NOT EXISTS chats (
			id {id},
			request_id BIGINT NOT NULL REFERENCES requests(id),
			client_id BIGINT NOT NULL,
			provider_id BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			last_message_at {datetime} NULL,
			created_at {datetime} NOT NULL,
			updated_at {datetime} NOT NULL,
			UNIQUE (request_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id {id},
			chat_id BIGINT NOT NULL REFERENCES chats(id),
			sender_id BIGINT NULL,
			is_system BOOLEAN NOT NULL DEFAULT FALSE,
			text TEXT NULL,
			image_ref VARCHAR(255) NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			read_at {datetime} NULL,
			created_at {datetime} NOT NULL` + d.messagesInlineIndex() + `
		)`,
		`CREATE TABLE IF NOT EXISTS notify_tokens (
			user_id BIGINT NOT NULL,
			token VARCHAR(255) NOT NULL,
			created_at {datetime} NOT NULL,
			UNIQUE (user_id, token)
		)`,
	}
	if d != MySQL {
		stmts = append(stmts,
			`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages (chat_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_requests_status ON requests (status)`,
		)
	}

	for i := range stmts {
		stmts[i] = r.Replace(stmts[i])
	}
	return stmts
}

func (d Dialect) messagesInlineIndex() string {
	if d == MySQL {
		return ",\n\t\t\tINDEX idx_messages_chat_created (chat_id, created_at)"
	}
	return ""
}

// Migrate creates any missing tables.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range d.Schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
