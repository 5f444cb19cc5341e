package db

import (
	"database/sql"
	"fmt"
	"log"
)

// Schema statements are idempotent so the service can run them on every
// start. The partial unique index enforces at most one non-cancelled
// enrollment per (user, event); capacity lives on the event row and is only
// ever changed by conditional updates.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		cedula TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		phone TEXT,
		role TEXT NOT NULL DEFAULT 'VISITANTE',
		password_hash TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		venue TEXT NOT NULL DEFAULT '',
		start_date DATE NOT NULL,
		end_date DATE NOT NULL CHECK (end_date >= start_date),
		capacity INT NOT NULL CHECK (capacity >= 0),
		initial_capacity INT NOT NULL,
		has_cost TEXT NOT NULL DEFAULT 'NO',
		state TEXT NOT NULL DEFAULT 'DRAFT',
		admin_id UUID NOT NULL REFERENCES users(id),
		banner_url TEXT,
		programming_url TEXT,
		technical_info_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		id UUID PRIMARY KEY,
		event_id BIGINT NOT NULL REFERENCES events(id),
		user_id UUID NOT NULL REFERENCES users(id),
		track TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'Preinscrito',
		document_url TEXT,
		access_key TEXT,
		qr_ref TEXT,
		justification TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS enrollments_active_unique
		ON enrollments (user_id, event_id)
		WHERE state <> 'Cancelado'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS enrollments_access_key_unique
		ON enrollments (event_id, access_key)
		WHERE access_key IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS invitations (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL,
		token TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		expires_on TIMESTAMPTZ NOT NULL,
		usage_limit INT NOT NULL DEFAULT 1,
		used BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS email_outbox (
		enrollment_id UUID NOT NULL,
		template TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		last_error TEXT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (enrollment_id, template)
	)`,
}

// Migrate applies the schema.
func Migrate(conn *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	log.Println("Database schema is up to date")
	return nil
}
