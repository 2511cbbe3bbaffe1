package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PreferencesSchema creates the table used by MySQLPreferenceRepository.
const PreferencesSchema = `
CREATE TABLE IF NOT EXISTS panel_preferences (
	owner      VARCHAR(255) NOT NULL,
	name       VARCHAR(64)  NOT NULL,
	value      VARCHAR(255) NOT NULL,
	version    INT          NOT NULL DEFAULT 0,
	updated_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (owner, name)
)`

// MySQLPreferenceRepository stores preferences that outlive a tab session.
type MySQLPreferenceRepository struct {
	db *sql.DB
}

func NewMySQLPreferenceRepository(db *sql.DB) *MySQLPreferenceRepository {
	return &MySQLPreferenceRepository{db: db}
}

func (m *MySQLPreferenceRepository) Migrate(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, PreferencesSchema); err != nil {
		return fmt.Errorf("create panel_preferences: %w", err)
	}
	return nil
}

func (m *MySQLPreferenceRepository) GetPreference(ctx context.Context, owner, key string) (string, bool, error) {
	var value string
	err := m.db.QueryRowContext(ctx, `
		SELECT value FROM panel_preferences WHERE owner = ? AND name = ?`,
		owner, key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query preference: %w", err)
	}

	return value, true, nil
}

func (m *MySQLPreferenceRepository) PutPreference(ctx context.Context, owner, key, value string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO panel_preferences (owner, name, value, version, updated_at)
		VALUES (?, ?, ?, 0, NOW())
		ON DUPLICATE KEY UPDATE value = VALUES(value), version = version + 1, updated_at = NOW()`,
		owner, key, value,
	)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}

	return nil
}
