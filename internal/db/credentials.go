package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ListCredentials returns every Maharashtra portal login, ordered by id
func (db *DB) ListCredentials(ctx context.Context) ([]Credential, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, COALESCE(login_name, ''), COALESCE(password, '')
		 FROM mh_website_credentials
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.ID, &c.LoginName, &c.Password); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, c.normalized())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credentials: %w", err)
	}
	return creds, nil
}

// GetCredential retrieves one login by id. Returns nil if not found.
func (db *DB) GetCredential(ctx context.Context, id int64) (*Credential, error) {
	var c Credential
	err := db.pool.QueryRow(ctx,
		`SELECT id, COALESCE(login_name, ''), COALESCE(password, '')
		 FROM mh_website_credentials WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.LoginName, &c.Password)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get credential %d: %w", id, err)
	}
	c = c.normalized()
	return &c, nil
}

// ListIVRSNumbers returns every Madhya Pradesh IVRS number, ordered by id.
// Blank entries are dropped.
func (db *DB) ListIVRSNumbers(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT ivrs_no FROM mp_website_credentials ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list IVRS numbers: %w", err)
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var n *string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan IVRS number: %w", err)
		}
		if n != nil && strings.TrimSpace(*n) != "" {
			numbers = append(numbers, strings.TrimSpace(*n))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate IVRS numbers: %w", err)
	}
	return numbers, nil
}
