package repository

import (
	"context"
	"database/sql"
	"fmt"

	"bidhub-api/internal/model"
)

// MySQLUserRepository implements UserRepository against the accounts MySQL
// database. This service only reads from it; account management is owned by
// another system.
type MySQLUserRepository struct {
	db *sql.DB
}

// NewMySQLUserRepository creates a new MySQL user repository.
func NewMySQLUserRepository(db *sql.DB) *MySQLUserRepository {
	return &MySQLUserRepository{db: db}
}

// GetDisplayName returns the display name for a user id.
func (r *MySQLUserRepository) GetDisplayName(ctx context.Context, userID string) (string, error) {
	query := `SELECT display_name FROM users WHERE id = ? AND is_active = 1 LIMIT 1`

	var name string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&name)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	return name, nil
}

// Authenticate validates user credentials for token issuance.
func (r *MySQLUserRepository) Authenticate(ctx context.Context, userID, secret string) (*model.User, error) {
	query := `
		SELECT id, display_name, email, is_active
		FROM users
		WHERE id = ? AND api_secret = ? AND is_active = 1
		LIMIT 1`

	var user model.User
	err := r.db.QueryRowContext(ctx, query, userID, secret).Scan(
		&user.ID, &user.DisplayName, &user.Email, &user.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("invalid credentials for user %s", userID)
		}
		return nil, fmt.Errorf("failed to authenticate user: %w", err)
	}
	return &user, nil
}
