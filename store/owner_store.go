package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sitepulse/api/models"
)

type OwnerStore struct {
	db *sql.DB
}

// NewOwnerStore creates a new OwnerStore instance.
func NewOwnerStore(db *sql.DB) *OwnerStore {
	return &OwnerStore{db: db}
}

// GetOwner returns the users row for id, or models.ErrOwnerNotFound.
func (s *OwnerStore) GetOwner(ctx context.Context, id string) (*models.Owner, error) {
	owner := &models.Owner{}
	query := `
		SELECT id, COALESCE(email, ''), created_at
		FROM users
		WHERE id = $1;
	`
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&owner.ID,
		&owner.Email,
		&owner.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
			return nil, fmt.Errorf("owner %q: %w", id, models.ErrOwnerNotFound)
		}
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}
	return owner, nil
}
