package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mirzafarangi/hrvbrain/internal/model"
)

// CreateUser inserts a user with a pre-hashed API key.
func (db *DB) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, role, api_key_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		u.ID, u.Email, u.Role, u.APIKeyHash,
	).Scan(&u.CreatedAt)
	if err != nil {
		return model.User{}, fmt.Errorf("storage: create user: %w", err)
	}
	return u, nil
}

// UpsertAdminUser creates the admin user or rotates its API key hash if the
// email already exists. Returns the stored user either way.
func (db *DB) UpsertAdminUser(ctx context.Context, email, apiKeyHash string) (model.User, error) {
	u := model.User{Email: email, Role: "admin", APIKeyHash: apiKeyHash}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, role, api_key_hash)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE SET api_key_hash = EXCLUDED.api_key_hash
		 RETURNING id, created_at`,
		uuid.New(), u.Email, u.Role, u.APIKeyHash,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return model.User{}, fmt.Errorf("storage: upsert admin user: %w", err)
	}
	return u, nil
}

// GetUser retrieves a user by ID.
func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	var u model.User
	err := db.pool.QueryRow(ctx,
		`SELECT id, email, role, api_key_hash, created_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Role, &u.APIKeyHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: get user %s: %w", id, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: get user: %w", err)
	}
	return u, nil
}
