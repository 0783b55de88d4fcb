package storage

import (
	"context"
	"fmt"

	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, name, password_hash, role, external_id, external_token, websites, created_at, updated_at`

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.ExternalID, &u.SealedExternalTok,
			&u.Websites, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

// Upsert inserts or refreshes a user keyed by email. The password hash is only
// overwritten when the incoming record carries one.
func (s *UserStore) Upsert(ctx context.Context, u *domain.User) error {
	websites := u.Websites
	if websites == nil {
		websites = []string{}
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, role, external_id, external_token, websites)
		VALUES (lower($1), $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			password_hash = CASE WHEN EXCLUDED.password_hash <> '' THEN EXCLUDED.password_hash ELSE users.password_hash END,
			role = EXCLUDED.role,
			external_id = EXCLUDED.external_id,
			external_token = EXCLUDED.external_token,
			websites = EXCLUDED.websites,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		u.Email, u.Name, u.PasswordHash, u.Role, u.ExternalID, u.SealedExternalTok, websites,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert user: %w", mapErr(err))
	}
	return nil
}
