package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"phone-auth-service/internal/domain"
)

type UserRepo struct {
	db *pgxpool.Pool
}

func NewUserRepo(db *pgxpool.Pool) *UserRepo {
	return &UserRepo{db: db}
}

// FindOrCreateByPhone returns the identity for a verified phone number,
// creating it with the given role on first sight. Existing users keep
// their stored role; the hint only applies at creation.
func (r *UserRepo) FindOrCreateByPhone(ctx context.Context, phone, role string) (*domain.User, error) {
	if role == "" {
		role = domain.RoleCustomer
	}

	var u domain.User
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (phone, role)
		VALUES ($1, $2)
		ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id, phone, name, role, created_at
	`, phone, role).Scan(&u.ID, &u.Phone, &u.Name, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("find or create user: %w", err)
	}
	return &u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx, `
		SELECT id, phone, name, role, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Phone, &u.Name, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
