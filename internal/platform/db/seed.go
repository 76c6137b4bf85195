package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"payhub/internal/domain/auth"
	"payhub/internal/platform/config"
)

// Seed provisions the bootstrap SUPER_ADMIN and, when configured, a demo
// company so a fresh install is usable without manual SQL.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if err := ensureSuperAdmin(ctx, pool, cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.SeedCompanyName) != "" {
		if _, err := ensureCompany(ctx, pool, cfg.SeedCompanyName); err != nil {
			return err
		}
	}
	return nil
}

func ensureSuperAdmin(ctx context.Context, pool *pgxpool.Pool, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		email = "admin@payhub.local"
	}
	if password == "" {
		password = "ChangeMe123!"
	}

	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM users WHERE email = $1", email).Scan(&id)
	if err == nil {
		return nil
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `
    INSERT INTO users (email, password_hash, first_name, last_name, role, status, must_change_password)
    VALUES ($1, $2, $3, $4, $5, 'ACTIVE', true)
  `, email, hashed, "Super", "Admin", auth.RoleSuperAdmin)
	return err
}

func ensureCompany(ctx context.Context, pool *pgxpool.Pool, name string) (string, error) {
	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM companies WHERE name = $1", name).Scan(&id)
	if err == nil {
		return id, nil
	}

	err = pool.QueryRow(ctx, `
    INSERT INTO companies (name, currency, period_type, status)
    VALUES ($1, 'XOF', 'MONTHLY', 'ACTIVE')
    RETURNING id
  `, name).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}
