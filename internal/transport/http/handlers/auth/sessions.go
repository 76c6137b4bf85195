package authhandler

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payhub/internal/transport/http/middleware"
)

// Sessions resolves bearer tokens against the sessions table. The row is the
// source of truth, so revocation takes effect on the next request even while
// the JWT is still within its lifetime.
type Sessions struct {
	DB *pgxpool.Pool
}

func NewSessions(db *pgxpool.Pool) *Sessions {
	return &Sessions{DB: db}
}

func (s *Sessions) Lookup(ctx context.Context, tokenHash string) (middleware.SessionInfo, bool, error) {
	var info middleware.SessionInfo
	err := s.DB.QueryRow(ctx, `
    SELECT u.id, COALESCE(u.company_id::text, ''), u.role, COALESCE(u.impersonate_company_id::text, '')
    FROM sessions s
    JOIN users u ON u.id = s.user_id
    WHERE s.token_hash = $1 AND s.expires_at > now() AND s.revoked_at IS NULL AND u.status = 'ACTIVE'
  `, tokenHash).Scan(&info.UserID, &info.CompanyID, &info.Role, &info.ImpersonateCompany)
	if errors.Is(err, pgx.ErrNoRows) {
		return middleware.SessionInfo{}, false, nil
	}
	if err != nil {
		return middleware.SessionInfo{}, false, err
	}
	return info, true, nil
}
