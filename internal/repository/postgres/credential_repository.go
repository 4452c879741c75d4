package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"train-console/internal/domain"
)

// Schema creates the credential table. One row per console profile.
const Schema = `
	CREATE TABLE IF NOT EXISTS console_sessions (
		profile VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		username VARCHAR(150) NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		token TEXT NOT NULL,
		token_expiry TIMESTAMPTZ NOT NULL,
		admin_api_key TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (NOT is_admin OR admin_api_key <> '')
	)
`

// DefaultProfile is used when the console does not name one
const DefaultProfile = "default"

// EnsureSchema creates the credential table when missing
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create console_sessions: %w", err)
	}
	return nil
}

// CredentialRepository stores the console session record in PostgreSQL.
// Save is a single upsert so token, user and admin key change together.
type CredentialRepository struct {
	db        *sql.DB
	profile   string
	loadStmt  *sql.Stmt
	saveStmt  *sql.Stmt
	clearStmt *sql.Stmt
}

// NewCredentialRepository creates a CredentialRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewCredentialRepository(db *sql.DB, profile string) (*CredentialRepository, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	repo := &CredentialRepository{db: db, profile: profile}

	var err error
	repo.loadStmt, err = db.Prepare(`
		SELECT user_id, username, is_admin, token, token_expiry, admin_api_key
		FROM console_sessions
		WHERE profile = $1
	`)
	if IsUndefinedTable(err) {
		return nil, fmt.Errorf("console_sessions is missing, run EnsureSchema first: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to prepare load statement: %w", err)
	}

	repo.saveStmt, err = db.Prepare(`
		INSERT INTO console_sessions (profile, user_id, username, is_admin, token, token_expiry, admin_api_key, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (profile) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			username = EXCLUDED.username,
			is_admin = EXCLUDED.is_admin,
			token = EXCLUDED.token,
			token_expiry = EXCLUDED.token_expiry,
			admin_api_key = EXCLUDED.admin_api_key,
			updated_at = NOW()
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare save statement: %w", err)
	}

	repo.clearStmt, err = db.Prepare(`DELETE FROM console_sessions WHERE profile = $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare clear statement: %w", err)
	}

	return repo, nil
}

func (r *CredentialRepository) Load(ctx context.Context) (*domain.Session, error) {
	session := &domain.Session{}
	err := r.loadStmt.QueryRowContext(ctx, r.profile).Scan(
		&session.UserID,
		&session.Username,
		&session.IsAdmin,
		&session.Token,
		&session.TokenExpiry,
		&session.AdminAPIKey,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

func (r *CredentialRepository) Save(ctx context.Context, session *domain.Session) error {
	_, err := r.saveStmt.ExecContext(ctx,
		r.profile,
		session.UserID,
		session.Username,
		session.IsAdmin,
		session.Token,
		session.TokenExpiry,
		session.AdminAPIKey,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Clear(ctx context.Context) error {
	if _, err := r.clearStmt.ExecContext(ctx, r.profile); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Close releases the prepared statements
func (r *CredentialRepository) Close() error {
	return errors.Join(
		r.loadStmt.Close(),
		r.saveStmt.Close(),
		r.clearStmt.Close(),
	)
}
