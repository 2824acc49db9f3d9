package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/casecoach/internal/model"
)

// AuthSessionTTL is how long an admin login token stays valid.
const AuthSessionTTL = 24 * time.Hour

// CreateAuthSession issues a login token for userID, valid for AuthSessionTTL from now.
func (s *Store) CreateAuthSession(userID int64, now time.Time) (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	token := hex.EncodeToString(b[:])
	if _, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, now, now.Add(AuthSessionTTL),
	); err != nil {
		return "", fmt.Errorf("insert auth session: %w", err)
	}
	return token, nil
}

// GetAuthSession resolves a token that is still valid at now. Unknown and
// expired tokens yield nil; an expired one is removed.
func (s *Store) GetAuthSession(token string, now time.Time) (*model.AuthSession, error) {
	var as model.AuthSession
	err := s.db.QueryRow(
		`SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = ?`, token,
	).Scan(&as.ID, &as.UserID, &as.CreatedAt, &as.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth session: %w", err)
	}
	if !now.Before(as.ExpiresAt) {
		return nil, s.DeleteAuthSession(token)
	}
	return &as, nil
}

// DeleteAuthSession revokes a login token. Unknown tokens are ignored.
func (s *Store) DeleteAuthSession(token string) error {
	if _, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, token); err != nil {
		return fmt.Errorf("delete auth session: %w", err)
	}
	return nil
}

// PurgeExpiredAuthSessions removes login tokens that expired before now and
// returns how many were removed.
func (s *Store) PurgeExpiredAuthSessions(now time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("purge auth sessions: %w", err)
	}
	return res.RowsAffected()
}
