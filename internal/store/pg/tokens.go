package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"ekklesia.org/internal/auth"
)

type tokenStore Store

func encodeScopes(scopes []string) ([]byte, error) {
	if scopes == nil {
		scopes = []string{}
	}
	data, err := json.Marshal(scopes)
	if err != nil {
		return nil, fmt.Errorf("encode scopes: %w", err)
	}
	return data, nil
}

func decodeScopes(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var scopes []string
	if err := json.Unmarshal(raw, &scopes); err != nil {
		return nil, fmt.Errorf("decode scopes: %w", err)
	}
	if len(scopes) == 0 {
		return nil, nil
	}
	return scopes, nil
}

func (s *tokenStore) CreatePair(ctx context.Context, access *auth.AccessToken, refresh *auth.RefreshToken) error {
	scopes, err := encodeScopes(access.Scopes)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into access_tokens (id, user_id, client_id, scopes, revoked, expires_at)
		values ($1, $2, $3, $4, false, $5)
	`, access.ID, access.UserID, access.ClientID, scopes, access.ExpiresAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into refresh_tokens (id, access_token_id, revoked, expires_at)
		values ($1, $2, false, $3)
	`, refresh.ID, refresh.AccessTokenID, refresh.ExpiresAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *tokenStore) FindAccess(ctx context.Context, id string) (*auth.AccessToken, error) {
	var (
		tok      auth.AccessToken
		rawScope []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, client_id, scopes, revoked, expires_at, created_at
		from access_tokens
		where id = $1
	`, id).Scan(&tok.ID, &tok.UserID, &tok.ClientID, &rawScope, &tok.Revoked, &tok.ExpiresAt, &tok.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if tok.Scopes, err = decodeScopes(rawScope); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *tokenStore) FindRefresh(ctx context.Context, id string) (*auth.RefreshToken, error) {
	var tok auth.RefreshToken
	err := s.db.QueryRowContext(ctx, `
		select id, access_token_id, revoked, expires_at, created_at
		from refresh_tokens
		where id = $1
	`, id).Scan(&tok.ID, &tok.AccessTokenID, &tok.Revoked, &tok.ExpiresAt, &tok.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// Rotate revokes the old pair and persists the new one in a single
// transaction. The conditional update on the refresh row is the race
// arbiter: of two concurrent rotations exactly one sees revoked=false and
// wins; the loser rolls back with ErrInvalidOrRevokedToken and both old
// tokens stay revoked.
func (s *tokenStore) Rotate(ctx context.Context, refreshID string, newAccess *auth.AccessToken, newRefresh *auth.RefreshToken) error {
	scopes, err := encodeScopes(newAccess.Scopes)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var oldAccessID string
	err = tx.QueryRowContext(ctx, `
		update refresh_tokens set revoked = true
		where id = $1 and not revoked
		returning access_token_id
	`, refreshID).Scan(&oldAccessID)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrInvalidOrRevokedToken
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		update access_tokens set revoked = true where id = $1
	`, oldAccessID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into access_tokens (id, user_id, client_id, scopes, revoked, expires_at)
		values ($1, $2, $3, $4, false, $5)
	`, newAccess.ID, newAccess.UserID, newAccess.ClientID, scopes, newAccess.ExpiresAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into refresh_tokens (id, access_token_id, revoked, expires_at)
		values ($1, $2, false, $3)
	`, newRefresh.ID, newRefresh.AccessTokenID, newRefresh.ExpiresAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *tokenStore) Revoke(ctx context.Context, accessID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update access_tokens set revoked = true where id = $1
	`, accessID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		update refresh_tokens set revoked = true where access_token_id = $1
	`, accessID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *tokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		update access_tokens set revoked = true
		where user_id = $1 and not revoked
	`, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		update refresh_tokens set revoked = true
		where access_token_id in (select id from access_tokens where user_id = $1) and not revoked
	`, userID); err != nil {
		return err
	}
	return tx.Commit()
}
