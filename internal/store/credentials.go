package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/pos"
)

var _ pos.RecordStore = (*Store)(nil)

const credentialColumns = `id, restaurant_id, vendor, merchant_id, access_token, refresh_token, expires_at, last_refresh_error`

func scanCredential(row Row) (*pos.Record, error) {
	var r pos.Record
	if err := row.Scan(&r.ID, &r.RestaurantID, &r.Vendor, &r.MerchantID, &r.AccessToken, &r.RefreshToken,
		&r.ExpiresAt, &r.LastRefreshError); err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveCredential inserts or replaces the restaurant's credentials for the
// record's vendor. Token fields are stored as given; callers encrypt them.
func (s *Store) SaveCredential(ctx context.Context, r *pos.Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := s.now()
	_, err := s.db.Exec(ctx,
		`INSERT INTO pos_credentials (id, restaurant_id, vendor, merchant_id, access_token, refresh_token,
		                              expires_at, last_refresh_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, '', $8, $8)
		 ON CONFLICT (restaurant_id, vendor) DO UPDATE SET
		     merchant_id = excluded.merchant_id,
		     access_token = excluded.access_token,
		     refresh_token = excluded.refresh_token,
		     expires_at = excluded.expires_at,
		     last_refresh_error = '',
		     updated_at = excluded.updated_at`,
		r.ID, r.RestaurantID, r.Vendor, r.MerchantID, r.AccessToken, r.RefreshToken, r.ExpiresAt.UTC(), now)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	// A replaced credential keeps its original id.
	if err := s.db.QueryRow(ctx,
		`SELECT id FROM pos_credentials WHERE restaurant_id = $1 AND vendor = $2`,
		r.RestaurantID, r.Vendor).Scan(&r.ID); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, id string) (*pos.Record, error) {
	r, err := scanCredential(s.db.QueryRow(ctx, `SELECT `+credentialColumns+` FROM pos_credentials WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, catalog.Errorf(catalog.ErrNotFound, "get credential", "credential %q does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return r, nil
}

// UpdateTokens stores a refreshed token pair.
func (s *Store) UpdateTokens(ctx context.Context, id string, access, refresh []byte, expiresAt time.Time) error {
	n, err := s.db.Exec(ctx,
		`UPDATE pos_credentials SET access_token = $1, refresh_token = $2, expires_at = $3,
		     last_refresh_error = '', updated_at = $4
		 WHERE id = $5`,
		access, refresh, expiresAt.UTC(), s.now(), id)
	if err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}
	if n == 0 {
		return catalog.Errorf(catalog.ErrNotFound, "update tokens", "credential %q does not exist", id)
	}
	return nil
}

// RecordRefreshFailure keeps the last refresh error for operators.
func (s *Store) RecordRefreshFailure(ctx context.Context, id, message string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE pos_credentials SET last_refresh_error = $1, updated_at = $2 WHERE id = $3`,
		message, s.now(), id)
	if err != nil {
		return fmt.Errorf("record refresh failure: %w", err)
	}
	return nil
}

// CredentialsExpiringBefore lists credentials that expire before cutoff.
func (s *Store) CredentialsExpiringBefore(ctx context.Context, cutoff time.Time) ([]pos.Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+credentialColumns+` FROM pos_credentials WHERE expires_at < $1 ORDER BY expires_at`,
		cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("list expiring credentials: %w", err)
	}
	defer rows.Close()

	var out []pos.Record
	for rows.Next() {
		r, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
