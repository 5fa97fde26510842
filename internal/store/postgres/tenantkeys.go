package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/parley-ai/parley/internal/store"
)

// PutTenantKey implements [store.TenantKeyStore]. The ciphertext is opaque
// here; encryption and decryption live in the vault package.
func (s *Store) PutTenantKey(ctx context.Context, tenantID, provider string, ciphertext []byte) error {
	const q = `
		INSERT INTO tenant_keys (tenant_id, provider, ciphertext, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id, provider) DO UPDATE
		SET ciphertext = EXCLUDED.ciphertext,
		    updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, tenantID, provider, ciphertext); err != nil {
		return fmt.Errorf("tenant key store: put: %w", err)
	}
	return nil
}

// GetTenantKey implements [store.TenantKeyStore].
func (s *Store) GetTenantKey(ctx context.Context, tenantID, provider string) ([]byte, error) {
	const q = `
		SELECT ciphertext
		FROM   tenant_keys
		WHERE  tenant_id = $1 AND provider = $2`

	var ciphertext []byte
	err := s.pool.QueryRow(ctx, q, tenantID, provider).Scan(&ciphertext)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenant key store: get: %w", err)
	}
	return ciphertext, nil
}
