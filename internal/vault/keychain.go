package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/parley-ai/parley/internal/store"
)

// defaultCacheSize bounds the number of decrypted keys held in memory.
const defaultCacheSize = 128

// Keychain resolves per-tenant provider API keys: ciphertext comes from a
// [store.TenantKeyStore], decryption goes through a [Vault], and decrypted
// keys are kept in a bounded cache so hot tenants do not pay a store
// round-trip per provider build. Safe for concurrent use.
type Keychain struct {
	vault *Vault
	store store.TenantKeyStore

	mu    sync.Mutex
	cache map[string]string
	order []string // insertion order for eviction
	max   int
}

// NewKeychain creates a Keychain over the given vault and key store.
// maxEntries <= 0 selects the default cache bound.
func NewKeychain(v *Vault, ks store.TenantKeyStore, maxEntries int) *Keychain {
	if maxEntries <= 0 {
		maxEntries = defaultCacheSize
	}
	return &Keychain{
		vault: v,
		store: ks,
		cache: make(map[string]string),
		max:   maxEntries,
	}
}

// Resolve returns the plaintext API key for a tenant/provider pair.
// Missing keys surface as [store.ErrNotFound].
func (k *Keychain) Resolve(ctx context.Context, tenantID, provider string) (string, error) {
	cacheKey := tenantID + "/" + provider

	k.mu.Lock()
	if key, ok := k.cache[cacheKey]; ok {
		k.mu.Unlock()
		return key, nil
	}
	k.mu.Unlock()

	blob, err := k.store.GetTenantKey(ctx, tenantID, provider)
	if err != nil {
		return "", err
	}
	plaintext, err := k.vault.Decrypt(blob)
	if err != nil {
		return "", fmt.Errorf("keychain: decrypt %s key for tenant %s: %w", provider, tenantID, err)
	}

	k.put(cacheKey, string(plaintext))
	return string(plaintext), nil
}

// Store encrypts and persists a tenant's API key, replacing any previous
// value, and refreshes the cache entry.
func (k *Keychain) Store(ctx context.Context, tenantID, provider, apiKey string) error {
	blob, err := k.vault.Encrypt([]byte(apiKey))
	if err != nil {
		return err
	}
	if err := k.store.PutTenantKey(ctx, tenantID, provider, blob); err != nil {
		return err
	}
	k.put(tenantID+"/"+provider, apiKey)
	return nil
}

// put inserts a cache entry, evicting the oldest once the bound is hit.
func (k *Keychain) put(cacheKey, value string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.cache[cacheKey]; !ok {
		for len(k.order) >= k.max {
			oldest := k.order[0]
			k.order = k.order[1:]
			delete(k.cache, oldest)
		}
		k.order = append(k.order, cacheKey)
	}
	k.cache[cacheKey] = value
}
