// Package session tracks revoked access tokens so that logout takes
// effect before the JWT itself expires.
package session

import (
	"context"
	"sync"
	"time"
)

// Denylist records revoked token IDs until their natural expiry.
type Denylist interface {
	// Revoke blocks a token ID for the remaining ttl of the token.
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	// IsRevoked reports whether a token ID has been revoked.
	IsRevoked(ctx context.Context, tokenID string) bool
	// Sweep drops entries whose tokens have expired anyway.
	Sweep(ctx context.Context) int
}

// MemoryDenylist is an in-process denylist. Entries are keyed by the
// JWT ID claim and carry the token's expiry so the list stays bounded.
type MemoryDenylist struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryDenylist creates an empty denylist.
func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (d *MemoryDenylist) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revoked[tokenID] = d.now().Add(ttl)
	return nil
}

func (d *MemoryDenylist) IsRevoked(_ context.Context, tokenID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	exp, ok := d.revoked[tokenID]
	if !ok {
		return false
	}
	// An expired entry means the token itself is expired; the JWT
	// validity check rejects it independently.
	return d.now().Before(exp)
}

func (d *MemoryDenylist) Sweep(_ context.Context) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	cutoff := d.now()
	for id, exp := range d.revoked {
		if exp.Before(cutoff) {
			delete(d.revoked, id)
			count++
		}
	}
	return count
}
