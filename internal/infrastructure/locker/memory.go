package locker

import (
	"context"
	"sync"
	"time"

	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
)

type lease struct {
	owner   string
	expires time.Time
}

// LockManager is an in-process implementation of the lock collaborator.
// Leases expire after their TTL, so a crashed worker cannot wedge a
// resource forever. The domain.Locker contract stays substitutable for a
// distributed backend when multiple engine instances run.
type LockManager struct {
	mu     sync.Mutex
	leases map[string]lease
	clock  domain.Clock
}

func NewLockManager(clock domain.Clock) *LockManager {
	return &LockManager{
		leases: make(map[string]lease),
		clock:  clock,
	}
}

// TryAcquire grants the lock when free or expired, re-grants to the same
// owner (extending the TTL), and denies everyone else.
func (l *LockManager) TryAcquire(ctx context.Context, resourceID, ownerID string, ttl time.Duration) (domain.LockOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if held, ok := l.leases[resourceID]; ok && held.expires.After(now) {
		if held.owner == ownerID {
			l.leases[resourceID] = lease{owner: ownerID, expires: now.Add(ttl)}
			return domain.LockGranted, nil
		}
		return domain.LockDenied, nil
	}

	l.leases[resourceID] = lease{owner: ownerID, expires: now.Add(ttl)}
	return domain.LockGranted, nil
}

func (l *LockManager) Release(ctx context.Context, resourceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.leases, resourceID)
	return nil
}
