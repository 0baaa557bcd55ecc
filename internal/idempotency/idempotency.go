// Package idempotency lets a client resubmit a create after a timeout and get
// back the reservation the first attempt produced.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInFlight means another request with the same key has not finished yet.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

const DefaultTTL = 24 * time.Hour

type Store interface {
	// Claim reserves key for the caller. When the key already resolved to a
	// reservation its id is returned with claimed=false.
	Claim(ctx context.Context, key string) (existing uuid.UUID, claimed bool, err error)
	// Bind records the reservation created under a claimed key.
	Bind(ctx context.Context, key string, id uuid.UUID) error
	// Release frees a claimed key after a failed create.
	Release(ctx context.Context, key string) error
}

// Key scopes a client key to one business.
func Key(businessID uuid.UUID, clientKey string) string {
	return fmt.Sprintf("idem:%s:%s", businessID, clientKey)
}

type entry struct {
	id      uuid.UUID
	expires time.Time
}

// Local is an in-process Store for single-node deployments and tests.
type Local struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

var _ Store = (*Local)(nil)

func NewLocal(ttl time.Duration) *Local {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Local{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
}

func (l *Local) Claim(ctx context.Context, key string) (uuid.UUID, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if e, ok := l.entries[key]; ok && now.Before(e.expires) {
		if e.id == uuid.Nil {
			return uuid.Nil, false, ErrInFlight
		}
		return e.id, false, nil
	}
	l.entries[key] = entry{expires: now.Add(l.ttl)}
	return uuid.Nil, true, nil
}

func (l *Local) Bind(ctx context.Context, key string, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = entry{id: id, expires: l.now().Add(l.ttl)}
	return nil
}

func (l *Local) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}
