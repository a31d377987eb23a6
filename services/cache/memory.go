package cachesvc

import (
	"context"
	"sync"
	"time"

	"github.com/eminingcampus/campus/core/order"
)

// MemoryDeduper is the in-process Deduper used when redis is not configured.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

var _ order.Deduper = (*MemoryDeduper)(nil)

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, expiry := range d.seen {
		if !now.Before(expiry) {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = now.Add(d.ttl)
	return true, nil
}

func (d *MemoryDeduper) Forget(_ context.Context, key string) error {
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
	return nil
}
