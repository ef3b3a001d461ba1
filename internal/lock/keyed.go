// Package lock provides per-key mutual exclusion for the ledger engine.
package lock

import (
	"context"
	"sort"
	"sync"
)

// Keyed hands out exclusive locks by string key. Multi-key acquisitions take
// keys in sorted order, so callers locking overlapping sets cannot deadlock.
// Slots are reference counted and dropped once nobody holds or waits on them.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// New returns an empty lock table.
func New() *Keyed {
	return &Keyed{slots: make(map[string]*slot)}
}

// Lock blocks until every key is held or ctx is done. On success the returned
// func releases all keys; it is safe to call more than once.
func (k *Keyed) Lock(ctx context.Context, keys ...string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ordered := sortedUnique(keys)
	held := make([]*slot, 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].ch
		}
		k.unref(ordered[:len(held)])
	}
	for _, key := range ordered {
		s := k.ref(key)
		select {
		case s.ch <- struct{}{}:
			held = append(held, s)
		case <-ctx.Done():
			k.unref([]string{key})
			release()
			return nil, ctx.Err()
		}
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

// Len reports how many keys currently have holders or waiters.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

func (k *Keyed) ref(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *Keyed) unref(keys []string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range keys {
		s := k.slots[key]
		s.refs--
		if s.refs == 0 {
			delete(k.slots, key)
		}
	}
}

func sortedUnique(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
