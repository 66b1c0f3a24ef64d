// internal/app/system/grouplock/grouplock.go

// Package grouplock serializes group-buy mutations per group. Every
// orchestrator operation holds the lock of each group it touches from the
// availability check through the final counter persist, so two requests
// racing for the last slots cannot interleave check and increment.
//
// Locks are try-acquired: if a group is busy the caller fails fast and the
// client retries the whole operation. Multi-group operations (migration
// touches two groups) acquire in ascending id order so concurrent
// migrations cannot deadlock.
package grouplock

import (
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrBusy is returned by Acquire when any requested group is already held.
type busyError struct{}

func (busyError) Error() string { return "group is locked by another operation" }

// ErrBusy is the sentinel callers test with errors.Is.
var ErrBusy error = busyError{}

// Keyed tracks which group ids are currently held.
type Keyed struct {
	mu   sync.Mutex
	held map[primitive.ObjectID]bool
}

func New() *Keyed {
	return &Keyed{held: make(map[primitive.ObjectID]bool)}
}

// Acquire try-locks every id (deduplicated, ascending order) and returns a
// release function. If any id is already held, nothing is acquired and
// ErrBusy is returned.
func (k *Keyed) Acquire(ids ...primitive.ObjectID) (release func(), err error) {
	ordered := dedupeSorted(ids)

	k.mu.Lock()
	defer k.mu.Unlock()

	for _, id := range ordered {
		if k.held[id] {
			return nil, ErrBusy
		}
	}
	for _, id := range ordered {
		k.held[id] = true
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			defer k.mu.Unlock()
			for _, id := range ordered {
				delete(k.held, id)
			}
		})
	}, nil
}

func dedupeSorted(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]bool, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hex() < out[j].Hex()
	})
	return out
}
