package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Quota is an in-memory stand-in for the Redis daily counter.
type Quota struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewQuota() *Quota {
	return &Quota{counts: make(map[string]int)}
}

func quotaKey(userID uint, now time.Time) string {
	return fmt.Sprintf("%d:%s", userID, now.UTC().Format("2006-01-02"))
}

func (q *Quota) Consume(_ context.Context, userID uint, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	k := quotaKey(userID, now)
	q.counts[k]++
	return q.counts[k], nil
}

func (q *Quota) Release(_ context.Context, userID uint, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.counts[quotaKey(userID, now)]--
	return nil
}
