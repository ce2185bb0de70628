package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

// userLimiter keeps one token bucket per user.
type userLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
}

func newUserLimiter(perSecond float64, burst int) *userLimiter {
	return &userLimiter{
		limit:      rate.Limit(perSecond),
		burst:      burst,
		now:        time.Now,
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
	}
}

// Allow reports whether userID may send now.
func (l *userLimiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanupLocked(now)

	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = limiter
	}
	l.lastAccess[userID] = now
	return limiter.AllowN(now, 1)
}

// cleanupLocked drops limiters of users idle for longer than limiterIdle.
func (l *userLimiter) cleanupLocked(now time.Time) {
	for id, last := range l.lastAccess {
		if now.Sub(last) > limiterIdle {
			delete(l.limiters, id)
			delete(l.lastAccess, id)
		}
	}
}
