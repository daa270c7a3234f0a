// Package ratelimit — token bucket для входящих кадров одного соединения.
package ratelimit

import (
	"sync"
	"time"
)

type Limiter struct {
	mu sync.Mutex

	rate       float64 // токенов в секунду
	burst      int
	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
}

// NewLimiter: rate <= 0 отключает ограничение.
func NewLimiter(rate float64, burst int) *Limiter {
	return newLimiter(rate, burst, time.Now)
}

func newLimiter(rate float64, burst int, now func() time.Time) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: now(),
		now:        now,
	}
}

func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

func (l *Limiter) AllowN(n int) bool {
	if l == nil || l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens += now.Sub(l.lastUpdate).Seconds() * l.rate
	l.lastUpdate = now
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}

	if l.tokens >= float64(n) {
		l.tokens -= float64(n)
		return true
	}
	return false
}

// Violations считает отказы подряд и говорит, когда пора рвать соединение.
type Violations struct {
	count int
	limit int
}

func NewViolations(limit int) *Violations {
	return &Violations{limit: limit}
}

// Hit регистрирует отказ и возвращает true, когда лимит нарушений исчерпан.
func (v *Violations) Hit() bool {
	v.count++
	return v.limit > 0 && v.count > v.limit
}

// Count возвращает число отказов.
func (v *Violations) Count() int { return v.count }
