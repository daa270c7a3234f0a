package canvas

import (
	"sync"
	"time"
)

// CursorInterval: примерно 60 кадров в секунду.
const CursorInterval = time.Second / 60

// CursorThrottle пропускает не больше одной позиции курсора за interval.
// Пока окно открыто, новые позиции вытесняют друг друга; в конце окна уходит последняя.
type CursorThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	emit     func(x, y float64)

	timer   *time.Timer
	x, y    float64
	stopped bool
}

func NewCursorThrottle(interval time.Duration, emit func(x, y float64)) *CursorThrottle {
	if interval <= 0 {
		interval = CursorInterval
	}
	return &CursorThrottle{interval: interval, emit: emit}
}

func (t *CursorThrottle) Move(x, y float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.x, t.y = x, y
	if t.timer != nil {
		return
	}
	t.timer = time.AfterFunc(t.interval, t.flush)
}

func (t *CursorThrottle) flush() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	x, y := t.x, t.y
	t.timer = nil
	t.mu.Unlock()

	t.emit(x, y)
}

// Stop отменяет отложенную отправку.
func (t *CursorThrottle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
