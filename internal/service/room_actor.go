package service

import (
	"sync/atomic"
	"time"
)

// activeStroke — явная ссылка на штрих, который ещё можно продолжать.
type activeStroke struct {
	userID string
	index  int
}

type roomState struct {
	active *activeStroke
}

func (st *roomState) owns(userID string) bool {
	return st.active != nil && st.active.userID == userID
}

type roomJob func(st *roomState)

// roomActor владеет состоянием одной комнаты; все мутации лога идут через inbox.
type roomActor struct {
	id      string
	inbox   chan roomJob
	pending atomic.Int64
	done    chan struct{}
}

func newRoomActor(id string, size int) *roomActor {
	return &roomActor{
		id:    id,
		inbox: make(chan roomJob, size),
		done:  make(chan struct{}),
	}
}

func (s *RoomService) run(a *roomActor) {
	defer s.wg.Done()
	defer close(a.done)

	st := &roomState{}
	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case job := <-a.inbox:
			job(st)
			a.pending.Add(-1)
			idle.Reset(s.idleTimeout)
		case <-idle.C:
			if s.retire(a) {
				return
			}
			idle.Reset(s.idleTimeout)
		case <-s.stop:
			return
		}
	}
}

// retire снимает актора с регистрации, если к нему никто не обращается.
func (s *RoomService) retire(a *roomActor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.pending.Load() != 0 || len(a.inbox) != 0 {
		return false
	}
	if cur, ok := s.actors[a.id]; ok && cur == a {
		delete(s.actors, a.id)
	}
	return true
}
