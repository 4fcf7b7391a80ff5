package route

import (
	"context"
	"sync"
)

// Handler получатель навигации.
type Handler func(Params)

// Stream доставляет навигацию всем подписанным графикам.
type Stream interface {
	Publish(ctx context.Context, p Params) error
	// Subscribe возвращает функцию отписки.
	Subscribe(fn Handler) (unsubscribe func())
}

// subscribers локальная раздача, общая для реализаций Stream.
type subscribers struct {
	mu     sync.RWMutex
	nextID int
	fns    map[int]Handler
}

func (s *subscribers) add(fn Handler) func() {
	s.mu.Lock()
	if s.fns == nil {
		s.fns = make(map[int]Handler)
	}
	id := s.nextID
	s.nextID++
	s.fns[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) dispatch(p Params) {
	s.mu.RLock()
	fns := make([]Handler, 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(p)
	}
}

func (s *subscribers) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fns)
}

// MemoryStream синхронная доставка внутри процесса.
type MemoryStream struct {
	subs subscribers
}

func NewMemoryStream() *MemoryStream {
	return &MemoryStream{}
}

// Publish вызывает всех подписчиков до возврата.
func (m *MemoryStream) Publish(ctx context.Context, p Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.subs.dispatch(p)
	return nil
}

func (m *MemoryStream) Subscribe(fn Handler) func() {
	return m.subs.add(fn)
}

// Subscribers число подписчиков.
func (m *MemoryStream) Subscribers() int {
	return m.subs.count()
}
