package memory

import (
	"context"
	"sync"

	"seara/internal/store"
)

// subscription delivers snapshots on its own goroutine. Only the latest
// undelivered snapshot is kept, so a slow consumer skips intermediate states.
type subscription struct {
	id       int
	userID   string
	onChange func([]store.Document)
	onError  func(error)

	mu         sync.Mutex
	pending    []store.Document
	hasPending bool
	err        error

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSubscription(id int, userID string, onChange func([]store.Document), onError func(error)) *subscription {
	return &subscription{
		id:       id,
		userID:   userID,
		onChange: onChange,
		onError:  onError,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (s *subscription) push(docs []store.Document) {
	s.mu.Lock()
	s.pending = docs
	s.hasPending = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.signal()
}

func (s *subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *subscription) run(ctx context.Context, unsubscribe func()) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			unsubscribe()
			return
		case <-s.wake:
		}

		s.mu.Lock()
		docs, has, err := s.pending, s.hasPending, s.err
		s.pending, s.hasPending = nil, false
		s.mu.Unlock()

		// stop may have raced with the wake-up
		select {
		case <-s.done:
			return
		default:
		}

		if err != nil {
			s.stop()
			if s.onError != nil {
				s.onError(err)
			}
			return
		}
		if has && s.onChange != nil {
			s.onChange(docs)
		}
	}
}
