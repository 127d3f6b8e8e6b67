package storage

import (
	"context"
	"sync"
	"time"

	applog "seara/internal/log"
	"seara/internal/store"
)

// poller is one subscription. It delivers the collection on start, whenever
// the user's revision moves and whenever it is kicked.
type poller struct {
	id       int
	userID   string
	onChange func([]store.Document)
	onError  func(error)

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newPoller(id int, userID string, onChange func([]store.Document), onError func(error)) *poller {
	return &poller{
		id:       id,
		userID:   userID,
		onChange: onChange,
		onError:  onError,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (p *poller) kick() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *poller) stop() {
	p.stopOnce.Do(func() { close(p.done) })
}

func (p *poller) stopped() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *poller) run(ctx context.Context, s *SQLiteStore, unsubscribe func()) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	last := int64(-1)
	deliver := func(force bool) bool {
		rev, err := s.revision(ctx, p.userID)
		if err == nil && (force || rev != last) {
			var docs []store.Document
			docs, err = s.load(p.userID, rev)
			if err == nil {
				last = rev
				if !p.stopped() && p.onChange != nil {
					p.onChange(docs)
				}
				return true
			}
		}
		if err == nil {
			return true
		}
		if p.stopped() || ctx.Err() != nil {
			return false
		}
		s.logger.Error("Subscription poll failed",
			applog.FieldUserID, p.userID,
			applog.FieldOperation, applog.OpSubscribe,
			applog.FieldError, err)
		unsubscribe()
		if p.onError != nil {
			p.onError(err)
		}
		return false
	}

	if !deliver(true) {
		return
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			unsubscribe()
			return
		case <-ticker.C:
			if !deliver(false) {
				return
			}
		case <-p.wake:
			if !deliver(true) {
				return
			}
		}
	}
}
