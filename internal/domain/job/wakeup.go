package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/upswyng/alert-worker/internal/domain/model"
)

// ErrWaiterRequired indicates Wakeups cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("wakeup waiter is required")

// Waiter blocks until the queue signals that a job of kind was added.
type Waiter interface {
	WaitForNotification(ctx context.Context, kind model.JobKind) error
}

// WakeupOptions configure Wakeups.
type WakeupOptions struct {
	Waiter Waiter
	// WaitWindow bounds a single wait so listeners notice cancellation.
	WaitWindow time.Duration
	// Backoff is the pause after a failed wait.
	Backoff time.Duration
}

// Wakeups shares one queue listener per job kind among any number of runners.
// Each subscriber gets a one-slot channel; a pending signal is never duplicated.
type Wakeups struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu        sync.Mutex
	subs      map[model.JobKind]map[chan struct{}]struct{}
	listeners map[model.JobKind]context.CancelFunc
}

// NewWakeups constructs Wakeups.
func NewWakeups(opts WakeupOptions) (*Wakeups, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}
	w := &Wakeups{
		waiter:     opts.Waiter,
		waitWindow: opts.WaitWindow,
		backoff:    opts.Backoff,
		subs:       make(map[model.JobKind]map[chan struct{}]struct{}),
		listeners:  make(map[model.JobKind]context.CancelFunc),
	}
	if w.waitWindow <= 0 {
		w.waitWindow = time.Minute
	}
	if w.backoff <= 0 {
		w.backoff = 250 * time.Millisecond
	}
	return w, nil
}

// Subscribe registers interest in kind. The returned func unsubscribes and
// closes the channel; the listener stops with the last subscriber.
func (w *Wakeups) Subscribe(kind model.JobKind) (func(), <-chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.listeners[kind]; !ok {
		ctx, cancel := context.WithCancel(context.Background())
		w.listeners[kind] = cancel
		go w.listen(ctx, kind)
	}

	ch := make(chan struct{}, 1)
	if w.subs[kind] == nil {
		w.subs[kind] = make(map[chan struct{}]struct{})
	}
	w.subs[kind][ch] = struct{}{}

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			set := w.subs[kind]
			if _, ok := set[ch]; !ok {
				return
			}
			delete(set, ch)
			close(ch)
			if len(set) == 0 {
				delete(w.subs, kind)
				if cancel, ok := w.listeners[kind]; ok {
					cancel()
					delete(w.listeners, kind)
				}
			}
		})
	}
	return unsub, ch
}

// StopAll cancels every listener and closes every subscriber channel.
func (w *Wakeups) StopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for kind, cancel := range w.listeners {
		cancel()
		delete(w.listeners, kind)
	}
	for kind, set := range w.subs {
		for ch := range set {
			close(ch)
		}
		delete(w.subs, kind)
	}
}

func (w *Wakeups) listen(ctx context.Context, kind model.JobKind) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, w.waitWindow)
		err := w.waiter.WaitForNotification(waitCtx, kind)
		cancel()

		// A timed-out wait still nudges runners so they re-poll.
		w.signal(kind)

		if err == nil || ctx.Err() != nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.backoff):
		}
	}
}

func (w *Wakeups) signal(kind model.JobKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.subs[kind] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
