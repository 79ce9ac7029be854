// Package fdloop implements the single-threaded cooperative event loop that
// drives the whole daemon: readiness notification for registered file
// descriptors plus a monotonic priority queue of timers. No other goroutine
// may touch the routing graph; every mutation happens inside a callback
// dispatched by Loop.Run, which serialises them the same way the original
// fd.c / event.c pair (see original_source/fd) serialised callbacks in a
// single-threaded C event loop.
package fdloop

import (
	"container/heap"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/relaymesh/relayd/internal/dlog"
	"github.com/relaymesh/relayd/internal/relayerr"
)

// Handle describes one registered descriptor. Any of the three callbacks may
// be nil; the loop only arms the poller for the events that have a non-nil
// handler. Handlers must not close or unregister the descriptor they are
// currently executing on — schedule that for the next iteration instead.
type Handle struct {
	Fd    int
	Read  func()
	Write func()
	Error func()

	registered bool
}

func (h *Handle) wantEvents() pollEvents {
	var ev pollEvents
	if h.Read != nil {
		ev |= pollRead
	}
	if h.Write != nil {
		ev |= pollWrite
	}
	if h.Error != nil {
		ev |= pollErr
	}
	return ev
}

// TimerHandler runs when a timer's deadline has passed. Returning true
// re-arms the timer at deadline+interval (drift-free rearming, not
// now+interval); returning false drops it.
type TimerHandler func() bool

// Timer is an opaque handle to a scheduled, possibly-repeating callback.
type Timer struct {
	deadline time.Time
	interval time.Duration
	handler  TimerHandler
	id       uint64
	index    int // heap index, maintained by container/heap
	canceled bool
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].id < h[j].id
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x interface{}) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Loop is the descriptor-readiness and timer dispatcher. The zero value is
// not usable; construct with New.
type Loop struct {
	poller  poller
	handles map[int]*Handle
	timers  timerHeap
	nextID  uint64

	wakeupR *os.File
	wakeupW *os.File
	wakeup  Handle

	// dispatchMu guards dispatchQueue, the only state in Loop touched from
	// goroutines other than the one running Run: it lets blocking I/O
	// (a tunnel's ReadLoop, a device's read goroutine, an accept loop)
	// hand a closure back to the single loop goroutine instead of
	// mutating the routing graph themselves.
	dispatchMu    sync.Mutex
	dispatchQueue []func()

	running bool
}

// New creates a Loop backed by the platform's native readiness multiplexer
// (epoll on Linux, poll elsewhere on unix-like systems).
func New() (*Loop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, relayerr.Wrap(relayerr.Transient, err)
	}
	l := &Loop{
		poller:  p,
		handles: make(map[int]*Handle),
	}
	r, w, err := os.Pipe()
	if err != nil {
		_ = p.close()
		return nil, relayerr.Wrap(relayerr.Transient, err)
	}
	l.wakeupR, l.wakeupW = r, w
	l.wakeup = Handle{Fd: int(r.Fd()), Read: l.drainWakeup}
	if err := l.Add(&l.wakeup); err != nil {
		_ = p.close()
		return nil, err
	}
	return l, nil
}

func (l *Loop) drainWakeup() {
	var buf [64]byte
	for {
		n, err := l.wakeupR.Read(buf[:])
		if n == 0 || err != nil {
			return
		}
	}
}

// Dispatch enqueues fn to run on the loop goroutine and wakes the loop if
// it is currently blocked in the readiness call. Safe to call from any
// goroutine. fn runs serialized with every other handler and timer, so it
// may freely touch the routing graph.
func (l *Loop) Dispatch(fn func()) {
	l.dispatchMu.Lock()
	l.dispatchQueue = append(l.dispatchQueue, fn)
	l.dispatchMu.Unlock()
	_, _ = l.wakeupW.Write([]byte{0})
}

func (l *Loop) runDispatched() {
	l.dispatchMu.Lock()
	queue := l.dispatchQueue
	l.dispatchQueue = nil
	l.dispatchMu.Unlock()
	for _, fn := range queue {
		fn()
	}
}

// Add registers a descriptor. The Handle must not already be registered.
func (l *Loop) Add(h *Handle) error {
	if h.registered {
		return relayerr.New(relayerr.ConfigError, "fdloop: handle already registered")
	}
	if err := l.poller.add(h.Fd, h.wantEvents()); err != nil {
		return relayerr.Wrap(relayerr.Transient, err)
	}
	l.handles[h.Fd] = h
	h.registered = true
	return nil
}

// Modify re-arms a previously Added handle after its Read/Write/Error fields
// changed.
func (l *Loop) Modify(h *Handle) error {
	if !h.registered {
		return relayerr.New(relayerr.ConfigError, "fdloop: handle not registered")
	}
	if err := l.poller.mod(h.Fd, h.wantEvents()); err != nil {
		return relayerr.Wrap(relayerr.Transient, err)
	}
	return nil
}

// Remove unregisters a descriptor. It is the caller's responsibility to
// close the underlying descriptor afterward.
func (l *Loop) Remove(h *Handle) error {
	if !h.registered {
		return nil
	}
	if err := l.poller.del(h.Fd); err != nil {
		return relayerr.Wrap(relayerr.Transient, err)
	}
	delete(l.handles, h.Fd)
	h.registered = false
	return nil
}

// AddTimer schedules handler to run once at deadline, and on every interval
// thereafter for as long as handler keeps returning true. An interval of
// zero means the timer never reschedules itself regardless of the return
// value.
func (l *Loop) AddTimer(deadline time.Time, interval time.Duration, handler TimerHandler) *Timer {
	l.nextID++
	t := &Timer{deadline: deadline, interval: interval, handler: handler, id: l.nextID}
	heap.Push(&l.timers, t)
	return t
}

// CancelTimer removes a timer before it fires. Safe to call from within a
// timer handler to cancel another timer. Called from the handler of the
// timer being canceled it has no effect: that timer is already off the
// queue, and the handler's return value alone decides whether it rearms.
func (l *Loop) CancelTimer(t *Timer) {
	if t.canceled || t.index < 0 {
		return
	}
	t.canceled = true
	heap.Remove(&l.timers, t.index)
}

// nextTimeout returns how long to block in the readiness call, or -1 to
// block indefinitely when no timer is queued.
func (l *Loop) nextTimeout(now time.Time) time.Duration {
	if len(l.timers) == 0 {
		return -1
	}
	d := l.timers[0].deadline.Sub(now)
	if d < 0 {
		d = 0
	}
	return d
}

// runDueTimers fires every timer whose deadline has passed, rearming
// handlers that return true at deadline+interval (never now+interval, so a
// slow loop iteration does not add drift).
func (l *Loop) runDueTimers(now time.Time) {
	for len(l.timers) > 0 && !l.timers[0].deadline.After(now) {
		t := heap.Pop(&l.timers).(*Timer)
		if t.canceled {
			continue
		}
		requeue := t.handler()
		if requeue && t.interval > 0 {
			t.deadline = t.deadline.Add(t.interval)
			heap.Push(&l.timers, t)
		}
	}
}

// Run blocks, dispatching readiness and timer callbacks, until ctx is
// canceled or Stop is called. EINTR/EAGAIN from the readiness call are
// retried silently by the platform poller; any other error is returned
// wrapped as relayerr.Transient, ending the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.running = true
	dlog.Info(ctx, "fdloop: running")
	defer dlog.Info(ctx, "fdloop: stopping")

	go func() {
		<-ctx.Done()
		l.Stop()
	}()

	for l.running {
		now := time.Now()
		timeout := l.nextTimeout(now)
		events, err := l.poller.wait(timeout)
		if err != nil {
			return relayerr.Wrap(relayerr.Transient, fmt.Errorf("fdloop: wait: %w", err))
		}

		for _, ev := range events {
			h, ok := l.handles[ev.fd]
			if !ok {
				continue
			}
			if ev.readable && h.Read != nil {
				h.Read()
			}
			if ev.writable && h.Write != nil {
				h.Write()
			}
			if ev.errored && h.Error != nil {
				h.Error()
			}
		}

		l.runDueTimers(time.Now())
		l.runDispatched()
	}
	return nil
}

// Stop asks Run to return after the current iteration. Safe to call from
// any goroutine, including from within a handler.
func (l *Loop) Stop() {
	if !l.running {
		return
	}
	l.running = false
	_, _ = l.wakeupW.Write([]byte{0})
}

// Close releases the loop's own resources (the wakeup pipe and the
// platform poller). Registered handles' descriptors are not closed.
func (l *Loop) Close() error {
	_ = l.wakeupR.Close()
	_ = l.wakeupW.Close()
	return l.poller.close()
}
