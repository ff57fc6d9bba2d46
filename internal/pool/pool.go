// Package pool implements the elastic worker pool described in
// spec.md §4.2, translated line-for-line from
// original_source/src/thread_pool.c: a ring-buffer task queue that
// doubles on fill, lazy scale-up on backlog, idle-timeout scale-down.
// OS threads become goroutines; the suspension points (condvar wait,
// idle timeout) become sync.Cond waits, the timed one ended by a timer
// that broadcasts on the cond.
package pool

import (
	"sync"
	"time"

	"github.com/marlecce/emme/internal/aio"
)

// IdleTimeout mirrors THREAD_IDLE_TIMEOUT = 5s.
const IdleTimeout = 5 * time.Second

// AsyncIODepth is the depth passed to aio.New for each worker's
// lazily-created AsyncIoHandle.
const AsyncIODepth = 2 * aio.QueueDepth

const initialCapacity = 64

// Task is a unit of work submitted to the pool. It receives the calling
// worker's own AsyncIoHandle, lazily created on that worker's first task
// and reused for every task it processes afterward — per spec.md §3's
// invariant that a worker's AsyncIoHandle is never shared with another
// worker or with the accept loop's global handle.
type Task func(handle *aio.Handle)

// ring is a FIFO ring buffer of tasks, doubling capacity on fill and
// re-basing front to 0 on resize, preserving order — same contract as
// the C TaskQueue.
type ring struct {
	tasks []Task
	front int
	count int
}

func newRing(capacity int) *ring {
	return &ring{tasks: make([]Task, capacity)}
}

func (r *ring) push(t Task) {
	if r.count == len(r.tasks) {
		r.grow()
	}
	rear := (r.front + r.count) % len(r.tasks)
	r.tasks[rear] = t
	r.count++
}

func (r *ring) grow() {
	newCap := len(r.tasks) * 2
	if newCap == 0 {
		newCap = initialCapacity
	}
	next := make([]Task, newCap)
	for i := 0; i < r.count; i++ {
		next[i] = r.tasks[(r.front+i)%len(r.tasks)]
	}
	r.tasks = next
	r.front = 0
}

func (r *ring) pop() (Task, bool) {
	if r.count == 0 {
		return nil, false
	}
	t := r.tasks[r.front]
	r.tasks[r.front] = nil
	r.front = (r.front + 1) % len(r.tasks)
	r.count--
	return t, true
}

// fillRatio reports how full the ring is, used for the 80% growth
// trigger in Add.
func (r *ring) fillRatio() float64 {
	if len(r.tasks) == 0 {
		return 1
	}
	return float64(r.count) / float64(len(r.tasks))
}

// Pool is the elastic FIFO worker pool.
type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    *ring
	min, max int
	current  int
	shutdown bool
}

// New spawns min workers immediately, matching thread_pool_create.
func New(min, max int) *Pool {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}

	p := &Pool{
		queue:   newRing(initialCapacity),
		min:     min,
		max:     max,
		current: min,
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < min; i++ {
		go p.worker()
	}

	return p
}

// Add enqueues a task. It never blocks: on failure (pool shut down) the
// caller MUST close the resource it was about to hand off, per spec.md
// §4.2's back-pressure contract. Successful enqueue transfers ownership
// of the task to the pool.
func (p *Pool) Add(t Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return false
	}

	p.queue.push(t)

	if p.queue.fillRatio() >= 0.8 {
		p.queue.grow()
	}

	if p.queue.count > p.current && p.current < p.max {
		p.current++
		go p.worker()
	}

	p.cond.Signal()
	return true
}

// worker is the per-goroutine loop: wait for a task or shutdown, pop
// one, run it, repeat. A worker that times out on an empty queue above
// min shrinks the pool and exits — mirroring worker_thread's
// pthread_cond_timedwait + ETIMEDOUT scale-down path.
func (p *Pool) worker() {
	var handle *aio.Handle
	defer func() {
		if handle != nil {
			handle.Close()
		}
	}()

	for {
		p.mu.Lock()

		for p.queue.count == 0 && !p.shutdown {
			timedOut := waitTimeout(p.cond, IdleTimeout)
			if timedOut && p.queue.count == 0 && !p.shutdown {
				if p.current > p.min {
					p.current--
					p.mu.Unlock()
					return
				}
			}
		}

		if p.shutdown {
			p.mu.Unlock()
			return
		}

		task, ok := p.queue.pop()
		p.mu.Unlock()

		if ok {
			if handle == nil {
				h, err := aio.New(AsyncIODepth)
				if err != nil {
					// Without an AsyncIoHandle this worker cannot serve
					// the task; drop it rather than block the pool.
					continue
				}
				handle = h
			}
			task(handle)
		}
	}
}

// waitTimeout waits on cond for at most d, reporting whether it timed
// out. sync.Cond has no native timed wait, so this mirrors
// pthread_cond_timedwait with a helper goroutine that signals the cond
// after d elapses if nobody else has.
func waitTimeout(cond *sync.Cond, d time.Duration) bool {
	done := make(chan struct{})
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		close(done)
		cond.L.Unlock()
		cond.Broadcast()
	})

	cond.Wait()

	select {
	case <-done:
		timer.Stop()
		return true
	default:
		timer.Stop()
		return false
	}
}

// Shutdown marks the pool shut down and wakes every idle worker, then
// returns without waiting for any worker to exit. A worker running a task
// finishes it and then exits; tasks still queued are not run. max is not
// used as a join bound here the way thread_pool_destroy joins a max-sized
// thread array: workers are not joined.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Size reports the current goroutine count, for tests and metrics.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}
