package counter

import (
	"sync"

	"github.com/arloliu/go-coincounter/internal/queue"
	"github.com/arloliu/go-coincounter/logger"
)

// serialWorker runs submitted jobs one at a time, in submission order, on a
// single goroutine.
//
// The Counter uses one worker for device exchanges and another for handler
// callbacks, so a slow handler never delays a command.
type serialWorker struct {
	name   string
	logger logger.Logger

	mu      sync.RWMutex // guards stopped against concurrent submit
	stopped bool

	jobs queue.Queue[func()]
	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

func newSerialWorker(name string, l logger.Logger) *serialWorker {
	w := &serialWorker{
		name:   name,
		logger: l,
		jobs:   queue.NewLockFreeQueue[func()](),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run()

	return w
}

// submit queues job. It returns false when the worker has been stopped.
func (w *serialWorker) submit(job func()) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return false
	}

	w.jobs.Enqueue(job)
	select {
	case w.wake <- struct{}{}:
	default:
	}

	return true
}

// pending returns the number of queued jobs.
func (w *serialWorker) pending() int {
	return w.jobs.Length()
}

// stop rejects further jobs, runs the ones already queued and waits for the
// goroutine to exit.
func (w *serialWorker) stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		<-w.done

		return
	}
	w.stopped = true
	w.mu.Unlock()

	w.logger.Debug("stopping worker", "worker", w.name, "pending", w.pending())

	close(w.quit)
	<-w.done
}

func (w *serialWorker) run() {
	defer close(w.done)
	defer w.logger.Debug("worker terminated", "worker", w.name)

	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.quit:
			w.drain()
			return
		}
	}
}

func (w *serialWorker) drain() {
	for {
		job, ok := w.jobs.Dequeue()
		if !ok {
			return
		}
		w.runJob(job)
	}
}

func (w *serialWorker) runJob(job func()) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker job panicked", "worker", w.name, "panic", r)
		}
	}()

	job()
}
