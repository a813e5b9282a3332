package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/datallboy/rangefetch/internal/app"
	"github.com/datallboy/rangefetch/internal/domain"
	"github.com/datallboy/rangefetch/internal/infra/logger"
)

// ErrQueueFull is returned by Submit when the backlog is at capacity.
var ErrQueueFull = errors.New("download queue is full")

// SourceFactory builds a Source for an endpoint.
type SourceFactory func(endpoint string) app.Source

type queuedRun struct {
	run    *domain.Run
	dl     *Downloader
	cancel context.CancelFunc
}

// QueueManager runs submitted downloads one after another for serve mode.
type QueueManager struct {
	mu         sync.RWMutex
	downloader *Downloader
	sources    SourceFactory
	store      app.Store
	logger     *logger.Logger

	queue    []*queuedRun
	active   *queuedRun
	capacity int

	newJobChan chan struct{}
}

func NewQueueManager(appCtx *app.Context, downloader *Downloader, sources SourceFactory, capacity int) *QueueManager {
	return &QueueManager{
		downloader: downloader,
		sources:    sources,
		store:      appCtx.Store,
		logger:     appCtx.Logger,
		capacity:   capacity,
		newJobChan: make(chan struct{}, 1),
	}
}

// Submit queues a download from endpoint and returns a copy of its run record.
func (m *QueueManager) Submit(endpoint string) (*domain.Run, error) {
	dl := m.downloader.WithSource(endpoint, m.sources(endpoint))
	item := &queuedRun{run: dl.NewRun(), dl: dl}

	m.mu.Lock()
	if m.capacity > 0 && len(m.queue) >= m.capacity {
		m.mu.Unlock()
		return nil, ErrQueueFull
	}
	m.queue = append(m.queue, item)
	m.mu.Unlock()

	// Signal the Start() loop that there is work to do
	select {
	case m.newJobChan <- struct{}{}:
	default:
	}

	return item.run.LiveCopy(domain.StatusQueued), nil
}

// Start processes the queue until ctx is cancelled.
func (m *QueueManager) Start(ctx context.Context) {
	for {
		m.mu.Lock()
		var next *queuedRun
		if len(m.queue) > 0 {
			next = m.queue[0]
			m.queue = m.queue[1:]
		}
		m.mu.Unlock()

		if next == nil {
			select {
			case <-m.newJobChan:
				continue
			case <-ctx.Done():
				return
			}
		}

		jobCtx, cancel := context.WithCancel(ctx)
		m.mu.Lock()
		next.cancel = cancel
		m.active = next
		m.mu.Unlock()

		if _, err := next.dl.Execute(jobCtx, next.run); err != nil {
			m.logger.Error("Run %s failed: %v", next.run.ID, err)
		}
		cancel()

		m.mu.Lock()
		m.active = nil
		m.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
	}
}

// Active returns a copy of the run currently downloading, if any.
func (m *QueueManager) Active() *domain.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return nil
	}
	return m.active.run.LiveCopy(domain.StatusRunning)
}

// Pending returns a copy of the runs waiting to start.
func (m *QueueManager) Pending() []*domain.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]*domain.Run, len(m.queue))
	for i, item := range m.queue {
		runs[i] = item.run.LiveCopy(domain.StatusQueued)
	}
	return runs
}

// Get looks a run up in the live queue, then in the store.
func (m *QueueManager) Get(id string) (*domain.Run, bool) {
	m.mu.RLock()
	if m.active != nil && m.active.run.ID == id {
		defer m.mu.RUnlock()
		return m.active.run.LiveCopy(domain.StatusRunning), true
	}
	for _, item := range m.queue {
		if item.run.ID == id {
			m.mu.RUnlock()
			return item.run.LiveCopy(domain.StatusQueued), true
		}
	}
	m.mu.RUnlock()

	if m.store == nil {
		return nil, false
	}
	run, err := m.store.GetRun(id)
	if err != nil || run == nil {
		return nil, false
	}
	return run, true
}

// Cancel stops the active run or drops a pending one.
func (m *QueueManager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.run.ID == id {
		if m.active.cancel != nil {
			m.active.cancel()
		}
		return true
	}

	for i, item := range m.queue {
		if item.run.ID == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return true
		}
	}
	return false
}
