package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// PendingPayoutSource lists ledger rows that still owe a transfer.
type PendingPayoutSource interface {
	PendingPayouts(ctx context.Context, limit int) ([]string, error)
}

// ManagerConfig configures the background payout sweep.
type ManagerConfig struct {
	SweepInterval time.Duration
	SweepBatch    int
}

// Manager runs the job queue plus the periodic pending-payout sweep.
type Manager struct {
	queue       *Queue
	source      PendingPayoutSource
	cfg         ManagerConfig
	sweepTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

// NewManager wraps a queue. source may be nil to disable the sweep.
func NewManager(queue *Queue, source PendingPayoutSource, cfg ManagerConfig) *Manager {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 15 * time.Minute
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	return &Manager{
		queue:  queue,
		source: source,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.source != nil {
		m.sweepTicker = time.NewTicker(m.cfg.SweepInterval)
		m.wg.Add(1)
		go m.payoutSweepWorker(m.sweepTicker, m.stopCh)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// payoutSweepWorker periodically queues retries for payouts that never completed
func (m *Manager) payoutSweepWorker(ticker *time.Ticker, stopCh <-chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started payout sweep (interval: %s)", m.cfg.SweepInterval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Payout sweep stopping")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if n, err := m.SweepPendingPayouts(ctx); err != nil {
				log.Errorf("[JobQueue Manager] Payout sweep error: %v", err)
			} else if n > 0 {
				log.Infof("[JobQueue Manager] Payout sweep queued %d retries", n)
			}
			cancel()
		}
	}
}

// SweepPendingPayouts queues a retry for each pending payout not already queued.
func (m *Manager) SweepPendingPayouts(ctx context.Context) (int, error) {
	if m.source == nil {
		return 0, nil
	}
	ids, err := m.source.PendingPayouts(ctx, m.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, id := range ids {
		ok, err := m.queue.enqueuePayoutRetry(ctx, id, "sweep", 0)
		if err != nil {
			return queued, err
		}
		if ok {
			queued++
		}
	}
	return queued, nil
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
