package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/clouddrive/clouddrive-go/internal/api"
)

// Monitor periodically revalidates the current credential against the
// server and forces logout when the server reports the session invalid
// (account deleted, session revoked). It is a background safety net, not
// a primary auth mechanism — the interval is deliberately coarse.
//
// At most one revalidation loop exists per Monitor: Start stops any prior
// loop before spawning a new one, so repeated start/stop cycles never leak
// a recurring timer.
type Monitor struct {
	store    *Store
	client   AuthAPI
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a Monitor checking every interval.
func NewMonitor(store *Store, client AuthAPI, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		store:    store,
		client:   client,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the revalidation loop in a goroutine. Any previously
// running loop is stopped first.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go func() {
		defer close(done)
		m.Run(runCtx)
	}()
}

// Stop halts the loop and waits for it to exit. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
}

func (m *Monitor) stopLocked() {
	if m.cancel == nil {
		return
	}

	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
}

// Run executes the revalidation loop until ctx is canceled or the session
// becomes unauthenticated. Exported so callers managing their own goroutine
// lifecycles (errgroup) can block on it directly.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Debug("session monitor started", slog.Duration("interval", m.interval))

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("session monitor stopped")
			return
		case <-ticker.C:
			if !m.tick(ctx) {
				m.logger.Debug("session monitor stopped")
				return
			}
		}
	}
}

// tick runs one revalidation. Returns false when the loop should stop:
// the session is gone, either externally or by this tick's forced expiry.
func (m *Monitor) tick(ctx context.Context) bool {
	snap := m.store.Snapshot()
	if !snap.Authenticated() {
		return false
	}

	_, err := m.client.WhoAmI(ctx, snap.Credential)
	if err == nil {
		return true
	}

	if errors.Is(err, api.ErrUnauthorized) || errors.Is(err, api.ErrNotFound) {
		m.store.ForceExpire()
		return false
	}

	// Transient connectivity loss must never cause a spurious logout.
	// Any other server response likewise leaves the session untouched.
	m.logger.Debug("session check inconclusive, ignoring tick",
		slog.String("error", err.Error()),
	)

	return true
}
