package vapor

import (
	"context"
	"sync"

	"github.com/vaporhq/vapor/internal/rate"
	"github.com/vaporhq/vapor/store"
)

// Engine orchestrates platform logins and the authenticator lifecycle for
// the accounts in its store. One Engine serves one account store; the live
// session client belongs to whichever account most recently logged in.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config      Config
	store       store.Store
	newClient   ClientFactory
	rateLimiter *rate.Limiter
	audit       *auditDispatcher
	metrics     *Metrics

	mu     sync.Mutex
	client CommunityClient
	idling []uint32
}

// Close drains the audit dispatcher. The engine must not be used after
// Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a deep copy of all counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// MainAccount returns the currently active account record.
func (e *Engine) MainAccount(ctx context.Context) (*store.Record, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	rec, err := e.store.MainAccount(ctx)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CurrentClient returns the live session client established by the most
// recent successful login, or nil when no session exists.
func (e *Engine) CurrentClient() CommunityClient {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client
}

func (e *Engine) setLiveClient(c CommunityClient) {
	e.mu.Lock()
	e.client = c
	e.idling = nil
	e.mu.Unlock()
}

// liveClient returns the current session client or ErrNotLoggedIn.
func (e *Engine) liveClient() (CommunityClient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil, ErrNotLoggedIn
	}
	return e.client, nil
}
