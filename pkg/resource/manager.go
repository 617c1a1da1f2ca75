// Package resource provides shared resource accounting for concurrent agent
// execution: hard usage caps, sliding-window rate limits, and a FIFO queue
// for requests that cannot be granted immediately.
package resource

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"advisor/pkg/logx"
)

// Limit caps one shared resource type.
type Limit struct {
	MaxUsage     int64         // Hard cap on concurrent usage, 0 = unlimited
	MaxPerWindow int           // Sliding-window grant cap, 0 = unlimited
	Window       time.Duration // Trailing window span
}

// Request describes one allocation attempt against the manager.
//
//nolint:govet // Logical field grouping preferred over memory alignment
type Request struct {
	ID           string
	RequesterID  string
	Requirements map[string]int64
	Priority     int // Accepted for reporting; grant order stays strict FIFO
	RequestedAt  time.Time
	Timeout      time.Duration // Queued requests past this age are dropped
}

// allocation tracks a granted request until release or stale cleanup.
type allocation struct {
	id          string
	requesterID string
	amounts     map[string]int64
	grantedAt   time.Time
}

// Snapshot is a point-in-time view of manager counters. Denials counts final
// outcomes only (expiry or cancellation of a queued request), so Grants +
// Denials equals resolved attempts.
type Snapshot struct {
	Grants          int64            `json:"grants"`
	Denials         int64            `json:"denials"`
	RateLimitHits   int64            `json:"rate_limit_hits"`
	Expired         int64            `json:"expired"`
	LeaksPrevented  int64            `json:"leaks_prevented"`
	QueueDepth      int              `json:"queue_depth"`
	QueueWaits      int64            `json:"queue_waits"`
	QueueWaitTotal  time.Duration    `json:"queue_wait_total"`
	CurrentUsage    map[string]int64 `json:"current_usage"`
	WindowOccupancy map[string]int   `json:"window_occupancy"`
}

// Manager grants, queues, and denies shared resource requests. All
// check-then-allocate and release-then-drain sequences run under one
// exclusive lock; the manager never calls out to other components while
// holding it.
//
//nolint:govet // Logical field grouping preferred over memory alignment
type Manager struct {
	mu          sync.Mutex
	limits      map[string]Limit
	usage       map[string]int64
	windows     map[string]*slidingWindow
	queue       []*Request // FIFO; head index avoids O(n) pop-front
	queueHead   int
	cancelled   int // nil slots in queue[queueHead:] from cancelled requests
	allocations map[string]*allocation
	logger      *logx.Logger

	grants         int64
	denials        int64
	rateLimitHits  int64
	expired        int64
	leaksPrevented int64
	queueWaits     int64
	queueWaitTotal time.Duration
}

// NewManager creates a resource manager with the given per-type limits.
func NewManager(limits map[string]Limit) *Manager {
	m := &Manager{
		limits:      make(map[string]Limit, len(limits)),
		usage:       make(map[string]int64),
		windows:     make(map[string]*slidingWindow),
		allocations: make(map[string]*allocation),
		logger:      logx.NewLogger("resource"),
	}
	for name, limit := range limits {
		m.limits[name] = limit
		if limit.MaxPerWindow > 0 {
			m.windows[name] = newSlidingWindow(limit.MaxPerWindow, limit.Window)
		}
	}
	return m
}

// Request attempts to allocate the given requirements. If every hard cap and
// sliding window admits the request it is granted immediately and true is
// returned; otherwise the request joins the FIFO queue and false is returned.
// The returned ID identifies the request for Release and Granted.
func (m *Manager) Request(requesterID string, requirements map[string]int64, priority int, timeout time.Duration) (string, bool) {
	req := &Request{
		ID:           uuid.New().String(),
		RequesterID:  requesterID,
		Requirements: requirements,
		Priority:     priority,
		RequestedAt:  time.Now(),
		Timeout:      timeout,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.drainLocked(now)

	// A non-empty queue means earlier requests are still waiting; joining
	// behind them keeps grant order strictly FIFO.
	if m.queueDepthLocked() == 0 && m.fitsLocked(req, now) {
		m.grantLocked(req, now)
		return req.ID, true
	}

	m.queue = append(m.queue, req)
	m.logger.Debug("queued request %s from %s (queue depth %d)", req.ID, requesterID, m.queueDepthLocked())
	return req.ID, false
}

// Granted reports whether a request has been granted. Draining happens here
// too, so pollers observe window expiry without waiting for a release.
func (m *Manager) Granted(requestID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.drainLocked(time.Now())
	_, granted := m.allocations[requestID]
	return granted
}

// Release returns a granted allocation and drains the queue, granting the
// earliest queued requests that now fit. Releasing a request that is still
// queued cancels it, so an abandoned waiter cannot be granted an allocation
// nobody holds.
func (m *Manager) Release(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alloc, exists := m.allocations[requestID]
	if !exists {
		m.cancelQueuedLocked(requestID)
		return
	}
	delete(m.allocations, requestID)
	m.releaseUsageLocked(alloc)
	m.drainLocked(time.Now())
}

// cancelQueuedLocked removes a still-queued request by ID. The slot is nilled
// in place to preserve FIFO positions of everything behind it; drainLocked
// skips nil slots. Caller holds the lock.
func (m *Manager) cancelQueuedLocked(requestID string) {
	for i := m.queueHead; i < len(m.queue); i++ {
		req := m.queue[i]
		if req == nil || req.ID != requestID {
			continue
		}
		m.queue[i] = nil
		m.cancelled++
		m.denials++
		m.logger.Debug("cancelled queued request %s from %s", req.ID, req.RequesterID)
		return
	}
}

// CleanupStale force-releases allocations older than maxAge. This protects
// against leaked grants from crashed or abandoned requesters. Returns the
// number of allocations released.
func (m *Manager) CleanupStale(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cleaned := 0
	for id, alloc := range m.allocations {
		if now.Sub(alloc.grantedAt) > maxAge {
			delete(m.allocations, id)
			m.releaseUsageLocked(alloc)
			m.leaksPrevented++
			cleaned++
			m.logger.Warn("force-released stale allocation %s from %s (age %v)",
				id, alloc.requesterID, now.Sub(alloc.grantedAt).Round(time.Second))
		}
	}
	if cleaned > 0 {
		m.drainLocked(now)
	}
	return cleaned
}

// Metrics returns a snapshot of the manager's counters.
func (m *Manager) Metrics() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	usage := make(map[string]int64, len(m.usage))
	for name, amount := range m.usage {
		usage[name] = amount
	}
	occupancy := make(map[string]int, len(m.windows))
	for name, w := range m.windows {
		occupancy[name] = w.occupancy(now)
	}

	return Snapshot{
		Grants:          m.grants,
		Denials:         m.denials,
		RateLimitHits:   m.rateLimitHits,
		Expired:         m.expired,
		LeaksPrevented:  m.leaksPrevented,
		QueueDepth:      m.queueDepthLocked(),
		QueueWaits:      m.queueWaits,
		QueueWaitTotal:  m.queueWaitTotal,
		CurrentUsage:    usage,
		WindowOccupancy: occupancy,
	}
}

// fitsLocked checks hard caps and window limits. Caller holds the lock.
func (m *Manager) fitsLocked(req *Request, now time.Time) bool {
	for name, amount := range req.Requirements {
		limit, limited := m.limits[name]
		if !limited {
			continue
		}
		if limit.MaxUsage > 0 && m.usage[name]+amount > limit.MaxUsage {
			return false
		}
		if w, windowed := m.windows[name]; windowed && !w.allow(now) {
			m.rateLimitHits++
			return false
		}
	}
	return true
}

// grantLocked records usage and window entries for a fitting request.
// Caller holds the lock and has already checked fitsLocked.
func (m *Manager) grantLocked(req *Request, now time.Time) {
	amounts := make(map[string]int64, len(req.Requirements))
	for name, amount := range req.Requirements {
		m.usage[name] += amount
		amounts[name] = amount
		if w, windowed := m.windows[name]; windowed {
			w.record(now)
		}
	}
	m.allocations[req.ID] = &allocation{
		id:          req.ID,
		requesterID: req.RequesterID,
		amounts:     amounts,
		grantedAt:   now,
	}
	m.grants++
}

// releaseUsageLocked decrements usage counters, clamping at zero.
// Caller holds the lock.
func (m *Manager) releaseUsageLocked(alloc *allocation) {
	for name, amount := range alloc.amounts {
		m.usage[name] -= amount
		if m.usage[name] < 0 {
			m.usage[name] = 0
		}
	}
}

// drainLocked grants queued requests front-first while they fit. Expired
// requests are dropped on scan and never granted. Strict FIFO: the first
// queued request that does not fit blocks everything behind it.
// Caller holds the lock.
func (m *Manager) drainLocked(now time.Time) {
	for m.queueHead < len(m.queue) {
		req := m.queue[m.queueHead]

		if req == nil { // cancelled slot
			m.popFrontLocked()
			m.cancelled--
			continue
		}

		if req.Timeout > 0 && now.Sub(req.RequestedAt) > req.Timeout {
			m.popFrontLocked()
			m.expired++
			m.denials++
			m.logger.Debug("dropped expired queued request %s from %s", req.ID, req.RequesterID)
			continue
		}

		if !m.fitsLocked(req, now) {
			return
		}
		m.grantLocked(req, now)
		m.popFrontLocked()
		m.queueWaits++
		m.queueWaitTotal += now.Sub(req.RequestedAt)
	}
}

// popFrontLocked removes the queue head in O(1), compacting the backing
// slice once the dead prefix dominates. Caller holds the lock.
func (m *Manager) popFrontLocked() {
	m.queue[m.queueHead] = nil
	m.queueHead++
	if m.queueHead > len(m.queue)/2 && m.queueHead > 32 {
		m.queue = append([]*Request(nil), m.queue[m.queueHead:]...)
		m.queueHead = 0
	}
	if m.queueHead == len(m.queue) {
		m.queue = m.queue[:0]
		m.queueHead = 0
	}
}

func (m *Manager) queueDepthLocked() int {
	return len(m.queue) - m.queueHead - m.cancelled
}
