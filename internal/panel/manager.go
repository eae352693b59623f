package panel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jengzang/beacons-backend-go/internal/models"
)

// Limits bound how many sessions stay open and for how long
type Limits struct {
	// MaxSessions closes the least recently used session once exceeded; 0 is unbounded
	MaxSessions int
	// IdleTimeout closes sessions not used for this long; 0 keeps them until removed
	IdleTimeout time.Duration
}

// Manager owns the dashboards of all live sessions
type Manager struct {
	deps   Deps
	limits Limits
	now    func() time.Time

	mu         sync.Mutex
	dashboards map[string]*Dashboard

	stop     chan struct{}
	stopOnce sync.Once
	reaped   chan struct{}
}

// NewManager creates a session manager and, when limits.IdleTimeout is set,
// starts reaping idle sessions in the background until Close
func NewManager(deps Deps, limits Limits) *Manager {
	return newManager(deps, limits, time.Now)
}

func newManager(deps Deps, limits Limits, now func() time.Time) *Manager {
	m := &Manager{
		deps:       deps,
		limits:     limits,
		now:        now,
		dashboards: make(map[string]*Dashboard),
		stop:       make(chan struct{}),
		reaped:     make(chan struct{}),
	}
	if limits.IdleTimeout > 0 {
		go m.reapLoop(max(limits.IdleTimeout/4, time.Millisecond))
	} else {
		close(m.reaped)
	}
	return m
}

// Open returns the dashboard of session id, creating it on first use
func (m *Manager) Open(ctx context.Context, id string, companyID int64) (*Dashboard, error) {
	m.mu.Lock()
	if d, ok := m.dashboards[id]; ok {
		d.lastSeen = m.now()
		m.mu.Unlock()
		return d, nil
	}

	var evicted []*Dashboard
	if m.limits.MaxSessions > 0 {
		for len(m.dashboards) >= m.limits.MaxSessions {
			evicted = append(evicted, m.takeOldestLocked())
		}
	}

	d, err := newDashboard(id, companyID, m.deps)
	if err != nil {
		m.mu.Unlock()
		m.closeReaped(evicted, "session cap")
		return nil, fmt.Errorf("failed to open session %s: %w", id, err)
	}
	d.lastSeen = m.now()
	m.dashboards[id] = d
	n := len(m.dashboards)
	m.mu.Unlock()

	m.closeReaped(evicted, "session cap")
	m.deps.Metrics.SetSessions(n)

	if err := d.loadEvents(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (m *Manager) takeOldestLocked() *Dashboard {
	var oldest *Dashboard
	for _, d := range m.dashboards {
		if oldest == nil || d.lastSeen.Before(oldest.lastSeen) {
			oldest = d
		}
	}
	delete(m.dashboards, oldest.id)
	return oldest
}

// Get returns the dashboard of an open session
func (m *Manager) Get(id string) (*Dashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.dashboards[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	d.lastSeen = m.now()
	return d, nil
}

// Remove closes a session
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	d, ok := m.dashboards[id]
	delete(m.dashboards, id)
	n := len(m.dashboards)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	d.Close()
	m.deps.Metrics.SetSessions(n)
	return nil
}

// Reap closes every session idle for longer than the idle timeout and returns their ids
func (m *Manager) Reap() []string {
	if m.limits.IdleTimeout <= 0 {
		return nil
	}
	cutoff := m.now().Add(-m.limits.IdleTimeout)

	m.mu.Lock()
	var idle []*Dashboard
	for id, d := range m.dashboards {
		if d.lastSeen.Before(cutoff) {
			idle = append(idle, d)
			delete(m.dashboards, id)
		}
	}
	m.mu.Unlock()

	m.closeReaped(idle, "idle")

	ids := make([]string, 0, len(idle))
	for _, d := range idle {
		ids = append(ids, d.id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) closeReaped(dashboards []*Dashboard, reason string) {
	if len(dashboards) == 0 {
		return
	}
	for _, d := range dashboards {
		d.Close()
		d.log.Info().Str("reason", reason).Msg("session reaped")
		m.deps.Metrics.SessionReaped()
	}
	m.deps.Metrics.SetSessions(m.Len())
}

func (m *Manager) reapLoop(interval time.Duration) {
	defer close(m.reaped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Reap()
		case <-m.stop:
			return
		}
	}
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dashboards)
}

// Close stops the reaper and closes every session
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.reaped

	m.mu.Lock()
	dashboards := m.dashboards
	m.dashboards = make(map[string]*Dashboard)
	m.mu.Unlock()

	for _, d := range dashboards {
		d.Close()
	}
	m.deps.Metrics.SetSessions(0)
}
