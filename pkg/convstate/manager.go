package convstate

import (
	"context"
	"sync"
	"time"

	"github.com/charlabot/charla/pkg/logger"
)

// Store persists context rows. The manager stays authoritative in
// memory; the store is write-through so state survives a restart.
type Store interface {
	Save(ctx context.Context, c *Context) error
	LoadActive(ctx context.Context) ([]*Context, error)
}

// Manager owns every open context. All reads hand out clones, so a
// caller can never mutate manager state behind the lock's back.
type Manager struct {
	mu           sync.RWMutex
	contexts     map[string]*Context
	userLocks    sync.Map
	store        Store
	ttl          time.Duration
	historyLimit int
	clock        func() time.Time
}

// NewManager creates a Manager. store may be nil for memory-only
// operation (tests, ephemeral deployments).
func NewManager(store Store, ttl time.Duration, historyLimit int) *Manager {
	return &Manager{
		contexts:     make(map[string]*Context),
		store:        store,
		ttl:          ttl,
		historyLimit: historyLimit,
		clock:        time.Now,
	}
}

// SetClock replaces the time source. Call before the manager is shared
// between goroutines.
func (m *Manager) SetClock(clock func() time.Time) {
	m.clock = clock
}

// TTL returns the configured context lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Load restores active contexts from the store. Rows that expired while
// the process was down are cleared instead of resurrected.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	rows, err := m.store.LoadActive(ctx)
	if err != nil {
		return err
	}

	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range rows {
		if !c.Active {
			continue
		}
		if now.After(c.ExpiresAt) {
			c.Active = false
			m.persist(ctx, c)
			continue
		}
		if c.Data == nil {
			c.Data = make(map[string]any)
		}
		m.contexts[c.UserID] = c
	}
	return nil
}

// WithLock serializes fn against every other WithLock call for the same
// user. The dispatcher wraps each message's read-decide-write span in
// this, and the sweeper uses it before clearing, so same-user operations
// never interleave while distinct users run in parallel.
func (m *Manager) WithLock(userID string, fn func()) {
	v, _ := m.userLocks.LoadOrStore(userID, &sync.Mutex{})
	lock := v.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()
	fn()
}

// Get returns the user's active context, applying expiry-on-read: an
// expired context is cleared as a side effect and reported absent.
func (m *Manager) Get(ctx context.Context, userID string) (*Context, bool) {
	m.mu.Lock()
	c, ok := m.contexts[userID]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	if m.clock().After(c.ExpiresAt) {
		c.Active = false
		snapshot := cloneContext(c)
		delete(m.contexts, userID)
		m.mu.Unlock()
		m.persist(ctx, snapshot)
		return nil, false
	}
	snapshot := cloneContext(c)
	m.mu.Unlock()
	return snapshot, true
}

// Set creates or merges the user's context and refreshes its lifetime.
// When the step changes, the previous step is pushed onto the bounded
// step history. A context that already expired is discarded first, so
// stale data never leaks into the new exchange.
func (m *Manager) Set(ctx context.Context, userID string, p Partial) (*Context, error) {
	now := m.clock()

	m.mu.Lock()
	c, ok := m.contexts[userID]
	if ok && now.After(c.ExpiresAt) {
		c.Active = false
		expired := cloneContext(c)
		delete(m.contexts, userID)
		ok = false
		m.persist(ctx, expired)
	}

	if !ok {
		c = &Context{
			UserID:  userID,
			Type:    p.Type,
			Step:    p.Step,
			Data:    make(map[string]any),
			Created: now,
			Active:  true,
		}
		m.contexts[userID] = c
	} else {
		if p.Type != "" {
			c.Type = p.Type
		}
		if p.Step != "" && p.Step != c.Step {
			if c.Step != "" {
				m.pushHistory(c)
			}
			c.Step = p.Step
		}
	}

	for k, v := range p.Data {
		c.Data[k] = v
	}
	c.LastInteraction = now
	c.ExpiresAt = now.Add(m.ttl)

	snapshot := cloneContext(c)
	m.mu.Unlock()

	return snapshot, m.persist(ctx, snapshot)
}

// Clear marks the user's context inactive. Clearing an absent context
// is a no-op.
func (m *Manager) Clear(ctx context.Context, userID string) error {
	m.mu.Lock()
	c, ok := m.contexts[userID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	c.Active = false
	snapshot := cloneContext(c)
	delete(m.contexts, userID)
	m.mu.Unlock()

	return m.persist(ctx, snapshot)
}

// Pause snapshots the current step into the data payload and parks the
// context at the idle step. Pausing an already-paused context is a no-op.
func (m *Manager) Pause(ctx context.Context, userID string) (*Context, error) {
	now := m.clock()

	m.mu.Lock()
	c, ok := m.activeLocked(userID, now)
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoContext
	}
	if c.Step != StepIdle {
		c.Data[PausedStepKey] = c.Step
		m.pushHistory(c)
		c.Step = StepIdle
	}
	c.LastInteraction = now
	c.ExpiresAt = now.Add(m.ttl)
	snapshot := cloneContext(c)
	m.mu.Unlock()

	return snapshot, m.persist(ctx, snapshot)
}

// Resume restores the step snapshot taken by Pause.
func (m *Manager) Resume(ctx context.Context, userID string) (*Context, error) {
	now := m.clock()

	m.mu.Lock()
	c, ok := m.activeLocked(userID, now)
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoContext
	}
	paused, ok := c.Data[PausedStepKey].(string)
	if !ok || paused == "" {
		m.mu.Unlock()
		return nil, ErrNotPaused
	}
	c.Step = paused
	delete(c.Data, PausedStepKey)
	if history := c.History(); len(history) > 0 && history[len(history)-1] == paused {
		c.Data[StepHistoryKey] = history[:len(history)-1]
	}
	c.LastInteraction = now
	c.ExpiresAt = now.Add(m.ttl)
	snapshot := cloneContext(c)
	m.mu.Unlock()

	return snapshot, m.persist(ctx, snapshot)
}

// Back pops the most recent step-history entry and returns there.
func (m *Manager) Back(ctx context.Context, userID string) (*Context, error) {
	now := m.clock()

	m.mu.Lock()
	c, ok := m.activeLocked(userID, now)
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoContext
	}
	history := c.History()
	if len(history) == 0 {
		m.mu.Unlock()
		return nil, ErrNoHistory
	}
	c.Step = history[len(history)-1]
	c.Data[StepHistoryKey] = history[:len(history)-1]
	delete(c.Data, PausedStepKey)
	c.LastInteraction = now
	c.ExpiresAt = now.Add(m.ttl)
	snapshot := cloneContext(c)
	m.mu.Unlock()

	return snapshot, m.persist(ctx, snapshot)
}

// Reset clears the context and reports whether one was open.
func (m *Manager) Reset(ctx context.Context, userID string) (bool, error) {
	m.mu.RLock()
	_, ok := m.contexts[userID]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, m.Clear(ctx, userID)
}

// Sweep clears every expired context and returns how many it cleared.
// Each candidate is re-checked under its user lock, so a message that
// refreshes the context mid-sweep wins.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.clock()

	m.mu.RLock()
	candidates := make([]string, 0)
	for userID, c := range m.contexts {
		if now.After(c.ExpiresAt) {
			candidates = append(candidates, userID)
		}
	}
	m.mu.RUnlock()

	cleared := 0
	for _, userID := range candidates {
		m.WithLock(userID, func() {
			m.mu.Lock()
			c, ok := m.contexts[userID]
			if !ok || !m.clock().After(c.ExpiresAt) {
				m.mu.Unlock()
				return
			}
			c.Active = false
			snapshot := cloneContext(c)
			delete(m.contexts, userID)
			m.mu.Unlock()

			if err := m.persist(ctx, snapshot); err != nil {
				logger.WarnCF("convstate", "failed to persist swept context", map[string]any{
					"user_id": userID,
					"error":   err.Error(),
				})
			}
			cleared++
		})
	}
	return cleared
}

// ActiveCount returns how many contexts are currently open.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.contexts)
}

// activeLocked returns the live context for userID, discarding it first
// if it expired. Caller holds m.mu.
func (m *Manager) activeLocked(userID string, now time.Time) (*Context, bool) {
	c, ok := m.contexts[userID]
	if !ok {
		return nil, false
	}
	if now.After(c.ExpiresAt) {
		c.Active = false
		expired := cloneContext(c)
		delete(m.contexts, userID)
		m.persist(context.Background(), expired)
		return nil, false
	}
	return c, true
}

// pushHistory appends the current step to the bounded history list.
// Caller holds m.mu.
func (m *Manager) pushHistory(c *Context) {
	if m.historyLimit == 0 {
		return
	}
	history := c.History()
	history = append(history, c.Step)
	if len(history) > m.historyLimit {
		history = history[len(history)-m.historyLimit:]
	}
	c.Data[StepHistoryKey] = history
}

func (m *Manager) persist(ctx context.Context, c *Context) error {
	if m.store == nil {
		return nil
	}
	return m.store.Save(ctx, c)
}
