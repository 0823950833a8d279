package notifications

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/gophbell/internal/client/realtime"
	"github.com/dmitrijs2005/gophbell/internal/common"
	"github.com/dmitrijs2005/gophbell/internal/logging"
	"github.com/dmitrijs2005/gophbell/internal/observable"
)

const (
	DefaultReconnectDelay = 5 * time.Second

	teardownTimeout = 5 * time.Second
)

// State is the manager's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// CountLoader fetches the authoritative unread count.
type CountLoader interface {
	UnreadCount(ctx context.Context) (int, error)
}

// Subscriber opens realtime channels. *realtime.Client implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, spec realtime.ChannelSpec, onChange func(realtime.ChangeEvent), onStatus func(realtime.Status, error)) (realtime.Subscription, error)
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. The default wraps time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// Listener receives the unread count.
type Listener = observable.Listener[int]

type ManagerOptions struct {
	ReconnectDelay time.Duration
	// Schema and Table name the watched table; defaults public.notifications.
	Schema    string
	Table     string
	Logger    logging.Logger
	AfterFunc AfterFunc
}

type Manager struct {
	loader    CountLoader
	sub       Subscriber
	log       logging.Logger
	delay     time.Duration
	spec      realtime.ChannelSpec
	afterFunc AfterFunc

	count *observable.Value[int]

	// opMu serializes user switches, retries and Stop so that connecting
	// never overlaps with another connect or a teardown.
	opMu sync.Mutex

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	userID  string
	gen     atomic.Uint64
	attempt uint64
	channel realtime.Subscription
	retry   Timer
	state   State
	reloads sync.WaitGroup

	// dialCancel aborts the subscribe in flight, if any.
	dialCancel context.CancelFunc
}

func NewManager(loader CountLoader, sub Subscriber, opts ManagerOptions) *Manager {
	m := &Manager{
		loader:    loader,
		sub:       sub,
		log:       opts.Logger,
		delay:     opts.ReconnectDelay,
		spec:      realtime.ChannelSpec{Schema: opts.Schema, Table: opts.Table, Event: "*"},
		afterFunc: opts.AfterFunc,
		count:     observable.New(0),
	}
	if m.log == nil {
		m.log = logging.Nop()
	}
	if m.delay <= 0 {
		m.delay = DefaultReconnectDelay
	}
	if m.spec.Schema == "" {
		m.spec.Schema = "public"
	}
	if m.spec.Table == "" {
		m.spec.Table = "notifications"
	}
	if m.afterFunc == nil {
		m.afterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return m
}

// Start makes the manager accept users. Reloads and channels started later
// live until Stop or until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
}

// Stop drops the user, closes the channel, cancels a pending retry and waits
// for in-flight reloads. The count goes back to 0.
func (m *Manager) Stop() {
	m.abortDial(func() bool { return true })

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	old := m.teardownLocked()
	hadUser := m.userID != ""
	m.userID = ""
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	m.closeChannel(old)
	cancel()
	m.reloads.Wait()

	if hadUser {
		m.count.Reset(0)
	}
}

// SetUserID switches the watched user; "" means signed out. Setting the
// current id again does nothing.
func (m *Manager) SetUserID(id string) error {
	m.abortDial(func() bool { return id != m.userID })

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return common.ErrNotStarted
	}
	if id == m.userID {
		m.mu.Unlock()
		return nil
	}

	old := m.teardownLocked()
	m.userID = id
	gen := m.gen.Load()
	ctx := m.ctx
	if id != "" {
		m.state = StateConnecting
	}
	m.mu.Unlock()

	m.closeChannel(old)

	if id == "" {
		m.log.Info(ctx, "notifications: user cleared")
		m.count.Reset(0)
		return nil
	}

	m.log.Info(ctx, "notifications: user set", "user_id", id)
	m.reload(gen)
	m.connect(gen)
	return nil
}

// Disconnect closes the channel, cancels a pending retry and forgets the
// user. The cached count is kept. Calling it again is a no-op.
func (m *Manager) Disconnect() {
	m.abortDial(func() bool { return true })

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	old := m.teardownLocked()
	m.userID = ""
	m.mu.Unlock()

	m.closeChannel(old)
}

// Subscribe registers l and calls it with the current count before
// returning. Listeners run in registration order on every change.
func (m *Manager) Subscribe(l Listener) (unsubscribe func()) {
	return m.count.Subscribe(l)
}

// Count returns the cached unread count.
func (m *Manager) Count() int {
	return m.count.Get()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// UserID returns the watched user, "" if none.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// Refresh reloads the count for the current user in the background.
func (m *Manager) Refresh() {
	m.mu.Lock()
	hasUser := m.userID != ""
	m.mu.Unlock()

	if hasUser {
		m.reload(m.gen.Load())
	}
}

// abortDial cancels a subscribe in flight when cond, evaluated under mu,
// holds. It runs before opMu is taken so that a hung dial cannot hold up a
// teardown.
func (m *Manager) abortDial(cond func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dialCancel != nil && cond() {
		m.dialCancel()
	}
}

// teardownLocked invalidates callbacks of the current generation, cancels a
// pending retry and returns the open channel for the caller to close after
// releasing mu.
func (m *Manager) teardownLocked() realtime.Subscription {
	m.gen.Add(1)
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	old := m.channel
	m.channel = nil
	m.state = StateDisconnected
	return old
}

func (m *Manager) closeChannel(ch realtime.Subscription) {
	if ch == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := ch.Unsubscribe(ctx); err != nil {
		m.log.Warn(ctx, "notifications: channel teardown failed", "error", err)
	}
}

// connect opens the channel for generation gen. Callers hold opMu.
func (m *Manager) connect(gen uint64) {
	m.mu.Lock()
	if !m.running || m.userID == "" || gen != m.gen.Load() {
		m.mu.Unlock()
		return
	}
	m.attempt++
	attempt := m.attempt
	userID := m.userID
	ctx := m.ctx
	dialCtx, cancel := context.WithCancel(ctx)
	m.dialCancel = cancel
	m.state = StateConnecting
	m.mu.Unlock()

	spec := m.spec
	spec.Filter = "user_id=eq." + userID

	ch, err := m.sub.Subscribe(dialCtx, spec,
		func(ev realtime.ChangeEvent) { m.onChange(gen, ev) },
		func(st realtime.Status, err error) { m.onStatus(gen, attempt, st, err) },
	)

	m.mu.Lock()
	m.dialCancel = nil
	cancel()
	if err != nil {
		if gen == m.gen.Load() && attempt == m.attempt {
			m.log.Warn(ctx, "notifications: subscribe failed", "user_id", userID, "error", err, "retry_in", m.delay)
			m.scheduleRetryLocked(gen)
		}
		m.mu.Unlock()
		return
	}
	if gen != m.gen.Load() || attempt != m.attempt {
		// Superseded, or the channel already failed and a retry is pending.
		m.mu.Unlock()
		m.closeChannel(ch)
		return
	}
	m.channel = ch
	m.mu.Unlock()
}

func (m *Manager) onStatus(gen, attempt uint64, st realtime.Status, err error) {
	m.mu.Lock()
	if gen != m.gen.Load() || attempt != m.attempt {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx

	if st == realtime.StatusSubscribed {
		m.state = StateConnected
		m.mu.Unlock()
		m.log.Info(ctx, "notifications: channel subscribed")
		return
	}

	m.log.Warn(ctx, "notifications: channel lost", "status", st, "error", err, "retry_in", m.delay)
	m.attempt++
	old := m.channel
	m.channel = nil
	m.state = StateConnecting
	m.scheduleRetryLocked(gen)
	m.mu.Unlock()

	m.closeChannel(old)
}

// scheduleRetryLocked arms the single reconnect timer for gen.
func (m *Manager) scheduleRetryLocked(gen uint64) {
	if !m.running || m.userID == "" {
		return
	}
	if m.retry != nil {
		m.retry.Stop()
	}
	m.retry = m.afterFunc(m.delay, func() { m.retryNow(gen) })
}

func (m *Manager) retryNow(gen uint64) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if gen != m.gen.Load() {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	m.mu.Unlock()

	m.connect(gen)
}

func (m *Manager) onChange(gen uint64, ev realtime.ChangeEvent) {
	if gen != m.gen.Load() {
		return
	}
	m.log.Debug(context.Background(), "notifications: change event", "type", ev.Type)
	m.reload(gen)
}

// reload fetches the count in the background. Results for a generation that
// is no longer current are dropped; among reloads of the same generation the
// last to finish wins.
func (m *Manager) reload(gen uint64) {
	m.mu.Lock()
	if !m.running || gen != m.gen.Load() {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	m.reloads.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.reloads.Done()

		n, err := m.loader.UnreadCount(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.log.Warn(ctx, "notifications: unread count reload failed", "error", err)
			}
			return
		}
		n = max(n, 0)

		m.count.Update(func(cur int) (int, bool) {
			if gen != m.gen.Load() {
				return cur, false
			}
			return n, n != cur
		})
	}()
}
