package mcpmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ServerSummary is a point-in-time view of one registered server.
type ServerSummary struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Transport    TransportKind `json:"transport"`
	State        State         `json:"state"`
	Generation   uint64        `json:"generation"`
	ConnectedAt  *time.Time    `json:"connectedAt,omitempty"`
	LastActivity *time.Time    `json:"lastActivity,omitempty"`
	LastError    string        `json:"lastError,omitempty"`
}

// Manager owns every backend session. Sessions are created lazily on first
// use, cached one per server id, and released by Evict or Close.
type Manager struct {
	registry  *Registry
	opts      ManagerOptions
	logger    *zap.Logger
	rpcLogger RPCLogger

	// ctx outlives individual calls; transports are bound to it so a session
	// survives the request that created it.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	connects singleflight.Group
}

// entry is the per-server connection state. Its mutex serializes reads and
// transitions for that server only.
type entry struct {
	id  string
	cfg ServerConfig

	mu           sync.Mutex
	state        State
	session      *mcp.ClientSession
	generation   uint64
	connectedAt  time.Time
	lastActivity time.Time
	lastErr      error
}

// NewManager builds a Manager over reg. A nil registry behaves as an empty one.
// Callers can provide nil options to fall back to defaults.
func NewManager(reg *Registry, opts *ManagerOptions) *Manager {
	if reg == nil {
		reg = &Registry{servers: map[string]ServerConfig{}}
	}
	options := opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		registry: reg,
		opts:     options,
		logger:   options.Logger.Named("mcpmgr"),
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*entry),
	}
	m.rpcLogger = m.resolveRPCLogger()
	return m
}

// Registry exposes the immutable server registry backing the manager.
func (m *Manager) Registry() *Registry { return m.registry }

// ListServers returns the registered server ids in sorted order.
func (m *Manager) ListServers() []string { return m.registry.IDs() }

// HasServer reports whether a server id is registered.
func (m *Manager) HasServer(serverID string) bool { return m.registry.Has(serverID) }

// GetServerConfig returns a copy of the configuration for serverID.
func (m *Manager) GetServerConfig(serverID string) (ServerConfig, error) {
	return m.registry.Resolve(serverID)
}

// GetConnection returns the cached session for serverID, establishing one if
// none exists. Concurrent callers for the same uncached id share a single
// connection attempt and observe the same session or the same error. A caller
// whose ctx ends stops waiting without cancelling the shared attempt.
func (m *Manager) GetConnection(ctx context.Context, serverID string) (*mcp.ClientSession, error) {
	e, err := m.lookup(serverID)
	if err != nil {
		return nil, err
	}
	if session := e.cached(); session != nil {
		return session, nil
	}
	ch := m.connects.DoChan(serverID, func() (any, error) {
		return m.connect(e)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*mcp.ClientSession), nil
	}
}

// ConnectToServer eagerly establishes the session for serverID.
func (m *Manager) ConnectToServer(ctx context.Context, serverID string) error {
	_, err := m.GetConnection(ctx, serverID)
	return err
}

// WithSession runs fn against the session for serverID. When fn fails because
// the transport is gone, the session is evicted before a *TransportBrokenError
// is returned, so the next call reconnects. Other failures on a live session
// are reported as *RemoteError and leave the session cached.
func (m *Manager) WithSession(ctx context.Context, serverID string, fn func(context.Context, *mcp.ClientSession) error) error {
	session, err := m.GetConnection(ctx, serverID)
	if err != nil {
		return err
	}
	e, err := m.lookup(serverID)
	if err != nil {
		return err
	}
	callCtx := ctx
	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}
	err = fn(callCtx, session)
	e.touch()
	if err == nil {
		return nil
	}
	var remote *RemoteError
	switch {
	case ctx.Err() != nil:
		return err
	case isTransportFailure(err):
		m.evictSession(e, session, err)
		return &TransportBrokenError{ServerID: serverID, Err: err}
	case callCtx.Err() != nil:
		return err
	case errors.As(err, &remote):
		if remote.ServerID == "" {
			remote.ServerID = serverID
		}
		return remote
	default:
		return &RemoteError{ServerID: serverID, Err: err}
	}
}

// Evict drops the cached session for serverID, if any, and closes it. For
// subprocess servers this closes stdin, waits for the configured grace period,
// then signals and finally kills the process. ctx bounds how long Evict waits
// for the close to finish; the close itself continues in the background.
func (m *Manager) Evict(ctx context.Context, serverID string) error {
	m.mu.Lock()
	e := m.entries[serverID]
	m.mu.Unlock()
	if e == nil {
		return nil
	}
	e.mu.Lock()
	session := e.session
	e.session = nil
	if e.state != StateConnecting {
		e.moveTo(StateAbsent)
	}
	e.mu.Unlock()
	if session == nil {
		return nil
	}
	m.logger.Info("evicting session", zap.String("server", serverID))
	return closeSession(ctx, session)
}

// Close evicts every cached session in parallel and rejects further use of
// the manager. Errors from individual closes are joined.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var (
		errMu sync.Mutex
		errs  []error
	)
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			if err := m.Evict(ctx, id); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	m.cancel()
	return errors.Join(errs...)
}

// State reports the lifecycle state for serverID. Unknown and never-used ids
// are StateAbsent.
func (m *Manager) State(serverID string) State {
	m.mu.Lock()
	e := m.entries[serverID]
	m.mu.Unlock()
	if e == nil {
		return StateAbsent
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot returns a summary for every registered server without touching the
// network.
func (m *Manager) Snapshot() []ServerSummary {
	ids := m.registry.IDs()
	out := make([]ServerSummary, 0, len(ids))
	for _, id := range ids {
		cfg, _ := m.registry.Resolve(id)
		summary := ServerSummary{ID: id, Name: cfg.DisplayName(), Transport: TransportOf(cfg), State: StateAbsent}
		m.mu.Lock()
		e := m.entries[id]
		m.mu.Unlock()
		if e != nil {
			e.mu.Lock()
			summary.State = e.state
			summary.Generation = e.generation
			if !e.connectedAt.IsZero() && e.session != nil {
				at := e.connectedAt
				summary.ConnectedAt = &at
			}
			if !e.lastActivity.IsZero() {
				at := e.lastActivity
				summary.LastActivity = &at
			}
			if e.lastErr != nil {
				summary.LastError = e.lastErr.Error()
			}
			e.mu.Unlock()
		}
		out = append(out, summary)
	}
	return out
}

func (m *Manager) lookup(serverID string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if e, ok := m.entries[serverID]; ok {
		return e, nil
	}
	cfg, err := m.registry.Resolve(serverID)
	if err != nil {
		return nil, err
	}
	e := &entry{id: serverID, cfg: cfg, state: StateAbsent}
	m.entries[serverID] = e
	return e, nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// connect runs at most once at a time per server id (see GetConnection).
func (m *Manager) connect(e *entry) (*mcp.ClientSession, error) {
	e.mu.Lock()
	if e.state == StateConnected && e.session != nil {
		session := e.session
		e.mu.Unlock()
		return session, nil
	}
	e.moveTo(StateConnecting)
	e.mu.Unlock()

	start := time.Now()
	session, err := m.establish(e.cfg)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil && m.isClosed() {
		_ = session.Close()
		e.moveTo(StateAbsent)
		return nil, ErrManagerClosed
	}
	if err != nil {
		e.moveTo(StateFailed)
		e.lastErr = err
		m.logger.Warn("connect failed",
			zap.String("server", e.id),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, &ConnectionError{ServerID: e.id, Err: err}
	}
	now := time.Now()
	e.moveTo(StateConnected)
	e.session = session
	e.generation++
	e.connectedAt = now
	e.lastActivity = now
	e.lastErr = nil
	m.logger.Info("connected",
		zap.String("server", e.id),
		zap.String("transport", string(TransportOf(e.cfg))),
		zap.Uint64("generation", e.generation),
		zap.Duration("duration", time.Since(start)))
	go m.monitorSession(e, session)
	return session, nil
}

func (m *Manager) establish(cfg ServerConfig) (*mcp.ClientSession, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = m.opts.DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(m.ctx, timeout)
	defer cancel()

	transports, err := m.candidateTransports(ctx, cfg)
	if err != nil {
		return nil, err
	}
	impl := &mcp.Implementation{Name: m.opts.ClientName, Version: m.opts.ClientVersion}
	clientOpts := m.opts.ClientOptions

	var errs []error
	for _, transport := range transports {
		var wrapped mcp.Transport = &detachedTransport{ctx: m.ctx, delegate: transport}
		if m.rpcLogger != nil {
			wrapped = &loggingTransport{serverID: cfg.ID, delegate: wrapped, logger: m.rpcLogger}
		}
		client := mcp.NewClient(impl, &clientOpts)
		session, err := client.Connect(ctx, wrapped, nil)
		if err == nil {
			return session, nil
		}
		errs = append(errs, fmt.Errorf("%T: %w", transport, err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 1 {
		return nil, errors.Unwrap(errs[0])
	}
	return nil, errors.Join(errs...)
}

// monitorSession evicts the entry once the remote side closes the session, so
// the next call re-enters Connecting instead of reusing a dead handle.
func (m *Manager) monitorSession(e *entry, session *mcp.ClientSession) {
	err := session.Wait()
	if err == nil {
		err = mcp.ErrConnectionClosed
	}
	m.evictSession(e, session, err)
}

// evictSession removes session from e if it is still the cached one.
func (m *Manager) evictSession(e *entry, session *mcp.ClientSession, cause error) {
	e.mu.Lock()
	if e.session != session {
		e.mu.Unlock()
		return
	}
	e.session = nil
	e.moveTo(StateAbsent)
	e.lastErr = cause
	e.mu.Unlock()
	m.logger.Warn("session lost", zap.String("server", e.id), zap.Error(cause))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.TerminateGrace+defaultTerminateGrace)
		defer cancel()
		_ = closeSession(ctx, session)
	}()
}

func (e *entry) cached() *mcp.ClientSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateConnected && e.session != nil {
		e.lastActivity = time.Now()
		return e.session
	}
	return nil
}

// moveTo applies a lifecycle step. Callers hold e.mu. An illegal step is a
// bug in the manager, not a runtime condition.
func (e *entry) moveTo(next State) {
	if e.state == next {
		return
	}
	if !e.state.CanTransition(next) {
		panic(fmt.Sprintf("mcpmgr: %s: illegal transition %s -> %s", e.id, e.state, next))
	}
	e.state = next
}

func (e *entry) touch() {
	e.mu.Lock()
	e.lastActivity = time.Now()
	e.mu.Unlock()
}

func closeSession(ctx context.Context, session *mcp.ClientSession) error {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan error, 1)
	go func() {
		done <- session.Close()
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
