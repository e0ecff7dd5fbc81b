// Package shutdown coordinates graceful termination across every
// goroutine spawned by a WsApi connection or a hast server: a fan-out
// signal tells every task to stop, and a fan-in sentinel lets the owner
// block until every task has actually exited.
package shutdown

import "sync"

// Manager is the single owner of a shutdown sequence. The zero value is
// not usable; construct one with NewManager.
type Manager struct {
	once  sync.Once
	sigCh chan struct{}
	wg    sync.WaitGroup
}

// NewManager returns a ready Manager.
func NewManager() *Manager {
	return &Manager{sigCh: make(chan struct{})}
}

// Subscribe registers one task with the manager and returns its handle.
// The task must call Release exactly once when it exits, directly or via
// a handle obtained from Clone.
func (m *Manager) Subscribe() *Subscriber {
	m.wg.Add(1)
	return &Subscriber{mgr: m}
}

// Shutdown latches the shutdown signal — every current and future
// Subscriber's Done channel closes — then blocks until every outstanding
// Subscriber has called Release. It is safe to call more than once; only
// the first call does anything.
func (m *Manager) Shutdown() {
	m.once.Do(func() { close(m.sigCh) })
	m.wg.Wait()
}

// IsShutdown reports whether Shutdown has been called, without blocking.
func (m *Manager) IsShutdown() bool {
	select {
	case <-m.sigCh:
		return true
	default:
		return false
	}
}

// Subscriber is one task's handle on the shutdown signal. A Subscriber
// must be released exactly once; Release is safe to call more than once,
// but only the first call counts toward the fan-in sentinel.
type Subscriber struct {
	mgr  *Manager
	once sync.Once
}

// Done returns a channel that closes once the manager's Shutdown has been
// called.
func (s *Subscriber) Done() <-chan struct{} {
	return s.mgr.sigCh
}

// Release tells the manager this task has exited. A goroutine that
// spawns children before exiting should call Clone for each child first,
// so the fan-in sentinel accounts for them too.
func (s *Subscriber) Release() {
	s.once.Do(func() { s.mgr.wg.Done() })
}

// Clone hands out an additional handle on the same manager, for a child
// task the caller is about to spawn. The child must Release its own
// handle independently of the parent's.
func (s *Subscriber) Clone() *Subscriber {
	return s.mgr.Subscribe()
}
