// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
)

// SessionManager keeps the named sessions of an application.
//
// Clients configured with WithSessionManager register themselves on login
// and unregister on logout. The owner of the manager calls Shutdown when the
// application exits, and may call HandleSignals so that an interrupt drains
// every watcher of every session.
//
// Example:
//
//	mgr := ucs.NewSessionManager()
//	stop := mgr.HandleSignals(ctx)
//	defer stop()
//	defer mgr.Shutdown(context.Background())
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Client
	logger   Logger
}

// NewSessionManager creates an empty manager. An optional logger receives
// shutdown and signal messages.
func NewSessionManager(logger ...Logger) *SessionManager {
	m := &SessionManager{sessions: make(map[string]*Client), logger: &NoOpLogger{}}
	if len(logger) > 0 && logger[0] != nil {
		m.logger = logger[0]
	}
	return m
}

// Register stores c under name, replacing any previous session of that name
func (m *SessionManager) Register(name string, c *Client) {
	if c == nil {
		return
	}
	m.mu.Lock()
	m.sessions[name] = c
	m.mu.Unlock()
	m.logger.Debug(context.Background(), "UCS session registered", "name", name, "host", c.Host)
}

// Unregister removes the session stored under name
func (m *SessionManager) Unregister(name string) {
	m.mu.Lock()
	delete(m.sessions, name)
	m.mu.Unlock()
}

// Get returns the session stored under name
func (m *SessionManager) Get(name string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[name]
	return c, ok
}

// Names returns the registered session names in sorted order
func (m *SessionManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sessions returns the registered clients ordered by name
func (m *SessionManager) Sessions() []*Client {
	names := m.Names()
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Client, 0, len(names))
	for _, name := range names {
		if c, ok := m.sessions[name]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of registered sessions
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// DrainWatches deregisters every watcher of every session and returns the
// total count.
func (m *SessionManager) DrainWatches() int {
	n := 0
	for _, c := range m.Sessions() {
		n += c.DrainWatches()
	}
	return n
}

// Shutdown logs out every session. Sessions whose logout fails stay
// registered and their errors are joined into the result.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	var errs []error
	for _, c := range m.Sessions() {
		if err := c.Logout(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	m.logger.Info(ctx, "UCS session manager shut down", "failed", len(errs))
	return errors.Join(errs...)
}

// HandleSignals drains all watchers when the process receives one of sigs
// (SIGINT and SIGTERM when none are given). The returned function stops the
// handler; it also stops when ctx is done.
func (m *SessionManager) HandleSignals(ctx context.Context, sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				n := m.DrainWatches()
				m.logger.Warn(ctx, "UCS watches drained on signal", "signal", sig.String(), "watchers", n)
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		cancel()
		<-done
	}
}
