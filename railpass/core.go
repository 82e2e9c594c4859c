// Package railpass is the lifecycle surface a host application drives: it
// starts and stops the identity broadcast and the reconciliation loop, which
// otherwise know nothing about each other.
package railpass

import (
	"context"
	"sync"

	"github.com/user/railpass-blue/broadcast"
	"github.com/user/railpass-blue/errs"
	"github.com/user/railpass-blue/logger"
	"github.com/user/railpass-blue/reconcile"
)

// Broadcaster is satisfied by *broadcast.Manager
type Broadcaster interface {
	Start(ctx context.Context, identity string) error
	Stop()
	State() broadcast.State
}

// Reconciler is satisfied by *reconcile.Poller
type Reconciler interface {
	Start(identity string) error
	Stop()
	Active() bool
	ForceUpdate(ctx context.Context) (reconcile.Snapshot, error)
}

// Core ties one broadcaster and one reconciler to the host lifecycle
type Core struct {
	mu          sync.Mutex
	broadcaster Broadcaster
	reconciler  Reconciler
	identity    string
}

// New creates a core over the two components
func New(broadcaster Broadcaster, reconciler Reconciler) *Core {
	return &Core{broadcaster: broadcaster, reconciler: reconciler}
}

// StartBroadcast puts identity on air. It blocks only for the radio's
// configure/start call.
func (c *Core) StartBroadcast(ctx context.Context, identity string) error {
	if identity == "" {
		return errs.NoIdentity("broadcast")
	}
	c.remember(identity)
	return c.broadcaster.Start(ctx, identity)
}

// StopBroadcast ends advertising; safe in any state
func (c *Core) StopBroadcast() {
	c.broadcaster.Stop()
}

// StartReconciliation begins polling for identity and returns immediately
func (c *Core) StartReconciliation(identity string) error {
	if identity == "" {
		return errs.NoIdentity("reconcile")
	}
	c.remember(identity)
	return c.reconciler.Start(identity)
}

// StopReconciliation ends polling; safe in any state
func (c *Core) StopReconciliation() {
	c.reconciler.Stop()
}

// ForceUpdate adds funds through the reconciler and adopts the new balance
func (c *Core) ForceUpdate(ctx context.Context) (reconcile.Snapshot, error) {
	return c.reconciler.ForceUpdate(ctx)
}

// BroadcastState reports the broadcast lifecycle state
func (c *Core) BroadcastState() broadcast.State {
	return c.broadcaster.State()
}

// Reconciling reports whether the poll loop runs
func (c *Core) Reconciling() bool {
	return c.reconciler.Active()
}

// Close stops both components. Each stop is independent and idempotent, so
// Close may be called repeatedly and after either component already stopped.
func (c *Core) Close() {
	c.mu.Lock()
	identity := c.identity
	c.mu.Unlock()

	c.reconciler.Stop()
	c.broadcaster.Stop()
	logger.Debug(logger.Prefix(identity, "railpass"), "core closed")
}

func (c *Core) remember(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity
}
