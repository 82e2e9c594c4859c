// Package identity obtains and keeps the single identity shared by the
// broadcast and reconciliation components.
package identity

import (
	"context"
	"sync"
	"time"

	"github.com/user/railpass-blue/account"
	"github.com/user/railpass-blue/errs"
	"github.com/user/railpass-blue/logger"
)

// Registrar issues new identities; *account.Client satisfies it
type Registrar interface {
	Register(ctx context.Context) (account.Registration, error)
}

// Provisioner loads the stored identity or registers a new one
type Provisioner struct {
	mu        sync.Mutex
	store     Store
	registrar Registrar
	now       func() time.Time
}

// NewProvisioner creates a provisioner over store and registrar
func NewProvisioner(store Store, registrar Registrar) *Provisioner {
	return &Provisioner{store: store, registrar: registrar, now: time.Now}
}

// Provision returns the stored record if there is one. Otherwise it registers
// once and persists the result. On failure there is no identity and nothing
// is retried; calling Provision again is the retry.
func (p *Provisioner) Provision(ctx context.Context) (Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, found, err := p.store.Load()
	if err != nil {
		logger.Warn("identity", "stored identity unreadable: %v", err)
		return Record{}, errs.RegistrationFailure(err)
	}
	if found {
		logger.Debug(logger.Prefix(rec.Identity, "identity"), "using stored identity")
		return rec, nil
	}

	if p.registrar == nil {
		return Record{}, errs.RegistrationFailure(nil)
	}
	reg, err := p.registrar.Register(ctx)
	if err != nil {
		logger.Error("identity", "registration failed: %v", err)
		if errs.Is(err, errs.CodeRegistrationFailure) {
			return Record{}, err
		}
		return Record{}, errs.RegistrationFailure(err)
	}
	if reg.Identity == "" {
		return Record{}, errs.RegistrationFailure(nil)
	}

	rec = Record{
		Identity:       reg.Identity,
		InitialBalance: reg.Balance,
		RegisteredAt:   p.now().UTC(),
	}
	if err := p.store.Save(rec); err != nil {
		logger.Error(logger.Prefix(rec.Identity, "identity"), "failed to persist identity: %v", err)
		return Record{}, errs.RegistrationFailure(err)
	}

	logger.Info(logger.Prefix(rec.Identity, "identity"), "✅ registered, balance %.2f", rec.InitialBalance)
	return rec, nil
}
