package twinlink

import (
	"github.com/twinlink/twinlink/twinlink/exchange"
	"github.com/twinlink/twinlink/twinlink/identity"
	"github.com/twinlink/twinlink/twinlink/rendezvous"
)

// Core bundles one cryptographic identity with a rendezvous transport and
// acts as the session factory. Construct one per logical device; multiple
// independent identities can coexist in a single process.
type Core struct {
	Identity  *identity.Service
	Transport rendezvous.Transport
}

func NewCore(transport rendezvous.Transport) *Core {
	return &Core{
		Identity:  identity.NewService(),
		Transport: transport,
	}
}

// NewSession creates a peer exchange session for the given twin id, backed
// by this core's identity and transport.
func (c *Core) NewSession(twinID string, opts ...exchange.Option) *exchange.Session {
	return exchange.NewSession(c.Identity, c.Transport, twinID, opts...)
}
