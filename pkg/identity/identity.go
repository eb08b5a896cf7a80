// Package identity resolves the acting agent for change records and
// conflict contexts. Resolution failures never block the core: the
// Fallback wrapper substitutes the well-defined system agent instead.
package identity

import (
	"context"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/record"
)

// Resolver reports who is acting.
type Resolver interface {
	Current(ctx context.Context) (record.Agent, error)
}

// Static returns a Resolver that always reports the given agent.
func Static(agent record.Agent) Resolver {
	return staticResolver{agent: agent}
}

type staticResolver struct {
	agent record.Agent
}

func (s staticResolver) Current(context.Context) (record.Agent, error) {
	return s.agent, nil
}

// System returns a Resolver reporting the system agent. Used wherever a
// record needs an actor and no user is involved.
func System() Resolver {
	return Static(record.SystemAgent)
}

// Fallback wraps a Resolver so that failures yield the system agent
// rather than an error.
func Fallback(inner Resolver) Resolver {
	return fallbackResolver{inner: inner}
}

type fallbackResolver struct {
	inner Resolver
}

func (f fallbackResolver) Current(ctx context.Context) (record.Agent, error) {
	if f.inner == nil {
		return record.SystemAgent, nil
	}
	agent, err := f.inner.Current(ctx)
	if err != nil {
		return record.SystemAgent, nil
	}
	return agent, nil
}
