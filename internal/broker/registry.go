// Package broker is the authorization table separating governance (owner/
// admin configuration changes) from brokers (privileged settlement
// executors). The governance side is an injected predicate, never ambient
// state.
package broker

import (
	"sort"

	"PoolCore/internal/poolerr"
)

// GovernanceFunc reports whether an actor holds the governance capability.
// The timelock/ownership module behind it is an external collaborator.
type GovernanceFunc func(actor string) bool

// Registry is the broker whitelist consulted on every fill. Not internally
// synchronized; the settlement engine serializes access.
type Registry struct {
	governance GovernanceFunc
	brokers    map[string]struct{}
}

func NewRegistry(governance GovernanceFunc) *Registry {
	return &Registry{
		governance: governance,
		brokers:    make(map[string]struct{}),
	}
}

// IsGovernance reports whether actor may mutate configuration.
func (r *Registry) IsGovernance(actor string) bool {
	return r.governance != nil && r.governance(actor)
}

// IsBroker reports whether actor may execute fills.
func (r *Registry) IsBroker(actor string) bool {
	_, ok := r.brokers[actor]
	return ok
}

// Add grants settlement privilege. Governance only.
func (r *Registry) Add(actor, brokerAddr string) error {
	if !r.IsGovernance(actor) {
		return poolerr.Detail(poolerr.ErrUnauthorized, "add broker by %q", actor)
	}
	if brokerAddr == "" {
		return poolerr.Detail(poolerr.ErrInvalidParams, "empty broker address")
	}
	r.brokers[brokerAddr] = struct{}{}
	return nil
}

// Remove revokes settlement privilege. Governance only. Removing an
// unknown broker is a no-op, matching set semantics.
func (r *Registry) Remove(actor, brokerAddr string) error {
	if !r.IsGovernance(actor) {
		return poolerr.Detail(poolerr.ErrUnauthorized, "remove broker by %q", actor)
	}
	delete(r.brokers, brokerAddr)
	return nil
}

// List returns the broker set in sorted order.
func (r *Registry) List() []string {
	result := make([]string, 0, len(r.brokers))
	for b := range r.brokers {
		result = append(result, b)
	}
	sort.Strings(result)
	return result
}

// Restore replaces the broker set (snapshot restore).
func (r *Registry) Restore(brokers []string) {
	r.brokers = make(map[string]struct{}, len(brokers))
	for _, b := range brokers {
		r.brokers[b] = struct{}{}
	}
}
