// Package provider defines the payment-rail adapter contract and the
// registry the engine resolves adapters from.
package provider

import (
	"context"
	"fmt"
	"sync"

	"earn-platform/internal/model"
	"earn-platform/internal/money"
)

// Outcome is a provider's verdict on a payment attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePending Outcome = "pending"
)

// Event is one normalized provider signal: a webhook callback or a poll
// result. Events may arrive out of order, duplicated, or for references the
// engine never issued.
type Event struct {
	Provider          model.Provider
	ExternalReference string
	Amount            money.Money
	Outcome           Outcome
	Reason            string

	// RawPayload is the provider's original body, kept for audit metadata.
	RawPayload string
}

// InitiateRequest asks an adapter to start collecting a payment.
type InitiateRequest struct {
	Reference   string
	AccountID   string
	Phone       string
	Amount      money.Money
	Description string
}

// Adapter integrates one payment rail.
type Adapter interface {
	// Name identifies the rail; events carrying this provider name route here.
	Name() model.Provider

	// Initiate starts a collection attempt for the given merchant reference.
	// The provider reports the outcome later through events or CheckStatus.
	Initiate(ctx context.Context, req InitiateRequest) error

	// CheckStatus queries the rail for the current state of a reference.
	CheckStatus(ctx context.Context, reference string) (Event, error)
}

// Registry manages adapter registration and lookup by provider name.
type Registry struct {
	adapters map[model.Provider]Adapter
	mu       sync.RWMutex
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[model.Provider]Adapter),
	}
}

// Register adds an adapter to the registry.
// An adapter already registered under the same name is replaced.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("cannot register nil adapter")
	}
	if a.Name() == "" {
		return fmt.Errorf("cannot register adapter with empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
	return nil
}

// Get retrieves an adapter by provider name.
func (r *Registry) Get(name model.Provider) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns all registered provider names.
func (r *Registry) Names() []model.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]model.Provider, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
