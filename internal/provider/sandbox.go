package provider

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"earn-platform/internal/model"
	"earn-platform/internal/money"
)

// Sandbox is a self-contained rail for local runs and integration tests. It
// accepts every initiation and reports success once the settle delay has
// elapsed, so status polling can be exercised end to end.
type Sandbox struct {
	settleAfter time.Duration

	mu       sync.Mutex
	attempts map[string]sandboxAttempt
}

type sandboxAttempt struct {
	amount    money.Money
	startedAt time.Time
}

// NewSandbox creates a sandbox adapter that settles payments after d.
func NewSandbox(d time.Duration) *Sandbox {
	return &Sandbox{
		settleAfter: d,
		attempts:    make(map[string]sandboxAttempt),
	}
}

func (s *Sandbox) Name() model.Provider {
	return model.ProviderSandbox
}

func (s *Sandbox) Initiate(ctx context.Context, req InitiateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[req.Reference]; !ok {
		s.attempts[req.Reference] = sandboxAttempt{
			amount:    req.Amount,
			startedAt: time.Now(),
		}
	}
	log.Debug().
		Str("reference", req.Reference).
		Str("amount", req.Amount.String()).
		Msg("Sandbox collection initiated")
	return nil
}

func (s *Sandbox) CheckStatus(ctx context.Context, reference string) (Event, error) {
	s.mu.Lock()
	attempt, ok := s.attempts[reference]
	s.mu.Unlock()

	ev := Event{
		Provider:          model.ProviderSandbox,
		ExternalReference: reference,
	}
	switch {
	case !ok:
		ev.Outcome = OutcomeFailure
		ev.Reason = "unknown reference"
	case time.Since(attempt.startedAt) < s.settleAfter:
		ev.Outcome = OutcomePending
		ev.Amount = attempt.amount
	default:
		ev.Outcome = OutcomeSuccess
		ev.Amount = attempt.amount
	}
	return ev, nil
}

// Settle forces a reference to report success on the next status check.
// Tests use it to skip the settle delay.
func (s *Sandbox) Settle(reference string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if attempt, ok := s.attempts[reference]; ok {
		attempt.startedAt = attempt.startedAt.Add(-s.settleAfter)
		s.attempts[reference] = attempt
	}
}
