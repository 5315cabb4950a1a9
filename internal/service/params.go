// Package service implements the engine's business operations over the
// repository contract: registration and tree placement, deposit and
// withdrawal lifecycles, event reconciliation, activation and its payouts.
package service

import (
	"errors"
	"fmt"

	"earn-platform/internal/config"
	"earn-platform/internal/money"
)

// Common service errors.
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrSponsorNotFound      = errors.New("sponsor not found")
	ErrInvalidAmount        = errors.New("invalid amount: must be positive")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrBelowMinimum         = errors.New("amount below the allowed minimum")
	ErrNotActivated         = errors.New("account not activated")
	ErrAlreadySpun          = errors.New("spin already used")
	ErrTaskInactive         = errors.New("task is not active")
	ErrTaskAlreadyCompleted = errors.New("task already completed")
	ErrUnknownProvider      = errors.New("unknown payment provider")
	ErrPlacementDepth       = errors.New("placement descent exceeded maximum depth")
)

// Params holds the engine schedule with monetary values parsed into the
// base currency.
type Params struct {
	BaseCurrency        string
	ActivationThreshold money.Money
	ReferralReward      money.Money

	// CommissionSchedule pays index i to the level i+1 ancestor of a
	// newly activated account.
	CommissionSchedule []money.Money

	TeamReward     money.Money
	TeamRewardSize int

	SpinMin money.Money
	SpinMax money.Money

	WithdrawalMinimum money.Money

	// AmountTolerance is the permitted deviation, in minor units, between
	// a provider-reported amount and the recorded intent.
	AmountTolerance int64
}

// ParamsFromConfig parses the engine configuration into Params.
func ParamsFromConfig(cfg config.EngineConfig) (Params, error) {
	base := cfg.BaseCurrency
	p := Params{
		BaseCurrency:    base,
		TeamRewardSize:  cfg.TeamRewardSize,
		AmountTolerance: cfg.AmountTolerance,
	}

	fields := []struct {
		name string
		src  string
		dst  *money.Money
	}{
		{"activation_threshold", cfg.ActivationThreshold, &p.ActivationThreshold},
		{"referral_reward", cfg.ReferralReward, &p.ReferralReward},
		{"team_reward", cfg.TeamReward, &p.TeamReward},
		{"spin_min", cfg.SpinMin, &p.SpinMin},
		{"spin_max", cfg.SpinMax, &p.SpinMax},
		{"withdrawal_minimum", cfg.WithdrawalMinimum, &p.WithdrawalMinimum},
	}
	for _, f := range fields {
		m, err := money.Parse(f.src, base)
		if err != nil {
			return Params{}, fmt.Errorf("invalid %s %q: %w", f.name, f.src, err)
		}
		*f.dst = m
	}

	for i, s := range cfg.CommissionSchedule {
		m, err := money.Parse(s, base)
		if err != nil {
			return Params{}, fmt.Errorf("invalid commission_schedule[%d] %q: %w", i, s, err)
		}
		p.CommissionSchedule = append(p.CommissionSchedule, m)
	}

	if p.SpinMax.Cmp(p.SpinMin) < 0 {
		return Params{}, fmt.Errorf("spin_max %s below spin_min %s", p.SpinMax, p.SpinMin)
	}
	return p, nil
}
