// Package memory implements repository.Store in process memory.
//
// It is the test double for the Postgres store: one mutex serializes all
// writers (standing in for row-level atomicity), and Atomic snapshots the
// whole state so a failing unit of work rolls back completely.
package memory

import (
	"context"
	"sync"

	"earn-platform/internal/model"
	"earn-platform/internal/repository"
)

// Store is the in-memory repository.Store implementation.
type Store struct {
	mu sync.Mutex
	st *state
}

type state struct {
	accounts       map[string]*model.Account
	accountsByCode map[string]string
	accountsByMail map[string]string
	accountsByTel  map[string]string

	txs     map[string]*model.Transaction
	txOrder []string

	referrals map[string]*model.Referral // keyed by referred id

	notifications []*model.Notification

	tasks            map[string]*model.Task
	completions      map[string]*model.TaskCompletion
	completionByPair map[string]string // accountID + "\x00" + taskID
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{st: newState()}
}

func newState() *state {
	return &state{
		accounts:         make(map[string]*model.Account),
		accountsByCode:   make(map[string]string),
		accountsByMail:   make(map[string]string),
		accountsByTel:    make(map[string]string),
		txs:              make(map[string]*model.Transaction),
		referrals:        make(map[string]*model.Referral),
		tasks:            make(map[string]*model.Task),
		completions:      make(map[string]*model.TaskCompletion),
		completionByPair: make(map[string]string),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = cloneAccount(v)
	}
	for k, v := range s.accountsByCode {
		c.accountsByCode[k] = v
	}
	for k, v := range s.accountsByMail {
		c.accountsByMail[k] = v
	}
	for k, v := range s.accountsByTel {
		c.accountsByTel[k] = v
	}
	for k, v := range s.txs {
		c.txs[k] = cloneTransaction(v)
	}
	c.txOrder = append([]string(nil), s.txOrder...)
	for k, v := range s.referrals {
		c.referrals[k] = cloneReferral(v)
	}
	c.notifications = make([]*model.Notification, len(s.notifications))
	for i, n := range s.notifications {
		cp := *n
		cp.AccountID = cloneStr(n.AccountID)
		c.notifications[i] = &cp
	}
	for k, v := range s.tasks {
		cp := *v
		c.tasks[k] = &cp
	}
	for k, v := range s.completions {
		cp := *v
		c.completions[k] = &cp
	}
	for k, v := range s.completionByPair {
		c.completionByPair[k] = v
	}
	return c
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneAccount(a *model.Account) *model.Account {
	cp := *a
	cp.SponsorID = cloneStr(a.SponsorID)
	cp.ParentID = cloneStr(a.ParentID)
	cp.LeftChildID = cloneStr(a.LeftChildID)
	cp.RightChildID = cloneStr(a.RightChildID)
	return &cp
}

func cloneTransaction(t *model.Transaction) *model.Transaction {
	cp := *t
	cp.ExternalReference = cloneStr(t.ExternalReference)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	if t.Metadata != nil {
		cp.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func cloneReferral(r *model.Referral) *model.Referral {
	cp := *r
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// view is a Store bound to an open unit of work: methods operate on the
// state without re-locking.
type view struct {
	st *state
}

func (s *Store) Accounts() repository.AccountStore           { return &accounts{s: s} }
func (s *Store) Transactions() repository.TransactionStore   { return &transactions{s: s} }
func (s *Store) Referrals() repository.ReferralStore         { return &referrals{s: s} }
func (s *Store) Notifications() repository.NotificationStore { return &notifications{s: s} }
func (s *Store) Tasks() repository.TaskStore                 { return &tasks{s: s} }

// Atomic runs fn under the global lock against the live state; on error the
// pre-snapshot is restored, so fn's writes are all-or-nothing.
func (s *Store) Atomic(ctx context.Context, fn func(repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&view{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (v *view) Accounts() repository.AccountStore           { return &accounts{v: v} }
func (v *view) Transactions() repository.TransactionStore   { return &transactions{v: v} }
func (v *view) Referrals() repository.ReferralStore         { return &referrals{v: v} }
func (v *view) Notifications() repository.NotificationStore { return &notifications{v: v} }
func (v *view) Tasks() repository.TaskStore                 { return &tasks{v: v} }

// Atomic on an open unit of work runs fn in place; the outer unit already
// owns the lock and the rollback snapshot.
func (v *view) Atomic(ctx context.Context, fn func(repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(v)
}

// run executes fn against the state, locking unless already inside a unit
// of work. Every per-entity store method funnels through here.
func run[T any](s *Store, v *view, fn func(st *state) (T, error)) (T, error) {
	if v != nil {
		return fn(v.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}
