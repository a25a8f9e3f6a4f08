// Package account keeps the console's local copy of a wallet's sub-accounts
// and which of them is selected.
package account

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/driftdesk/pkg/apperr"
	"github.com/uhyunpark/driftdesk/pkg/drift"
)

// Fetcher reads sub-accounts from chain
type Fetcher interface {
	GetUserAccountsForAuthority(ctx context.Context, authority solana.PublicKey) ([]*drift.UserAccount, error)
}

// Snapshot is a point-in-time copy of the store
type Snapshot struct {
	Accounts  []*drift.UserAccount
	Loading   bool
	Err       error
	Authority solana.PublicKey
}

// Store holds the last accepted account list. Concurrent refreshes are
// ordered by token: only the most recently issued global refresh may write
// accounts, and a call never overwrites the error of a newer finished call.
type Store struct {
	mu        sync.Mutex
	fetcher   Fetcher
	accounts  []*drift.UserAccount
	authority solana.PublicKey
	err       error
	inflight  int

	seq      uint64 // last token issued
	writeSeq uint64 // token allowed to write accounts
	doneSeq  uint64 // newest token whose outcome is recorded

	listeners []func([]*drift.UserAccount)
	logger    *zap.SugaredLogger
}

func NewStore(logger *zap.SugaredLogger) *Store {
	return &Store{logger: logger}
}

// Attach sets the fetcher used by Refresh
func (s *Store) Attach(f Fetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetcher = f
}

// Detach removes the fetcher; Refresh fails with ClientNotReady until the
// next Attach.
func (s *Store) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetcher = nil
}

// Reset drops all state and invalidates refreshes still in flight
func (s *Store) Reset() {
	s.mu.Lock()
	s.seq++
	s.writeSeq = s.seq
	s.doneSeq = s.seq
	s.accounts = nil
	s.authority = solana.PublicKey{}
	s.err = nil
	listeners := append([]func([]*drift.UserAccount){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(nil)
	}
}

// OnChange registers fn to run after each accepted account write and reset
func (s *Store) OnChange(fn func([]*drift.UserAccount)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Accounts:  append([]*drift.UserAccount(nil), s.accounts...),
		Loading:   s.inflight > 0,
		Err:       s.err,
		Authority: s.authority,
	}
}

// Account returns the stored sub-account with the given id
func (s *Store) Account(subAccountID uint16) (*drift.UserAccount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.SubAccountID == subAccountID {
			return a, true
		}
	}
	return nil, false
}

// Refresh fetches the sub-accounts of authority. With updateGlobal the
// result replaces the stored list; without it the store only tracks loading
// and error state, which serves read-only lookups of other wallets.
// The fetched list is returned either way. On failure the stored list is
// kept.
func (s *Store) Refresh(ctx context.Context, authority solana.PublicKey, updateGlobal bool) ([]*drift.UserAccount, error) {
	const op = "account.refresh"

	s.mu.Lock()
	f := s.fetcher
	if f == nil {
		s.mu.Unlock()
		return nil, apperr.Errorf(apperr.ClientNotReady, op, "no protocol client attached")
	}
	s.seq++
	tok := s.seq
	s.inflight++
	s.err = nil
	if updateGlobal {
		s.writeSeq = tok
	}
	s.mu.Unlock()

	accounts, err := f.GetUserAccountsForAuthority(ctx, authority)
	if err != nil {
		err = apperr.New(apperr.RefreshFailed, op, err)
	}

	s.mu.Lock()
	s.inflight--
	if tok >= s.doneSeq {
		s.doneSeq = tok
		s.err = err
	}
	apply := err == nil && updateGlobal && tok == s.writeSeq
	stale := err == nil && updateGlobal && !apply
	var listeners []func([]*drift.UserAccount)
	if apply {
		s.accounts = accounts
		s.authority = authority
		listeners = append(listeners, s.listeners...)
	}
	s.mu.Unlock()

	switch {
	case err != nil:
		mtxRefreshes.WithLabelValues("error").Inc()
		s.logger.Warnw("account_refresh_failed", "authority", authority, "error", err)
		return nil, err
	case stale:
		mtxRefreshes.WithLabelValues("stale").Inc()
		s.logger.Debugw("account_refresh_stale", "authority", authority, "token", tok)
	default:
		mtxRefreshes.WithLabelValues("ok").Inc()
		s.logger.Debugw("account_refresh", "authority", authority, "count", len(accounts), "global", updateGlobal)
	}

	for _, fn := range listeners {
		fn(accounts)
	}
	return accounts, nil
}
