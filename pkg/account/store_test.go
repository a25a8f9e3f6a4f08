package account

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/uhyunpark/driftdesk/pkg/apperr"
	"github.com/uhyunpark/driftdesk/pkg/drift"
	"github.com/uhyunpark/driftdesk/pkg/util"
)

type result struct {
	accounts []*drift.UserAccount
	err      error
}

// fakeFetcher answers from a fixed result, or blocks on a per-call channel
// when gated is set
type fakeFetcher struct {
	mu     sync.Mutex
	res    result
	gated  bool
	gates  []chan result
	calls  int
	called chan struct{}
}

func (f *fakeFetcher) GetUserAccountsForAuthority(ctx context.Context, _ solana.PublicKey) ([]*drift.UserAccount, error) {
	f.mu.Lock()
	f.calls++
	if !f.gated {
		r := f.res
		f.mu.Unlock()
		return r.accounts, r.err
	}
	gate := make(chan result, 1)
	f.gates = append(f.gates, gate)
	f.mu.Unlock()
	f.called <- struct{}{}

	select {
	case r := <-gate:
		return r.accounts, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeFetcher) gate(i int) chan result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gates[i]
}

func accounts(ids ...uint16) []*drift.UserAccount {
	out := make([]*drift.UserAccount, 0, len(ids))
	for _, id := range ids {
		out = append(out, &drift.UserAccount{SubAccountID: id})
	}
	return out
}

func TestRefreshWithoutClient(t *testing.T) {
	s := NewStore(util.Nop())
	_, err := s.Refresh(context.Background(), solana.PublicKey{}, true)
	if !errors.Is(err, apperr.ClientNotReady) {
		t.Fatalf("err = %v, want ClientNotReady", err)
	}
	snap := s.Snapshot()
	if snap.Loading || snap.Err != nil || snap.Accounts != nil {
		t.Errorf("state touched: %+v", snap)
	}
}

func TestRefreshNoAccounts(t *testing.T) {
	s := NewStore(util.Nop())
	s.Attach(&fakeFetcher{res: result{accounts: nil}})

	got, err := s.Refresh(context.Background(), solana.NewWallet().PublicKey(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d accounts", len(got))
	}
	snap := s.Snapshot()
	if snap.Loading || snap.Err != nil || len(snap.Accounts) != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRefreshFailureKeepsAccounts(t *testing.T) {
	f := &fakeFetcher{res: result{accounts: accounts(0, 1, 2)}}
	s := NewStore(util.Nop())
	s.Attach(f)
	auth := solana.NewWallet().PublicKey()

	if _, err := s.Refresh(context.Background(), auth, true); err != nil {
		t.Fatal(err)
	}

	f.res = result{err: errors.New("rpc timeout")}
	_, err := s.Refresh(context.Background(), auth, true)
	if !errors.Is(err, apperr.RefreshFailed) {
		t.Fatalf("err = %v, want RefreshFailed", err)
	}

	snap := s.Snapshot()
	if len(snap.Accounts) != 3 {
		t.Errorf("accounts = %d, want 3 kept", len(snap.Accounts))
	}
	if snap.Err == nil || snap.Loading {
		t.Errorf("err = %v loading = %v", snap.Err, snap.Loading)
	}
}

func TestRefreshReadOnlyLeavesAccounts(t *testing.T) {
	f := &fakeFetcher{res: result{accounts: accounts(0)}}
	s := NewStore(util.Nop())
	s.Attach(f)
	mine := solana.NewWallet().PublicKey()
	if _, err := s.Refresh(context.Background(), mine, true); err != nil {
		t.Fatal(err)
	}

	f.res = result{accounts: accounts(0, 1, 2, 3)}
	got, err := s.Refresh(context.Background(), solana.NewWallet().PublicKey(), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Errorf("returned %d, want 4", len(got))
	}
	snap := s.Snapshot()
	if len(snap.Accounts) != 1 || !snap.Authority.Equals(mine) {
		t.Errorf("global state overwritten by read-only fetch: %+v", snap)
	}
}

func TestStaleRefreshDiscarded(t *testing.T) {
	f := &fakeFetcher{gated: true, called: make(chan struct{}, 2)}
	s := NewStore(util.Nop())
	s.Attach(f)
	auth := solana.NewWallet().PublicKey()

	var notified [][]*drift.UserAccount
	s.OnChange(func(a []*drift.UserAccount) { notified = append(notified, a) })

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Refresh(context.Background(), auth, true)
	}()
	<-f.called

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Refresh(context.Background(), auth, true)
	}()
	<-f.called

	if !s.Snapshot().Loading {
		t.Error("loading should be set while calls are in flight")
	}

	// newer call finishes first, then the older one
	f.gate(1) <- result{accounts: accounts(0, 1)}
	f.gate(0) <- result{accounts: accounts(0)}
	wg.Wait()

	snap := s.Snapshot()
	if len(snap.Accounts) != 2 {
		t.Fatalf("accounts = %d, want 2 from the newest call", len(snap.Accounts))
	}
	if snap.Loading {
		t.Error("loading still set")
	}
	if len(notified) != 1 {
		t.Errorf("listeners fired %d times, want 1", len(notified))
	}
}

func TestStaleErrorDiscarded(t *testing.T) {
	f := &fakeFetcher{gated: true, called: make(chan struct{}, 2)}
	s := NewStore(util.Nop())
	s.Attach(f)
	auth := solana.NewWallet().PublicKey()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Refresh(context.Background(), auth, true)
		}(i)
		<-f.called
	}

	f.gate(1) <- result{accounts: accounts(0)}
	f.gate(0) <- result{err: errors.New("late failure")}
	wg.Wait()

	if errs[0] == nil || errs[1] != nil {
		t.Fatalf("errs = %v", errs)
	}
	snap := s.Snapshot()
	if snap.Err != nil {
		t.Errorf("stale failure recorded: %v", snap.Err)
	}
	if len(snap.Accounts) != 1 {
		t.Errorf("accounts = %d, want 1", len(snap.Accounts))
	}
}

func TestResetInvalidatesInflight(t *testing.T) {
	f := &fakeFetcher{gated: true, called: make(chan struct{}, 1)}
	s := NewStore(util.Nop())
	s.Attach(f)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Refresh(context.Background(), solana.NewWallet().PublicKey(), true)
	}()
	<-f.called

	s.Reset()
	f.gate(0) <- result{accounts: accounts(0, 1)}
	<-done

	if n := len(s.Snapshot().Accounts); n != 0 {
		t.Errorf("accounts = %d after reset, want 0", n)
	}
}

func TestDetach(t *testing.T) {
	s := NewStore(util.Nop())
	s.Attach(&fakeFetcher{})
	s.Detach()
	if _, err := s.Refresh(context.Background(), solana.PublicKey{}, true); !errors.Is(err, apperr.ClientNotReady) {
		t.Errorf("err = %v", err)
	}
}
