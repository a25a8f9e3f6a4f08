package account

import (
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/driftdesk/pkg/apperr"
	"github.com/uhyunpark/driftdesk/pkg/drift"
)

// ActiveUserSwitcher moves the protocol client's active sub-account
type ActiveUserSwitcher interface {
	SwitchActiveUser(subAccountID uint16) error
}

// Selector tracks the sub-account the user is working in
type Selector struct {
	mu       sync.Mutex
	switcher ActiveUserSwitcher
	selected uint16
	has      bool
	logger   *zap.SugaredLogger
}

func NewSelector(logger *zap.SugaredLogger) *Selector {
	return &Selector{logger: logger}
}

func (s *Selector) Attach(sw ActiveUserSwitcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switcher = sw
}

// Reset clears the selection and the switcher
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switcher = nil
	s.has = false
	s.selected = 0
}

// Selected returns the selected sub-account id
func (s *Selector) Selected() (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.has
}

// SwitchActive asks the client to switch first; the local selection only
// moves if the client accepted.
func (s *Selector) SwitchActive(subAccountID uint16) error {
	const op = "account.select"

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.switcher == nil {
		return apperr.Errorf(apperr.ClientNotReady, op, "no protocol client attached")
	}
	if err := s.switcher.SwitchActiveUser(subAccountID); err != nil {
		return apperr.New(apperr.Validation, op, err)
	}
	s.selected = subAccountID
	s.has = true
	s.logger.Infow("sub_account_selected", "sub_account", subAccountID)
	return nil
}

// Prefer sets the selection without consulting the client. The next
// Reconcile drops it if the account does not exist.
func (s *Selector) Prefer(subAccountID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = subAccountID
	s.has = true
}

// Reconcile applies the default rule after the account list changed: keep
// the selection if it still exists, otherwise select the lowest id, or
// nothing for an empty list.
func (s *Selector) Reconcile(accounts []*drift.UserAccount) (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(accounts) == 0 {
		s.has = false
		s.selected = 0
		return 0, false
	}

	lowest := accounts[0].SubAccountID
	for _, a := range accounts {
		if s.has && a.SubAccountID == s.selected {
			return s.selected, true
		}
		if a.SubAccountID < lowest {
			lowest = a.SubAccountID
		}
	}
	if s.has {
		s.logger.Infow("sub_account_selection_vanished", "previous", s.selected, "selected", lowest)
	}
	s.selected = lowest
	s.has = true
	return lowest, true
}
