package api

import (
	"github.com/uhyunpark/driftdesk/pkg/account"
	"github.com/uhyunpark/driftdesk/pkg/drift"
	"github.com/uhyunpark/driftdesk/pkg/order"
	"github.com/uhyunpark/driftdesk/pkg/storage"
)

// API request and response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// NetworkRequest switches the active network
type NetworkRequest struct {
	Name string `json:"name" validate:"required"`
}

// CreateAccountRequest creates the next sub-account
type CreateAccountRequest struct {
	Name string `json:"name" validate:"required,max=32"`
}

// OrderRequest is an order form plus the sub-account to place it from.
// A missing subAccountId means the selected sub-account.
type OrderRequest struct {
	SubAccountID *uint16 `json:"subAccountId,omitempty"`
	order.Form
}

// TransferRequest is a deposit or withdrawal of a spot market token
type TransferRequest struct {
	SubAccountID *uint16 `json:"subAccountId,omitempty"`
	MarketIndex  uint16  `json:"marketIndex"`
	Amount       string  `json:"amount" validate:"required,numeric"`
}

// ==============================
// REST Response Types
// ==============================

// NetworkInfo describes the active network
type NetworkInfo struct {
	Name     string   `json:"name"`
	RPCURL   string   `json:"rpcUrl"`
	Networks []string `json:"networks"`
}

// AccountInfo summarizes one sub-account
type AccountInfo struct {
	SubAccountID uint16 `json:"subAccountId"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	Authority    string `json:"authority"`
	OpenOrders   int    `json:"openOrders"`
}

// AccountsResponse is the session's account state
type AccountsResponse struct {
	Network   string        `json:"network"`
	Authority string        `json:"authority,omitempty"`
	Loading   bool          `json:"loading"`
	Error     string        `json:"error,omitempty"`
	Selected  *uint16       `json:"selected,omitempty"`
	Accounts  []AccountInfo `json:"accounts"`
}

// AccountDetail is a sub-account with its display rows
type AccountDetail struct {
	AccountInfo
	Balances []account.BalanceRow `json:"balances,omitempty"`
	Orders   []account.OrderRow   `json:"orders,omitempty"`
}

// SubmitResponse acknowledges an accepted transaction
type SubmitResponse struct {
	Status       string              `json:"status"` // "submitted"
	Signature    string              `json:"signature"`
	SubAccountID *uint16             `json:"subAccountId,omitempty"`
	Orders       []drift.OrderParams `json:"orders,omitempty"`
}

// HistoryResponse lists journal entries, newest first
type HistoryResponse struct {
	Entries []*storage.Entry `json:"entries"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSMessage is the envelope of every inbound WebSocket message
type WSMessage struct {
	Type string `json:"type"` // "subscribe" | "unsubscribe" | "sign_response"

	Channels []string `json:"channels,omitempty"`

	// sign_response
	ID       string `json:"id,omitempty"`
	SignedTx string `json:"signedTx,omitempty"` // base64 wire transaction
	Rejected bool   `json:"rejected,omitempty"`
}

// SignRequest asks the browser wallet to sign a transaction
type SignRequest struct {
	Type string `json:"type"` // "sign_request"
	ID   string `json:"id"`
	Tx   string `json:"tx"` // base64 wire transaction
}

// AccountsUpdate is pushed on the "accounts" channel after every accepted
// account change
type AccountsUpdate struct {
	Type     string        `json:"type"` // "accounts"
	Network  string        `json:"network"`
	Selected *uint16       `json:"selected,omitempty"`
	Accounts []AccountInfo `json:"accounts"`
}

func accountInfo(a *drift.UserAccount) AccountInfo {
	return AccountInfo{
		SubAccountID: a.SubAccountID,
		Name:         a.DisplayName(),
		Address:      a.Address.String(),
		Authority:    a.Authority.String(),
		OpenOrders:   len(a.OpenOrders()),
	}
}

func accountInfos(accounts []*drift.UserAccount) []AccountInfo {
	out := make([]AccountInfo, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountInfo(a))
	}
	return out
}
