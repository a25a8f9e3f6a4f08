package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/uhyunpark/driftdesk/pkg/util"
	"github.com/uhyunpark/driftdesk/pkg/wallet"
)

func testBridge(t *testing.T, key solana.PublicKey) (*Hub, *Client, *bridgeWallet) {
	t.Helper()
	hub := NewHub(util.Nop())
	client := newClient(hub, nil, "test")
	client.bridge = newBridgeWallet(key, client)
	hub.clients[client] = true
	return hub, client, client.bridge
}

func unsignedTx(t *testing.T, payer solana.PublicKey) *solana.Transaction {
	t.Helper()
	ix := solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
	}, []byte{2, 0, 0, 0})
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{1}, solana.TransactionPayer(payer))
	if err != nil {
		t.Fatal(err)
	}
	return tx
}

// nextSignRequest reads the sign_request queued for the browser
func nextSignRequest(t *testing.T, c *Client) SignRequest {
	t.Helper()
	select {
	case raw := <-c.send:
		var req SignRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Fatal(err)
		}
		if req.Type != "sign_request" || req.ID == "" {
			t.Fatalf("unexpected message %s", raw)
		}
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no sign_request sent")
		return SignRequest{}
	}
}

type signOutcome struct {
	tx  *solana.Transaction
	err error
}

func signAsync(b *bridgeWallet, ctx context.Context, tx *solana.Transaction) <-chan signOutcome {
	out := make(chan signOutcome, 1)
	go func() {
		signed, err := b.SignTransaction(ctx, tx)
		out <- signOutcome{signed, err}
	}()
	return out
}

func TestBridgeSigns(t *testing.T) {
	kp, err := wallet.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	_, client, bridge := testBridge(t, kp.PublicKey())
	tx := unsignedTx(t, kp.PublicKey())
	done := signAsync(bridge, context.Background(), tx)

	req := nextSignRequest(t, client)
	browserTx, err := decodeTransaction(req.Tx)
	if err != nil {
		t.Fatal(err)
	}
	// the browser wallet fills the empty slot; here the keypair signs afresh
	browserTx.Signatures = nil
	signed, err := kp.SignTransaction(context.Background(), browserTx)
	if err != nil {
		t.Fatal(err)
	}
	wire, err := signed.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	client.handleMessage(mustJSON(t, WSMessage{Type: "sign_response", ID: req.ID, SignedTx: base64.StdEncoding.EncodeToString(wire)}))

	res := <-done
	if res.err != nil {
		t.Fatalf("sign: %v", res.err)
	}
	if len(res.tx.Signatures) != 1 || res.tx.Signatures[0] == (solana.Signature{}) {
		t.Errorf("signatures = %v", res.tx.Signatures)
	}
}

func TestBridgeRejected(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	_, client, bridge := testBridge(t, key)
	done := signAsync(bridge, context.Background(), unsignedTx(t, key))

	req := nextSignRequest(t, client)
	client.handleMessage(mustJSON(t, WSMessage{Type: "sign_response", ID: req.ID, Rejected: true}))

	if res := <-done; !errors.Is(res.err, wallet.ErrUserRejected) {
		t.Fatalf("err = %v", res.err)
	}
}

func TestBridgeWrongSigner(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	other, err := wallet.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	_, client, bridge := testBridge(t, key)
	done := signAsync(bridge, context.Background(), unsignedTx(t, key))

	req := nextSignRequest(t, client)
	// a different transaction, signed by someone else
	forged, err := other.SignTransaction(context.Background(), unsignedTx(t, other.PublicKey()))
	if err != nil {
		t.Fatal(err)
	}
	wire, err := forged.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	client.handleMessage(mustJSON(t, WSMessage{Type: "sign_response", ID: req.ID, SignedTx: base64.StdEncoding.EncodeToString(wire)}))

	res := <-done
	if res.err == nil {
		t.Fatal("forged transaction accepted")
	}
	if errors.Is(res.err, wallet.ErrNotConnected) {
		t.Errorf("err = %v, want a verification failure", res.err)
	}
}

func TestBridgeDisconnect(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	_, client, bridge := testBridge(t, key)
	done := signAsync(bridge, context.Background(), unsignedTx(t, key))

	nextSignRequest(t, client)
	client.closeBridge()

	if res := <-done; !errors.Is(res.err, wallet.ErrNotConnected) {
		t.Fatalf("err = %v", res.err)
	}
	if _, err := bridge.SignTransaction(context.Background(), unsignedTx(t, key)); !errors.Is(err, wallet.ErrNotConnected) {
		t.Errorf("sign after close err = %v", err)
	}
}

func TestBridgeContextCancel(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	_, client, bridge := testBridge(t, key)
	ctx, cancel := context.WithCancel(context.Background())
	done := signAsync(bridge, ctx, unsignedTx(t, key))

	nextSignRequest(t, client)
	cancel()
	if res := <-done; !errors.Is(res.err, context.Canceled) {
		t.Fatalf("err = %v", res.err)
	}
}

func TestBridgeUnregisteredClient(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	hub, client, bridge := testBridge(t, key)
	delete(hub.clients, client)

	if _, err := bridge.SignTransaction(context.Background(), unsignedTx(t, key)); !errors.Is(err, wallet.ErrNotConnected) {
		t.Fatalf("err = %v", err)
	}
}

func TestBroadcastRespectsSubscriptions(t *testing.T) {
	hub := NewHub(util.Nop())
	a := newClient(hub, nil, "a")
	b := newClient(hub, nil, "b")
	hub.clients[a] = true
	hub.clients[b] = true
	b.handleMessage([]byte(`{"type":"unsubscribe","channels":["accounts"]}`))

	hub.BroadcastToChannel(ChannelAccounts, AccountsUpdate{Type: "accounts", Network: "devnet"})

	if len(a.send) != 1 {
		t.Errorf("subscribed client got %d messages", len(a.send))
	}
	if len(b.send) != 0 {
		t.Errorf("unsubscribed client got %d messages", len(b.send))
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
