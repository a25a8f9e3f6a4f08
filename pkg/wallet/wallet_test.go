package wallet

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func testTx(t *testing.T, payer solana.PublicKey) *solana.Transaction {
	t.Helper()
	ix := solana.NewInstruction(
		solana.SystemProgramID,
		solana.AccountMetaSlice{solana.NewAccountMeta(payer, true, true)},
		[]byte{1, 2, 3},
	)
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{1}, solana.TransactionPayer(payer))
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	return tx
}

func TestKeypairSignAndVerify(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	unsigned := testTx(t, kp.PublicKey())
	signed, err := kp.SignTransaction(context.Background(), testTx(t, kp.PublicKey()))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := VerifySigned(unsigned, signed, kp.PublicKey()); err != nil {
		t.Errorf("verify: %v", err)
	}

	other, _ := GenerateKeypair()
	if err := VerifySigned(unsigned, signed, other.PublicKey()); err == nil {
		t.Error("expected failure for a key outside the transaction")
	}
}

func TestVerifyRejectsSwappedMessage(t *testing.T) {
	kp, _ := GenerateKeypair()
	unsigned := testTx(t, kp.PublicKey())

	swapped := testTx(t, kp.PublicKey())
	swapped.Message.RecentBlockhash = solana.Hash{2}
	signed, err := kp.SignTransaction(context.Background(), swapped)
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifySigned(unsigned, signed, kp.PublicKey()); err == nil {
		t.Error("expected message mismatch")
	}
}

func TestKeypairHonorsCancelledContext(t *testing.T) {
	kp, _ := GenerateKeypair()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := kp.SignTransaction(ctx, testTx(t, kp.PublicKey())); err == nil {
		t.Error("expected context error")
	}
}

func TestFromBase58RoundTrip(t *testing.T) {
	kp, _ := GenerateKeypair()
	again, err := FromBase58(kp.privateKey.String())
	if err != nil {
		t.Fatal(err)
	}
	if !again.PublicKey().Equals(kp.PublicKey()) {
		t.Error("public key mismatch after reload")
	}
}
