package wallet

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrUserRejected is returned when the user declines to sign
	ErrUserRejected = errors.New("user rejected signature")
	// ErrNotConnected is returned when the wallet went away before signing
	ErrNotConnected = errors.New("wallet not connected")
)

// Wallet signs transactions for a single authority. SignTransaction may block
// until the user answers; it must return when ctx is done.
type Wallet interface {
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// VerifySigned checks that tx carries a valid signature from signer over the
// same message as unsigned. It guards against a wallet returning a different
// transaction than the one it was asked to sign.
func VerifySigned(unsigned, signed *solana.Transaction, signer solana.PublicKey) error {
	want, err := unsigned.Message.MarshalBinary()
	if err != nil {
		return err
	}
	got, err := signed.Message.MarshalBinary()
	if err != nil {
		return err
	}
	if string(want) != string(got) {
		return errors.New("signed transaction message differs from request")
	}

	for i, key := range signed.Message.AccountKeys {
		if !key.Equals(signer) {
			continue
		}
		if i >= len(signed.Signatures) {
			return errors.New("missing signature for signer")
		}
		if !signed.Signatures[i].Verify(signer, got) {
			return errors.New("invalid signature")
		}
		return nil
	}
	return errors.New("signer is not part of the transaction")
}
