package wallet

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Keypair signs with a local ed25519 key, without user interaction
type Keypair struct {
	privateKey solana.PrivateKey
}

// GenerateKeypair creates a new random keypair
func GenerateKeypair() (*Keypair, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &Keypair{privateKey: key}, nil
}

// FromKeygenFile loads a solana-keygen JSON keypair file
func FromKeygenFile(path string) (*Keypair, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair %s: %w", path, err)
	}
	return &Keypair{privateKey: key}, nil
}

// FromBase58 parses a base58 encoded 64-byte secret key
func FromBase58(secret string) (*Keypair, error) {
	key, err := solana.PrivateKeyFromBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &Keypair{privateKey: key}, nil
}

func (k *Keypair) PublicKey() solana.PublicKey {
	return k.privateKey.PublicKey()
}

// SignTransaction adds the keypair's signature in place and returns tx
func (k *Keypair) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pub := k.PublicKey()
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(pub) {
			return &k.privateKey
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return tx, nil
}
