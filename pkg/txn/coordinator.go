// Package txn drives a transaction from instructions to a confirmed
// submission: build, wallet signature, send. Each step fails with its own
// apperr kind and nothing is retried.
package txn

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/uhyunpark/driftdesk/pkg/apperr"
	"github.com/uhyunpark/driftdesk/pkg/wallet"
)

var mtxSubmissions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "driftdesk_submissions_total",
		Help: "Transaction submissions by operation and outcome",
	},
	[]string{"op", "outcome"},
)

func init() {
	prometheus.MustRegister(mtxSubmissions)
}

// Client builds and sends transactions
type Client interface {
	BuildTransaction(ctx context.Context, ixs []solana.Instruction) (*solana.Transaction, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

type Result struct {
	Signature solana.Signature
}

type Coordinator struct {
	client Client
	logger *zap.SugaredLogger
}

func NewCoordinator(client Client, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{client: client, logger: logger}
}

// Submit builds a transaction from ixs, has w sign it and sends it. op
// labels the submission in logs and metrics (e.g. "place_order").
func (c *Coordinator) Submit(ctx context.Context, op string, ixs []solana.Instruction, w wallet.Wallet) (Result, error) {
	res, err := c.submit(ctx, ixs, w)
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
		c.logger.Warnw("submission_failed", "op", op, "kind", outcome, "error", err)
	} else {
		c.logger.Infow("submission_accepted", "op", op, "signature", res.Signature.String())
	}
	mtxSubmissions.WithLabelValues(op, outcome).Inc()
	return res, err
}

func (c *Coordinator) submit(ctx context.Context, ixs []solana.Instruction, w wallet.Wallet) (Result, error) {
	if c.client == nil {
		return Result{}, apperr.Errorf(apperr.ClientNotReady, "txn.build", "no protocol client")
	}
	if w == nil || w.PublicKey().IsZero() {
		return Result{}, apperr.Errorf(apperr.WalletNotConnected, "txn.sign", "no wallet connected")
	}
	if len(ixs) == 0 {
		return Result{}, apperr.Errorf(apperr.BuildFailed, "txn.build", "no instructions")
	}

	tx, err := c.client.BuildTransaction(ctx, ixs)
	if err != nil {
		return Result{}, apperr.New(apperr.BuildFailed, "txn.build", err)
	}

	signed, err := w.SignTransaction(ctx, tx)
	if err != nil {
		if errors.Is(err, wallet.ErrNotConnected) {
			return Result{}, apperr.New(apperr.WalletNotConnected, "txn.sign", err)
		}
		// a dismissed prompt, a cancelled wait and a wallet error all mean
		// the transaction was not signed
		return Result{}, apperr.New(apperr.UserRejectedSignature, "txn.sign", err)
	}
	if signed == nil {
		return Result{}, apperr.New(apperr.UserRejectedSignature, "txn.sign", wallet.ErrUserRejected)
	}

	sig, err := c.client.SendTransaction(ctx, signed)
	if err != nil {
		return Result{}, apperr.New(apperr.SubmissionFailed, "txn.send", err)
	}
	return Result{Signature: sig}, nil
}
