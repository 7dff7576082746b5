package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
)

// defaultTxAttempts bounds contention retries when the caller does not pick a value.
const defaultTxAttempts = 5

// TxFunc is the body of a transaction. It may be invoked more than once on contention, so it
// must not carry side effects outside tx.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption adjusts how a transaction runs.
type TxOption func(*[]firestore.TransactionOption)

// WithTxAttempts caps the number of times the body is retried on contention.
func WithTxAttempts(attempts int) TxOption {
	return func(opts *[]firestore.TransactionOption) {
		if attempts > 0 {
			*opts = append(*opts, firestore.MaxAttempts(attempts))
		}
	}
}

// RunTransaction executes fn within a transaction on the provider's client. Errors are passed
// through WrapError so callers can branch on *Error.
func (p *Provider) RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}

	txOpts := []firestore.TransactionOption{firestore.MaxAttempts(defaultTxAttempts)}
	for _, opt := range opts {
		if opt != nil {
			opt(&txOpts)
		}
	}
	return WrapError("transaction", client.RunTransaction(ctx, fn, txOpts...))
}
