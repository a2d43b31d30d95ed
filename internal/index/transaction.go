package index

import "log/slog"

// Synchronization receives transaction completion callbacks.
type Synchronization interface {
	BeforeCompletion()
	AfterCompletion(committed bool)
}

// TransactionContext exposes the caller's transaction to the index backend.
type TransactionContext interface {
	// InProgress reports whether a transaction is active.
	InProgress() bool

	// Identifier returns the active transaction's identifier.
	Identifier() any

	// RegisterSynchronization attaches callbacks to the active transaction.
	RegisterSynchronization(sync Synchronization)
}

// NoTransaction is the context used for reindex submissions, which never
// participate in a caller's transaction. It reports no transaction in
// progress and panics if anything asks for a transaction identifier or
// tries to register a synchronization: either is a programming error.
var NoTransaction TransactionContext = noTransaction{}

type noTransaction struct{}

func (noTransaction) InProgress() bool { return false }

func (noTransaction) Identifier() any {
	panic("index: NoTransaction has no transaction identifier")
}

func (noTransaction) RegisterSynchronization(Synchronization) {
	panic("index: cannot register a synchronization with NoTransaction")
}

// applyOrDefer runs apply now when no transaction is active, or after the
// transaction commits. Errors from deferred writes are logged.
func applyOrDefer(txn TransactionContext, logger *slog.Logger, what string, apply func() error) error {
	if txn == nil || !txn.InProgress() {
		return apply()
	}
	txn.RegisterSynchronization(&deferredWrite{apply: apply, logger: logger, what: what, txID: txn.Identifier()})
	return nil
}

type deferredWrite struct {
	apply  func() error
	logger *slog.Logger
	what   string
	txID   any
}

func (d *deferredWrite) BeforeCompletion() {}

func (d *deferredWrite) AfterCompletion(committed bool) {
	if !committed {
		return
	}
	if err := d.apply(); err != nil {
		d.logger.Error("deferred index write failed",
			"op", d.what,
			"transaction", d.txID,
			"error", err)
	}
}
