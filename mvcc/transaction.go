package mvcc

import (
	"github.com/google/uuid"
	"github.com/tidwall/btree"
)

// TxId is a monotonically increasing transaction identifier. 0 is
// reserved as the "not deleted" sentinel in Version.txEndId; real
// transaction ids start at 1.
type TxId uint64

// TransactionState tracks where a transaction sits in its lifecycle.
// InProgress is the only non-terminal state; Committed and Aborted are
// absorbing.
type TransactionState uint8

const (
	InProgressTransaction TransactionState = iota
	CommittedTransaction
	AbortedTransaction
)

func (s TransactionState) String() string {
	switch s {
	case InProgressTransaction:
		return "in-progress"
	case CommittedTransaction:
		return "committed"
	case AbortedTransaction:
		return "aborted"
	default:
		return "unknown"
	}
}

// Transaction has an isolation level, an id (monotonic increasing
// integer), and a current state. Stricter isolation levels additionally
// track which transactions were in-progress when this one started, and
// which keys it has read and written.
type Transaction struct {
	isolation IsolationLevel
	id        TxId
	state     TransactionState

	// Used only by Repeatable Read and stricter: the set of transaction
	// ids that were InProgress at the instant this transaction began.
	// Frozen for the lifetime of the transaction.
	inprogress btree.Set[TxId]

	// Used only by Snapshot Isolation and stricter, for commit-time
	// conflict analysis.
	writeset btree.Set[string]
	readset  btree.Set[string]

	// corrID correlates log lines for this transaction back to the
	// Connection that opened it. It plays no part in TxId allocation or
	// in any visibility/conflict rule.
	corrID uuid.UUID
}

// ID returns the transaction's monotonically increasing identifier.
func (t *Transaction) ID() TxId { return t.id }

// State returns the transaction's current lifecycle state.
func (t *Transaction) State() TransactionState { return t.state }

// IsolationLevel returns the isolation level this transaction was started
// under (frozen at begin).
func (t *Transaction) IsolationLevel() IsolationLevel { return t.isolation }
