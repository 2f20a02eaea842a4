package mvcc

import (
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/btree"

	"github.com/arvindsrao/mvccstore/config"
	"github.com/arvindsrao/mvccstore/internal/mvcclog"
	"github.com/arvindsrao/mvccstore/mvccerr"
)

// Database owns the global store (key to ordered version chain) and the
// transaction table, and issues transaction ids. It has a default
// isolation level that each new transaction inherits.
//
// All access to the fields below goes through mu. The core algorithm is
// specified as single-threaded and command-serialized; mu is how this
// implementation upholds that contract when callers drive independent
// Connections from separate goroutines.
type Database struct {
	mu sync.Mutex

	defaultIsolation  IsolationLevel
	store             map[string][]Version
	transactions      btree.Map[TxId, Transaction]
	nextTransactionId TxId

	log *mvcclog.Logger
}

// NewDatabase builds a Database from a config.Config. An unparseable
// DefaultIsolation string is an invariant violation — it indicates a
// misconfigured caller, not a transient condition a client can retry.
func NewDatabase(cfg config.Config) *Database {
	isolation, err := ParseIsolationLevel(cfg.DefaultIsolation)
	if err != nil {
		mvccerr.Invariant(err.Error())
	}
	return newDatabase(isolation, mvcclog.New(cfg.LogLevel))
}

// NewDatabaseWithIsolation builds a Database directly from an
// IsolationLevel, for callers (tests, scenario replays) that already have
// a typed level rather than a config string. Logging is a no-op.
func NewDatabaseWithIsolation(level IsolationLevel) *Database {
	return newDatabase(level, mvcclog.Noop())
}

func newDatabase(level IsolationLevel, log *mvcclog.Logger) *Database {
	return &Database{
		defaultIsolation: level,
		store:            map[string][]Version{},
		// The 0 transaction id means "not set." Valid transaction ids
		// must start at 1.
		nextTransactionId: 1,
		log:               log,
	}
}

// NewConnection returns a Connection bound to this Database with no
// active transaction.
func (d *Database) NewConnection() *Connection {
	return &Connection{
		db:  d,
		tx:  nil,
		id:  uuid.New(),
		log: d.log,
	}
}

// inprogress returns the set of transaction ids currently InProgress.
// Caller must hold d.mu.
func (d *Database) inprogress() btree.Set[TxId] {
	var ids btree.Set[TxId]
	iter := d.transactions.Iter()
	for ok := iter.First(); ok; ok = iter.Next() {
		if iter.Value().state == InProgressTransaction {
			ids.Insert(iter.Key())
		}
	}
	return ids
}

// newTransaction allocates a fresh Transaction, capturing the current
// in-progress set atomically with id assignment. corrID tags the
// transaction with its owning Connection's correlation id, for logging
// only.
func (d *Database) newTransaction(corrID uuid.UUID) *Transaction {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := Transaction{}
	t.isolation = d.defaultIsolation
	t.state = InProgressTransaction
	t.corrID = corrID

	// Assign and increment transaction id.
	t.id = d.nextTransactionId
	d.nextTransactionId++

	// Store all inprogress transaction ids.
	t.inprogress = d.inprogress()

	// Add this transaction to history.
	d.transactions.Set(t.id, t)

	d.log.Debug("starting transaction", "tx", uint64(t.id), "conn", corrID.String(), "isolation", t.isolation.String())

	return &t
}

// completeTransaction transitions t to state, running commit-time conflict
// analysis first when state is CommittedTransaction. On a conflict, t ends
// Aborted and the conflict error is returned.
func (d *Database) completeTransaction(t *Transaction, state TransactionState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.log.Debug("completing transaction", "tx", uint64(t.id), "conn", t.corrID.String(), "target_state", state.String())

	if state == CommittedTransaction {
		if err := d.checkConflicts(t); err != nil {
			t.state = AbortedTransaction
			d.transactions.Set(t.id, *t)
			d.log.Warn("commit aborted by conflict", "tx", uint64(t.id), "reason", err.Error())
			return err
		}
	}

	// update transactions.
	t.state = state
	d.transactions.Set(t.id, *t)

	return nil
}

// checkConflicts runs the isolation-specific commit-time conflict check.
// Read Uncommitted, Read Committed, and Repeatable Read have none.
func (d *Database) checkConflicts(t *Transaction) error {
	switch t.isolation {
	case SnapshotIsolation:
		// Snapshot Isolation: the same as Repeatable Read but with one
		// additional rule — the keys written by any two concurrent
		// committed transactions must not overlap. If T has modified x,
		// and some other transaction U committed a write to x after T's
		// snapshot began and before T's commit, T must abort.
		// https://jepsen.io/consistency/models/snapshot-isolation
		if d.hasConflict(t, func(t1, t2 *Transaction) bool {
			return setsShareKeys(t1.writeset, t2.writeset)
		}) {
			return mvccerr.NewConflict(mvccerr.WriteWrite)
		}
	case SerializableIsolation:
		// Serializable must appear as if only a single transaction were
		// executing at a time. This predicate strictly supersedes
		// Snapshot's write-write check, so a Serializable transaction
		// only ever runs this combined check.
		// https://jepsen.io/consistency/models/serializable
		if d.hasConflict(t, func(t1, t2 *Transaction) bool {
			return setsShareKeys(t1.readset, t2.writeset) ||
				setsShareKeys(t1.writeset, t2.readset) ||
				setsShareKeys(t1.writeset, t2.writeset)
		}) {
			return mvccerr.NewConflict(mvccerr.ReadWrite)
		}
	}
	return nil
}

// transactionState looks up a transaction by id. An unknown id is an
// invariant violation: every TxId the engine hands out, or stores inside a
// Version, is expected to resolve to a table entry for the engine's
// lifetime.
func (d *Database) transactionState(txId TxId) Transaction {
	t, ok := d.transactions.Get(txId)
	mvccerr.Assert(ok, "valid transaction")
	return t
}

// assertValidTransaction is a standalone entry point (unlike
// transactionState, which assumes d.mu is already held by its caller): it
// takes the lock itself so Connection methods can call it before starting
// their own locked critical section.
func (d *Database) assertValidTransaction(t *Transaction) {
	mvccerr.Assert(t.id > 0, "valid id")

	d.mu.Lock()
	state := d.transactionState(t.id).state
	d.mu.Unlock()

	mvccerr.Assert(state == InProgressTransaction, "in progress")
}

// isVisible is the isolation-level-dispatched visibility predicate: does
// version belong to the snapshot t can see?
func (d *Database) isVisible(t *Transaction, version Version) bool {
	// ReadUncommitted has almost no restrictions: we can read the most
	// recent non-deleted version, regardless of whether the transaction
	// that wrote it committed, aborted, or is still in progress.
	// https://jepsen.io/consistency/models/read-uncommitted
	if t.isolation == ReadUncommittedIsolation {
		// txEndId unset means nobody has deleted this version.
		return version.txEndId == 0
	}

	// Read Committed only exposes versions whose creator has committed
	// (or is the current transaction), and hides versions the current
	// transaction deleted, or that a committed transaction deleted. This
	// is the default isolation level for Postgres, Yugabyte, Oracle, and
	// SQL Server.
	// https://jepsen.io/consistency/models/read-committed
	if t.isolation == ReadCommittedIsolation {
		// If the version wasn't created by the current transaction and
		// its creator hasn't committed, it's no good.
		if version.txStartId != t.id && d.transactionState(version.txStartId).state != CommittedTransaction {
			return false
		}

		if version.txEndId > 0 {
			// ... deleted by the current transaction: no good.
			if version.txEndId == t.id {
				return false
			}
			// ... deleted by a committed transaction: no good.
			if d.transactionState(version.txEndId).state == CommittedTransaction {
				return false
			}
		}

		return true

		// Even at this isolation level, two reads in the same
		// transaction can see different results if some other
		// transaction commits between them — that's the defining trait
		// of Read Committed, not a bug.
	}

	// Repeatable Read, Snapshot Isolation, and Serializable further
	// restrict Read Committed so only versions from transactions that
	// completed before this one started are visible. The additional
	// logic that distinguishes Snapshot and Serializable happens at
	// commit time, not here.
	// https://jepsen.io/consistency/models/repeatable-read
	mvccerr.Assert(t.isolation == RepeatableReadIsolation || t.isolation == SnapshotIsolation || t.isolation == SerializableIsolation, "unsupported isolation level")

	// Ignore versions from transactions started after the current one.
	if version.txStartId > t.id {
		return false
	}

	// Ignore versions from transactions that were in progress when the
	// current one started. Without this, a transaction that reads early,
	// then reads again after some in-progress transaction committed,
	// would see a dirty read — the in-progress writer having committed in
	// the meantime would satisfy Read Committed's check but violate
	// Repeatable Read.
	if t.inprogress.Contains(version.txStartId) {
		return false
	}

	// Same creator/deleter checks as Read Committed, with one
	// modification below for deletions.
	if version.txStartId != t.id && d.transactionState(version.txStartId).state != CommittedTransaction {
		return false
	}

	if version.txEndId > 0 {
		if version.txEndId == t.id {
			return false
		}

		// ... deleted by a transaction that began before the current one,
		// was not in progress when it started, and has committed: no good.
		// A concurrent deleter is ignored.
		if version.txEndId < t.id && d.transactionState(version.txEndId).state == CommittedTransaction && !t.inprogress.Contains(version.txEndId) {
			return false
		}
	}

	return true
}

// hasConflict reports whether any transaction that overlapped t1's
// lifetime and has since committed satisfies conflictFn against t1. Caller
// must hold d.mu.
func (d *Database) hasConflict(t1 *Transaction, conflictFn func(*Transaction, *Transaction) bool) bool {
	iter := d.transactions.Iter()

	// First see if there is any conflict with transactions that were in
	// progress when this one started.
	inprogressIter := t1.inprogress.Iter()
	for ok := inprogressIter.First(); ok; ok = inprogressIter.Next() {
		id := inprogressIter.Key()
		found := iter.Seek(id)
		if !found {
			continue
		}
		t2 := iter.Value()
		if t2.state == CommittedTransaction {
			if conflictFn(t1, &t2) {
				return true
			}
		}
	}

	// Then see if there is any conflict with transactions that started
	// and committed after this one started.
	for id := t1.id; id < d.nextTransactionId; id++ {
		found := iter.Seek(id)
		if !found {
			continue
		}
		t2 := iter.Value()
		if t2.state == CommittedTransaction {
			if conflictFn(t1, &t2) {
				return true
			}
		}
	}

	return false
}

func setsShareKeys(s1, s2 btree.Set[string]) bool {
	s1Iter := s1.Iter()

	for ok := s1Iter.First(); ok; ok = s1Iter.Next() {
		s1Key := s1Iter.Key()
		if s2.Contains(s1Key) {
			return true
		}
	}

	return false
}
